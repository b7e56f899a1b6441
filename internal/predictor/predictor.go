// Package predictor wraps the opaque trained models behind a single
// call-through contract. It performs no business logic.
package predictor

import (
	"context"
	"fmt"
)

// Kind selects how a model's output is read.
type Kind int

const (
	Classifier Kind = iota + 1
	Regressor
	ImageClassifier
)

func (k Kind) String() string {
	switch k {
	case Classifier:
		return "classifier"
	case Regressor:
		return "regressor"
	case ImageClassifier:
		return "image_classifier"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FeatureVector is the model-native input: flat data in row-major order
// plus the shape it should be viewed as.
type FeatureVector struct {
	Data  []float32
	Shape []int64
}

// Len returns the number of elements the shape describes.
func (v FeatureVector) Len() int64 {
	return shapeSize(v.Shape)
}

// RawOutput is what a model returns before interpretation. Only the field
// matching the model's Kind is set.
type RawOutput struct {
	ClassIndex    int64
	Scalar        float64
	Probabilities []float32
}

// Predictor is the uniform capability every loaded model exposes.
// Implementations must be safe for concurrent Predict calls.
type Predictor interface {
	Kind() Kind
	Predict(ctx context.Context, in FeatureVector) (RawOutput, error)
	Close() error
}

func shapeSize(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
