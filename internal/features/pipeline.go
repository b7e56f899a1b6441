// Package features turns validated request fields into the exact input
// vector each model was trained on. Every pipeline is a pure function of
// its input and the scaler artifacts loaded at startup.
package features

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/example/agri-inference/internal/prediction"
	"github.com/example/agri-inference/internal/predictor"
)

// Input is one of CropInput, YieldInput or ImageInput.
type Input interface {
	input()
}

// Pipeline converts raw input into a model's feature vector.
type Pipeline interface {
	Transform(in Input) (predictor.FeatureVector, error)
}

func loadJSON(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func checkFinite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return prediction.NewValidationError(field, "must be a finite number")
	}
	return nil
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

func unexpectedInput(want string, got Input) error {
	return fmt.Errorf("%s pipeline cannot transform %T", want, got)
}
