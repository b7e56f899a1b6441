package predictor

import (
	"context"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// InitRuntime loads the ONNX Runtime shared library. It must be called once
// before OpenONNX.
func InitRuntime(sharedLibraryPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if sharedLibraryPath != "" {
		ort.SetSharedLibraryPath(sharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// ShutdownRuntime releases the ONNX Runtime environment.
func ShutdownRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// onnxModel runs one exported model. Tensors are allocated per call so
// concurrent requests never share buffers.
type onnxModel struct {
	kind    Kind
	meta    Metadata
	session *ort.DynamicAdvancedSession
}

// OpenONNX creates a session for the model at modelPath. The kind decides
// how the output tensor is read: an int64 label for classifiers, a float
// scalar for regressors and a float distribution for image classifiers.
func OpenONNX(kind Kind, modelPath string, meta Metadata) (Predictor, error) {
	switch kind {
	case Classifier, Regressor, ImageClassifier:
	default:
		return nil, fmt.Errorf("unsupported model kind %s", kind)
	}
	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{meta.InputName}, []string{meta.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", modelPath, err)
	}
	return &onnxModel{kind: kind, meta: meta, session: session}, nil
}

func (m *onnxModel) Kind() Kind { return m.kind }

func (m *onnxModel) Predict(ctx context.Context, in FeatureVector) (RawOutput, error) {
	if err := ctx.Err(); err != nil {
		return RawOutput{}, err
	}
	if err := m.meta.CheckInput(in); err != nil {
		return RawOutput{}, err
	}

	input, err := ort.NewTensor(ort.NewShape(m.meta.InputShape...), in.Data)
	if err != nil {
		return RawOutput{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputShape := ort.NewShape(m.meta.OutputShape...)
	if m.kind == Classifier {
		output, err := ort.NewEmptyTensor[int64](outputShape)
		if err != nil {
			return RawOutput{}, fmt.Errorf("failed to create output tensor: %w", err)
		}
		defer output.Destroy()
		if err := m.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
			return RawOutput{}, fmt.Errorf("inference failed: %w", err)
		}
		return RawOutput{ClassIndex: output.GetData()[0]}, nil
	}

	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return RawOutput{}, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()
	if err := m.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return RawOutput{}, fmt.Errorf("inference failed: %w", err)
	}

	data := output.GetData()
	if m.kind == Regressor {
		return RawOutput{Scalar: float64(data[0])}, nil
	}
	probs := make([]float32, len(data))
	copy(probs, data)
	return RawOutput{Probabilities: probs}, nil
}

func (m *onnxModel) Close() error {
	if m.session == nil {
		return nil
	}
	return m.session.Destroy()
}
