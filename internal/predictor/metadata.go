package predictor

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/example/agri-inference/internal/prediction"
)

// Pixel layouts accepted for image models.
const (
	LayoutNHWC = "NHWC"
	LayoutNCHW = "NCHW"
)

// DefaultImageSize is the square resolution the disease model was trained on.
const DefaultImageSize = 224

// Metadata is the sidecar describing an exported model's tensors.
type Metadata struct {
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	Layout      string  `json:"layout,omitempty"`
	ImageSize   int     `json:"image_size,omitempty"`
}

// LoadMetadata reads and validates a metadata sidecar.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := meta.normalize(); err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	return meta, nil
}

func (m *Metadata) normalize() error {
	if m.InputName == "" || m.OutputName == "" {
		return fmt.Errorf("input_name and output_name are required")
	}
	if len(m.InputShape) == 0 || len(m.OutputShape) == 0 {
		return fmt.Errorf("input_shape and output_shape are required")
	}
	for _, d := range append(append([]int64{}, m.InputShape...), m.OutputShape...) {
		if d <= 0 {
			return fmt.Errorf("dimensions must be positive, got %v -> %v", m.InputShape, m.OutputShape)
		}
	}
	m.Layout = strings.ToUpper(strings.TrimSpace(m.Layout))
	if m.Layout == "" {
		m.Layout = LayoutNHWC
	}
	if m.Layout != LayoutNHWC && m.Layout != LayoutNCHW {
		return fmt.Errorf("unsupported layout %q", m.Layout)
	}
	if m.ImageSize == 0 {
		m.ImageSize = DefaultImageSize
	}
	return nil
}

// InputSize is the number of elements a feature vector must carry.
func (m Metadata) InputSize() int64 { return shapeSize(m.InputShape) }

// OutputSize is the number of elements the model writes.
func (m Metadata) OutputSize() int64 { return shapeSize(m.OutputShape) }

// CheckInput enforces the model's expected arity. A mismatch is a
// validation error, never coerced.
func (m Metadata) CheckInput(in FeatureVector) error {
	if int64(len(in.Data)) != m.InputSize() {
		return prediction.NewValidationError("features",
			fmt.Sprintf("expected %d values, got %d", m.InputSize(), len(in.Data)))
	}
	if in.Shape != nil && in.Len() != m.InputSize() {
		return prediction.NewValidationError("features",
			fmt.Sprintf("shape %v does not match model input %v", in.Shape, m.InputShape))
	}
	return nil
}
