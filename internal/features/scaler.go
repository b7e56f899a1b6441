package features

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// MinMaxScaler applies x*scale + min with parameters fit during training.
type MinMaxScaler struct {
	Min   []float64 `json:"min"`
	Scale []float64 `json:"scale"`
}

// StandardScaler applies (x - mean) / scale with parameters fit during training.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// LoadMinMaxScaler reads a min-max scaler artifact of the given width.
func LoadMinMaxScaler(path string, width int) (*MinMaxScaler, error) {
	var s MinMaxScaler
	if err := loadJSON(path, &s); err != nil {
		return nil, err
	}
	if len(s.Min) != width || len(s.Scale) != width {
		return nil, fmt.Errorf("min-max scaler %s: expected %d parameters, got min=%d scale=%d",
			path, width, len(s.Min), len(s.Scale))
	}
	return &s, nil
}

// LoadStandardScaler reads a standard scaler artifact of the given width.
func LoadStandardScaler(path string, width int) (*StandardScaler, error) {
	var s StandardScaler
	if err := loadJSON(path, &s); err != nil {
		return nil, err
	}
	if err := s.validate(width); err != nil {
		return nil, fmt.Errorf("standard scaler %s: %w", path, err)
	}
	return &s, nil
}

func (s *StandardScaler) validate(width int) error {
	if len(s.Mean) != width || len(s.Scale) != width {
		return fmt.Errorf("expected %d parameters, got mean=%d scale=%d", width, len(s.Mean), len(s.Scale))
	}
	for i, v := range s.Scale {
		if v == 0 {
			return fmt.Errorf("scale[%d] is zero", i)
		}
	}
	return nil
}

// Transform scales x in place.
func (s *MinMaxScaler) Transform(x []float64) {
	floats.Mul(x, s.Scale)
	floats.Add(x, s.Min)
}

// Transform standardises x in place.
func (s *StandardScaler) Transform(x []float64) {
	floats.Sub(x, s.Mean)
	floats.Div(x, s.Scale)
}
