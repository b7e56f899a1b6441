package features

import (
	"github.com/example/agri-inference/internal/predictor"
)

// CropFieldCount is the arity of the crop classifier input.
const CropFieldCount = 7

// CropInput holds the agronomic measurements in training order.
type CropInput struct {
	Nitrogen    float64
	Phosphorus  float64
	Potassium   float64
	Temperature float64
	Humidity    float64
	PH          float64
	Rainfall    float64
}

func (CropInput) input() {}

// Values returns the fields in the order the classifier expects.
func (c CropInput) Values() []float64 {
	return []float64{c.Nitrogen, c.Phosphorus, c.Potassium, c.Temperature, c.Humidity, c.PH, c.Rainfall}
}

// CropPipeline applies min-max scaling followed by standardisation.
type CropPipeline struct {
	minMax   *MinMaxScaler
	standard *StandardScaler
}

// NewCropPipeline wires the two scaler artifacts.
func NewCropPipeline(minMax *MinMaxScaler, standard *StandardScaler) *CropPipeline {
	return &CropPipeline{minMax: minMax, standard: standard}
}

// LoadCropPipeline reads both scaler artifacts.
func LoadCropPipeline(minMaxPath, standardPath string) (*CropPipeline, error) {
	mx, err := LoadMinMaxScaler(minMaxPath, CropFieldCount)
	if err != nil {
		return nil, err
	}
	sc, err := LoadStandardScaler(standardPath, CropFieldCount)
	if err != nil {
		return nil, err
	}
	return NewCropPipeline(mx, sc), nil
}

// Transform implements Pipeline.
func (p *CropPipeline) Transform(in Input) (predictor.FeatureVector, error) {
	crop, ok := in.(CropInput)
	if !ok {
		return predictor.FeatureVector{}, unexpectedInput("crop", in)
	}
	values := crop.Values()
	for i, v := range values {
		if err := checkFinite(CropFields[i], v); err != nil {
			return predictor.FeatureVector{}, err
		}
	}
	p.minMax.Transform(values)
	p.standard.Transform(values)
	return predictor.FeatureVector{
		Data:  toFloat32(values),
		Shape: []int64{1, CropFieldCount},
	}, nil
}

// CropFields are the request field names in training order.
var CropFields = [CropFieldCount]string{
	"Nitrogen", "Phosphorus", "Potassium", "Temperature", "Humidity", "pH", "Rainfall",
}
