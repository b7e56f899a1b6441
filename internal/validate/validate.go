// Package validate checks presence and type of the fields each model needs
// before any transformation runs.
package validate

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/example/agri-inference/internal/features"
	"github.com/example/agri-inference/internal/prediction"
)

// Fields is a uniform view over form values and JSON object members.
// Values hold the textual form of each scalar; kinds records JSON values
// that are neither numbers nor strings.
type Fields struct {
	values map[string]string
	kinds  map[string]string
}

// FormFields wraps posted form values.
func FormFields(form url.Values) Fields {
	f := Fields{values: make(map[string]string, len(form))}
	for k, v := range form {
		if len(v) > 0 {
			f.values[k] = strings.TrimSpace(v[0])
		}
	}
	return f
}

// JSONFields parses a JSON object body.
func JSONFields(body []byte) (Fields, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return Fields{}, prediction.NewValidationError("", "request body must be a JSON object")
	}

	f := Fields{values: make(map[string]string, len(raw)), kinds: make(map[string]string)}
	for k, v := range raw {
		trimmed := bytes.TrimSpace(v)
		switch {
		case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
			// absent
		case trimmed[0] == '"':
			var s string
			if err := json.Unmarshal(trimmed, &s); err != nil {
				return Fields{}, prediction.NewValidationError(k, "is not a valid string")
			}
			f.values[k] = strings.TrimSpace(s)
		case trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9'):
			f.values[k] = string(trimmed)
			f.kinds[k] = "number"
		case trimmed[0] == 't' || trimmed[0] == 'f':
			f.kinds[k] = "boolean"
		case trimmed[0] == '[':
			f.kinds[k] = "array"
		default:
			f.kinds[k] = "object"
		}
	}
	return f, nil
}

func (f Fields) lookup(name string) (string, error) {
	if kind, ok := f.kinds[name]; ok && kind != "number" {
		return "", prediction.NewValidationError(name, "must be a scalar, got "+kind)
	}
	v, ok := f.values[name]
	if !ok || v == "" {
		return "", prediction.NewValidationError(name, "is required")
	}
	return v, nil
}

// Number returns a required numeric field. Numeric strings are accepted.
func (f Fields) Number(name string) (float64, error) {
	v, err := f.lookup(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, prediction.NewValidationError(name, "must be a number")
	}
	return n, nil
}

// String returns a required string field. JSON numbers are rejected.
func (f Fields) String(name string) (string, error) {
	v, err := f.lookup(name)
	if err != nil {
		return "", err
	}
	if f.kinds[name] == "number" {
		return "", prediction.NewValidationError(name, "must be a string")
	}
	return v, nil
}

// Crop extracts the seven agronomic fields in training order. The first
// offending field in that order is reported.
func Crop(f Fields) (features.CropInput, error) {
	var values [features.CropFieldCount]float64
	for i, name := range features.CropFields {
		v, err := f.Number(name)
		if err != nil {
			return features.CropInput{}, err
		}
		values[i] = v
	}
	return features.CropInput{
		Nitrogen:    values[0],
		Phosphorus:  values[1],
		Potassium:   values[2],
		Temperature: values[3],
		Humidity:    values[4],
		PH:          values[5],
		Rainfall:    values[6],
	}, nil
}

// Yield extracts the four numeric and two categorical yield fields.
func Yield(f Fields) (features.YieldInput, error) {
	var in features.YieldInput
	numeric := []*float64{&in.Year, &in.Rainfall, &in.Pesticides, &in.AvgTemp}
	for col, dst := range numeric {
		v, err := f.Number(features.YieldFields[col])
		if err != nil {
			return features.YieldInput{}, err
		}
		*dst = v
	}
	var err error
	if in.Area, err = f.String(features.YieldFields[features.YieldArea]); err != nil {
		return features.YieldInput{}, err
	}
	if in.Item, err = f.String(features.YieldFields[features.YieldItem]); err != nil {
		return features.YieldInput{}, err
	}
	return in, nil
}
