// Package gate interprets the image classifier's probability distribution:
// argmax, confidence threshold and catalog lookup.
package gate

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/example/agri-inference/internal/prediction"
)

// DefaultThreshold is the minimum confidence for a catalog diagnosis.
const DefaultThreshold = 0.6

// Labels used when no catalog record applies.
const (
	LabelNotAPlant   = "Unknown / Not a plant"
	LabelUnknown     = "Unknown"
	LabelUnavailable = "Model not available"
)

// Diagnose maps a distribution over classes to a diagnosis. It never indexes
// the catalog outside its bounds.
func Diagnose(probs []float32, catalog Catalog, threshold float64) prediction.DiseaseDiagnosis {
	if len(probs) == 0 {
		return prediction.DiseaseDiagnosis{Name: LabelUnknown}
	}

	dist := make([]float64, len(probs))
	for i, p := range probs {
		v := widen(p)
		if math.IsNaN(v) {
			v = 0
		}
		dist[i] = v
	}
	index := floats.MaxIdx(dist)
	confidence := clamp01(dist[index])

	if confidence < threshold {
		return prediction.DiseaseDiagnosis{Name: LabelNotAPlant, Confidence: confidence}
	}
	record, ok := catalog.Lookup(index)
	if !ok {
		return prediction.DiseaseDiagnosis{Name: LabelUnknown, Confidence: confidence}
	}
	return prediction.DiseaseDiagnosis{
		Name:       record.Name,
		Cause:      record.Cause,
		Cure:       record.Cure,
		Confidence: confidence,
	}
}

// ModelNotAvailable is returned without invoking any predictor when the
// image model failed to load.
func ModelNotAvailable() prediction.DiseaseDiagnosis {
	return prediction.DiseaseDiagnosis{Name: LabelUnavailable, Confidence: 0}
}

// widen converts p to the float64 with the same shortest decimal form, so
// 0.55 reports as 0.55 and not 0.550000011920929.
func widen(p float32) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(float64(p), 'g', -1, 32), 64)
	if err != nil {
		return float64(p)
	}
	return v
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
