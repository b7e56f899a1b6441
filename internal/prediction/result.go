// Package prediction holds the typed results returned by the three models
// and the error taxonomy shared by every stage of a request.
package prediction

// Result is one of CropLabel, YieldEstimate or DiseaseDiagnosis.
type Result interface {
	isResult()
}

// CropLabel is the crop recommended by the classifier.
type CropLabel struct {
	Name string `json:"name"`
}

// YieldEstimate is the regressor output in hg/ha.
type YieldEstimate struct {
	Value float64 `json:"value"`
}

// DiseaseDiagnosis is the gated output of the image classifier.
type DiseaseDiagnosis struct {
	Name       string  `json:"name"`
	Cause      string  `json:"cause,omitempty"`
	Cure       string  `json:"cure,omitempty"`
	Confidence float64 `json:"confidence"`
}

func (CropLabel) isResult()        {}
func (YieldEstimate) isResult()    {}
func (DiseaseDiagnosis) isResult() {}
