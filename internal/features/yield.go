package features

import (
	"fmt"
	"sort"

	"github.com/example/agri-inference/internal/prediction"
	"github.com/example/agri-inference/internal/predictor"
)

// Yield input columns in training order.
const (
	YieldYear = iota
	YieldRainfall
	YieldPesticides
	YieldAvgTemp
	YieldArea
	YieldItem
	yieldColumnCount
)

// YieldFields are the request field names indexed by column.
var YieldFields = [yieldColumnCount]string{
	"Year", "average_rain_fall_mm_per_year", "pesticides_tonnes", "avg_temp", "Area", "Item",
}

// YieldInput mixes four numeric columns and two categorical identifiers.
type YieldInput struct {
	Year       float64
	Rainfall   float64
	Pesticides float64
	AvgTemp    float64
	Area       string
	Item       string
}

func (YieldInput) input() {}

func (y YieldInput) numeric(col int) (float64, bool) {
	switch col {
	case YieldYear:
		return y.Year, true
	case YieldRainfall:
		return y.Rainfall, true
	case YieldPesticides:
		return y.Pesticides, true
	case YieldAvgTemp:
		return y.AvgTemp, true
	}
	return 0, false
}

func (y YieldInput) categorical(col int) (string, bool) {
	switch col {
	case YieldArea:
		return y.Area, true
	case YieldItem:
		return y.Item, true
	}
	return "", false
}

func isCategorical(col int) bool { return col == YieldArea || col == YieldItem }

// Block types of a column transformer artifact.
const (
	BlockOneHot   = "onehot"
	BlockStandard = "standard"
)

// Block is one step of the column transformer, applied to Columns.
type Block struct {
	Type       string     `json:"type"`
	Columns    []int      `json:"columns"`
	Categories [][]string `json:"categories,omitempty"`
	DropFirst  bool       `json:"drop_first,omitempty"`
	Mean       []float64  `json:"mean,omitempty"`
	Scale      []float64  `json:"scale,omitempty"`
}

// ColumnTransformer is the mixed categorical + numeric preprocessor of the
// yield model. Blocks emit in order; numeric columns no block claims are
// passed through at the end.
type ColumnTransformer struct {
	Blocks      []Block `json:"blocks"`
	passthrough []int
	width       int
}

// LoadColumnTransformer reads and validates a preprocessor artifact.
func LoadColumnTransformer(path string) (*ColumnTransformer, error) {
	var ct ColumnTransformer
	if err := loadJSON(path, &ct); err != nil {
		return nil, err
	}
	if err := ct.init(); err != nil {
		return nil, fmt.Errorf("preprocessor %s: %w", path, err)
	}
	return &ct, nil
}

// NewColumnTransformer validates blocks built in code.
func NewColumnTransformer(blocks ...Block) (*ColumnTransformer, error) {
	ct := &ColumnTransformer{Blocks: blocks}
	if err := ct.init(); err != nil {
		return nil, err
	}
	return ct, nil
}

func (ct *ColumnTransformer) init() error {
	if len(ct.Blocks) == 0 {
		return fmt.Errorf("no blocks")
	}
	claimed := make(map[int]bool)
	ct.width = 0
	for i, b := range ct.Blocks {
		for _, col := range b.Columns {
			if col < 0 || col >= yieldColumnCount {
				return fmt.Errorf("block %d: column %d out of range", i, col)
			}
			if claimed[col] {
				return fmt.Errorf("block %d: column %d claimed twice", i, col)
			}
			claimed[col] = true
		}
		switch b.Type {
		case BlockOneHot:
			if len(b.Categories) != len(b.Columns) {
				return fmt.Errorf("block %d: %d category lists for %d columns", i, len(b.Categories), len(b.Columns))
			}
			for j, col := range b.Columns {
				if !isCategorical(col) {
					return fmt.Errorf("block %d: column %d is not categorical", i, col)
				}
				n := len(b.Categories[j])
				if n == 0 {
					return fmt.Errorf("block %d: column %d has no categories", i, col)
				}
				if b.DropFirst {
					n--
				}
				ct.width += n
			}
		case BlockStandard:
			for _, col := range b.Columns {
				if isCategorical(col) {
					return fmt.Errorf("block %d: column %d is not numeric", i, col)
				}
			}
			s := StandardScaler{Mean: b.Mean, Scale: b.Scale}
			if err := s.validate(len(b.Columns)); err != nil {
				return fmt.Errorf("block %d: %w", i, err)
			}
			ct.width += len(b.Columns)
		default:
			return fmt.Errorf("block %d: unknown type %q", i, b.Type)
		}
	}

	ct.passthrough = nil
	for col := 0; col < yieldColumnCount; col++ {
		if claimed[col] {
			continue
		}
		if isCategorical(col) {
			return fmt.Errorf("categorical column %d is not encoded", col)
		}
		ct.passthrough = append(ct.passthrough, col)
	}
	sort.Ints(ct.passthrough)
	ct.width += len(ct.passthrough)
	return nil
}

// Width is the length of the produced vector.
func (ct *ColumnTransformer) Width() int { return ct.width }

// Transform encodes one row.
func (ct *ColumnTransformer) Transform(in YieldInput) ([]float64, error) {
	out := make([]float64, 0, ct.width)
	for _, b := range ct.Blocks {
		switch b.Type {
		case BlockOneHot:
			for j, col := range b.Columns {
				value, _ := in.categorical(col)
				idx := indexOf(b.Categories[j], value)
				if idx < 0 {
					return nil, prediction.NewValidationError(YieldFields[col],
						fmt.Sprintf("has unknown category %q", value))
				}
				start := 0
				if b.DropFirst {
					start = 1
				}
				for k := start; k < len(b.Categories[j]); k++ {
					if k == idx {
						out = append(out, 1)
					} else {
						out = append(out, 0)
					}
				}
			}
		case BlockStandard:
			values := make([]float64, len(b.Columns))
			for j, col := range b.Columns {
				values[j], _ = in.numeric(col)
			}
			s := StandardScaler{Mean: b.Mean, Scale: b.Scale}
			s.Transform(values)
			out = append(out, values...)
		}
	}
	for _, col := range ct.passthrough {
		v, _ := in.numeric(col)
		out = append(out, v)
	}
	return out, nil
}

func indexOf(values []string, v string) int {
	for i, candidate := range values {
		if candidate == v {
			return i
		}
	}
	return -1
}

// YieldPipeline applies the column transformer artifact.
type YieldPipeline struct {
	preprocessor *ColumnTransformer
}

// NewYieldPipeline wires the preprocessor artifact.
func NewYieldPipeline(preprocessor *ColumnTransformer) *YieldPipeline {
	return &YieldPipeline{preprocessor: preprocessor}
}

// Transform implements Pipeline.
func (p *YieldPipeline) Transform(in Input) (predictor.FeatureVector, error) {
	y, ok := in.(YieldInput)
	if !ok {
		return predictor.FeatureVector{}, unexpectedInput("yield", in)
	}
	for col := YieldYear; col <= YieldAvgTemp; col++ {
		v, _ := y.numeric(col)
		if err := checkFinite(YieldFields[col], v); err != nil {
			return predictor.FeatureVector{}, err
		}
	}
	values, err := p.preprocessor.Transform(y)
	if err != nil {
		return predictor.FeatureVector{}, err
	}
	return predictor.FeatureVector{
		Data:  toFloat32(values),
		Shape: []int64{1, int64(len(values))},
	}, nil
}
