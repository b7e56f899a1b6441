// Package registry loads the trained model artifacts once at startup and
// serves them read-only for the life of the process.
package registry

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/example/agri-inference/internal/features"
	"github.com/example/agri-inference/internal/gate"
	"github.com/example/agri-inference/internal/prediction"
	"github.com/example/agri-inference/internal/predictor"
)

// ModelID names a served model.
type ModelID string

const (
	Crop    ModelID = "crop"
	Yield   ModelID = "yield"
	Disease ModelID = "disease"
)

// Models lists every served model in a stable order.
var Models = []ModelID{Crop, Yield, Disease}

// Artifact is a loaded model together with the pipeline that feeds it.
type Artifact struct {
	ID        ModelID
	Kind      predictor.Kind
	Predictor predictor.Predictor
	Pipeline  features.Pipeline
}

// Status describes whether a model can serve requests.
type Status struct {
	ID        ModelID
	Kind      predictor.Kind
	Required  bool
	Available bool
	Reason    string
}

// Registry holds the artifacts and the disease catalog. It has no mutation
// API, so concurrent reads need no locking.
type Registry struct {
	artifacts map[ModelID]*Artifact
	statuses  []Status
	catalog   gate.Catalog
}

// OpenFunc creates a predictor for a model file. predictor.OpenONNX is the
// production implementation.
type OpenFunc func(kind predictor.Kind, modelPath string, meta predictor.Metadata) (predictor.Predictor, error)

// Config locates the artifacts on disk.
type Config struct {
	ModelDir    string
	CatalogPath string
}

// Load reads every artifact. A failure on the crop or yield model is
// returned as an error; a failure on the disease model or its catalog
// leaves that model unavailable.
func Load(cfg Config, open OpenFunc, logger *zap.Logger) (*Registry, error) {
	logger = logger.Named("registry")
	r := &Registry{artifacts: make(map[ModelID]*Artifact)}

	crop, err := loadCrop(cfg.ModelDir, open)
	if err != nil {
		return nil, fmt.Errorf("load crop model: %w", err)
	}
	r.add(crop, true)

	yield, err := loadYield(cfg.ModelDir, open)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("load yield model: %w", err)
	}
	r.add(yield, true)

	disease, catalog, err := loadDisease(cfg.ModelDir, cfg.CatalogPath, open)
	if err != nil {
		logger.Warn("disease model unavailable, serving degraded results", zap.Error(err))
		r.statuses = append(r.statuses, Status{
			ID: Disease, Kind: predictor.ImageClassifier, Reason: err.Error(),
		})
	} else {
		r.catalog = catalog
		r.add(disease, false)
	}

	for _, s := range r.statuses {
		logger.Info("model status",
			zap.String("model", string(s.ID)),
			zap.String("kind", s.Kind.String()),
			zap.Bool("available", s.Available))
	}
	return r, nil
}

// New builds a registry from already loaded artifacts. IDs missing from
// artifacts are reported unavailable.
func New(catalog gate.Catalog, artifacts ...*Artifact) *Registry {
	r := &Registry{artifacts: make(map[ModelID]*Artifact), catalog: catalog}
	for _, a := range artifacts {
		r.add(a, a.ID != Disease)
	}
	for _, id := range Models {
		if _, ok := r.artifacts[id]; !ok {
			r.statuses = append(r.statuses, Status{ID: id, Required: id != Disease, Reason: "not loaded"})
		}
	}
	return r
}

func (r *Registry) add(a *Artifact, required bool) {
	r.artifacts[a.ID] = a
	r.statuses = append(r.statuses, Status{ID: a.ID, Kind: a.Kind, Required: required, Available: true})
}

// Get returns the artifact for id or prediction.ErrModelUnavailable.
func (r *Registry) Get(id ModelID) (*Artifact, error) {
	a, ok := r.artifacts[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, prediction.ErrModelUnavailable)
	}
	return a, nil
}

// Catalog returns the disease catalog.
func (r *Registry) Catalog() gate.Catalog { return r.catalog }

// Status reports every model, in load order.
func (r *Registry) Status() []Status {
	out := make([]Status, len(r.statuses))
	copy(out, r.statuses)
	return out
}

// Close releases every predictor.
func (r *Registry) Close() error {
	var errs []error
	for _, a := range r.artifacts {
		if err := a.Predictor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", a.ID, err))
		}
	}
	return errors.Join(errs...)
}

func openModel(dir, name string, kind predictor.Kind, open OpenFunc) (predictor.Predictor, predictor.Metadata, error) {
	meta, err := predictor.LoadMetadata(filepath.Join(dir, name+".meta.json"))
	if err != nil {
		return nil, predictor.Metadata{}, err
	}
	p, err := open(kind, filepath.Join(dir, name+".onnx"), meta)
	if err != nil {
		return nil, predictor.Metadata{}, err
	}
	return p, meta, nil
}

func loadCrop(dir string, open OpenFunc) (*Artifact, error) {
	pipeline, err := features.LoadCropPipeline(
		filepath.Join(dir, "crop_minmax.json"),
		filepath.Join(dir, "crop_standard.json"),
	)
	if err != nil {
		return nil, err
	}
	p, meta, err := openModel(dir, string(Crop), predictor.Classifier, open)
	if err != nil {
		return nil, err
	}
	if meta.InputSize() != features.CropFieldCount {
		p.Close()
		return nil, fmt.Errorf("crop model expects %d inputs, pipeline produces %d", meta.InputSize(), features.CropFieldCount)
	}
	return &Artifact{ID: Crop, Kind: predictor.Classifier, Predictor: p, Pipeline: pipeline}, nil
}

func loadYield(dir string, open OpenFunc) (*Artifact, error) {
	preprocessor, err := features.LoadColumnTransformer(filepath.Join(dir, "yield_preprocessor.json"))
	if err != nil {
		return nil, err
	}
	p, meta, err := openModel(dir, string(Yield), predictor.Regressor, open)
	if err != nil {
		return nil, err
	}
	if meta.InputSize() != int64(preprocessor.Width()) {
		p.Close()
		return nil, fmt.Errorf("yield model expects %d inputs, preprocessor produces %d", meta.InputSize(), preprocessor.Width())
	}
	return &Artifact{ID: Yield, Kind: predictor.Regressor, Predictor: p, Pipeline: features.NewYieldPipeline(preprocessor)}, nil
}

func loadDisease(dir, catalogPath string, open OpenFunc) (*Artifact, gate.Catalog, error) {
	catalog, err := gate.LoadCatalog(catalogPath)
	if err != nil {
		return nil, gate.Catalog{}, err
	}
	p, meta, err := openModel(dir, string(Disease), predictor.ImageClassifier, open)
	if err != nil {
		return nil, gate.Catalog{}, err
	}
	if want := int64(3 * meta.ImageSize * meta.ImageSize); meta.InputSize() != want {
		p.Close()
		return nil, gate.Catalog{}, fmt.Errorf("disease model expects %d inputs, image pipeline produces %d", meta.InputSize(), want)
	}
	return &Artifact{
		ID:        Disease,
		Kind:      predictor.ImageClassifier,
		Predictor: p,
		Pipeline:  features.NewImagePipeline(meta),
	}, catalog, nil
}
