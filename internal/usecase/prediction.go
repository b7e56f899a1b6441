package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/agri-inference/internal/features"
	"github.com/example/agri-inference/internal/gate"
	"github.com/example/agri-inference/internal/logging"
	"github.com/example/agri-inference/internal/prediction"
	"github.com/example/agri-inference/internal/predictor"
	"github.com/example/agri-inference/internal/registry"
	"github.com/example/agri-inference/internal/repository"
)

// ErrAuditDisabled is returned by history queries when no database is configured.
var ErrAuditDisabled = errors.New("prediction audit is disabled")

// Source tells whether a request came from a page form or the JSON API.
type Source string

const (
	SourceForm Source = "form"
	SourceAPI  Source = "api"
)

// ModelRegistry is the read-only view of loaded models the use case needs.
type ModelRegistry interface {
	Get(id registry.ModelID) (*registry.Artifact, error)
	Catalog() gate.Catalog
}

// AuditRepository defines the persistence operations needed by the use case.
type AuditRepository interface {
	SaveLog(ctx context.Context, log *repository.PredictionLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.PredictionLog, error)
	AggregateMetrics(ctx context.Context) ([]repository.ModelAggregation, error)
}

// Outcome is a formatted-ready prediction with the id it was audited under.
type Outcome struct {
	RequestID string
	Model     registry.ModelID
	Result    prediction.Result
	Cached    bool
}

// PredictionUseCase runs the request lifecycle:
// validated input -> transform -> predict -> (gate) -> result.
type PredictionUseCase struct {
	models         ModelRegistry
	cache          Cache
	audit          AuditRepository
	logger         *zap.Logger
	threshold      float64
	cacheTTL       time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Option customises a PredictionUseCase.
type Option func(*PredictionUseCase)

// WithCacheTTL sets how long crop and yield results stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(uc *PredictionUseCase) { uc.cacheTTL = ttl }
}

// NewPredictionUseCase constructs a new use case instance. cache and audit
// may be nil.
func NewPredictionUseCase(models ModelRegistry, cache Cache, audit AuditRepository, logger *zap.Logger, opts ...Option) *PredictionUseCase {
	uc := &PredictionUseCase{
		models:         models,
		cache:          cache,
		audit:          audit,
		logger:         logger.Named("prediction_usecase"),
		threshold:      gate.DefaultThreshold,
		cacheTTL:       10 * time.Minute,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// PredictCrop recommends a crop for the seven agronomic fields.
func (uc *PredictionUseCase) PredictCrop(ctx context.Context, in features.CropInput, source Source) (*Outcome, error) {
	return uc.predictCached(ctx, registry.Crop, in, source, func(raw predictor.RawOutput) prediction.Result {
		return prediction.CropLabel{Name: prediction.CropName(raw.ClassIndex)}
	})
}

// PredictYield estimates yield for the six yield fields.
func (uc *PredictionUseCase) PredictYield(ctx context.Context, in features.YieldInput, source Source) (*Outcome, error) {
	return uc.predictCached(ctx, registry.Yield, in, source, func(raw predictor.RawOutput) prediction.Result {
		return prediction.YieldEstimate{Value: raw.Scalar}
	})
}

// PredictDisease diagnoses an uploaded leaf image. When the image model is
// unavailable it returns the fixed "Model not available" diagnosis without
// decoding the image or calling any predictor.
func (uc *PredictionUseCase) PredictDisease(ctx context.Context, in features.ImageInput, source Source) (*Outcome, error) {
	requestID := uuid.NewString()
	started := time.Now()
	auditInput := map[string]int{"bytes": len(in.Data)}

	if _, err := uc.models.Get(registry.Disease); errors.Is(err, prediction.ErrModelUnavailable) {
		result := gate.ModelNotAvailable()
		uc.record(ctx, requestID, registry.Disease, source, auditInput, result, nil, started)
		return &Outcome{RequestID: requestID, Model: registry.Disease, Result: result}, nil
	}

	raw, err := uc.run(ctx, requestID, registry.Disease, in)
	if err != nil {
		uc.record(ctx, requestID, registry.Disease, source, auditInput, nil, err, started)
		return nil, err
	}
	result := gate.Diagnose(raw.Probabilities, uc.models.Catalog(), uc.threshold)
	uc.record(ctx, requestID, registry.Disease, source, auditInput, result, nil, started)
	return &Outcome{RequestID: requestID, Model: registry.Disease, Result: result}, nil
}

func (uc *PredictionUseCase) predictCached(
	ctx context.Context,
	id registry.ModelID,
	in features.Input,
	source Source,
	interpret func(predictor.RawOutput) prediction.Result,
) (*Outcome, error) {
	requestID := uuid.NewString()
	started := time.Now()
	opLogger := logging.WithOperation(uc.logger, "usecase.predict_"+string(id), requestID)

	key, keyErr := cacheKey(id, in)
	if keyErr != nil {
		opLogger.Warn("failed to derive cache key", zap.Error(keyErr))
	}
	if uc.cache != nil && keyErr == nil {
		if result, ok := uc.cachedResult(ctx, requestID, id, key); ok {
			uc.record(ctx, requestID, id, source, in, result, nil, started)
			return &Outcome{RequestID: requestID, Model: id, Result: result, Cached: true}, nil
		}
	}

	raw, err := uc.run(ctx, requestID, id, in)
	if err != nil {
		uc.record(ctx, requestID, id, source, in, nil, err, started)
		return nil, err
	}
	result := interpret(raw)

	if uc.cache != nil && keyErr == nil {
		if serialized, err := json.Marshal(result); err != nil {
			opLogger.Warn("failed to serialize result for cache", zap.Error(err))
		} else if err := uc.withCacheRetry(ctx, requestID, "cache.set.result", func() error {
			return uc.cache.Set(ctx, key, string(serialized), uc.cacheTTL)
		}); err != nil {
			opLogger.Warn("failed to cache result", zap.Error(err))
		}
	}

	uc.record(ctx, requestID, id, source, in, result, nil, started)
	return &Outcome{RequestID: requestID, Model: id, Result: result}, nil
}

// run is the transform and predict stages shared by every model.
func (uc *PredictionUseCase) run(ctx context.Context, requestID string, id registry.ModelID, in features.Input) (predictor.RawOutput, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.run", requestID)

	artifact, err := uc.models.Get(id)
	if err != nil {
		return predictor.RawOutput{}, logging.NewModelError("usecase.get_model", string(id), requestID, err)
	}

	vector, err := artifact.Pipeline.Transform(in)
	if err != nil {
		wrapped := logging.NewModelError("usecase.transform", string(id), requestID, err)
		opLogger.Info("transform rejected input", zap.Error(wrapped))
		return predictor.RawOutput{}, wrapped
	}

	raw, err := artifact.Predictor.Predict(ctx, vector)
	if err != nil {
		wrapped := logging.NewModelError("usecase.predict", string(id), requestID, err)
		opLogger.Error("model prediction failed", zap.Error(wrapped))
		return predictor.RawOutput{}, wrapped
	}
	return raw, nil
}

func (uc *PredictionUseCase) cachedResult(ctx context.Context, requestID string, id registry.ModelID, key string) (prediction.Result, bool) {
	opLogger := logging.WithOperation(uc.logger, "usecase.cached_result", requestID)

	var value string
	err := uc.withCacheRetry(ctx, requestID, "cache.get.result", func() error {
		v, err := uc.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
		return nil, false
	}

	var result prediction.Result
	switch id {
	case registry.Crop:
		var label prediction.CropLabel
		err = json.Unmarshal([]byte(value), &label)
		result = label
	case registry.Yield:
		var estimate prediction.YieldEstimate
		err = json.Unmarshal([]byte(value), &estimate)
		result = estimate
	default:
		return nil, false
	}
	if err != nil {
		opLogger.Warn("failed to decode cached result", zap.Error(err))
		return nil, false
	}
	return result, true
}

func (uc *PredictionUseCase) record(
	ctx context.Context,
	requestID string,
	id registry.ModelID,
	source Source,
	input any,
	result prediction.Result,
	failure error,
	started time.Time,
) {
	if uc.audit == nil {
		return
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.record", requestID)

	log := &repository.PredictionLog{
		RequestID: requestID,
		Model:     string(id),
		Source:    string(source),
		Success:   failure == nil,
		LatencyMs: time.Since(started).Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
	if b, err := json.Marshal(input); err == nil {
		log.Input = string(b)
	}
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			log.Output = string(b)
		}
		if d, ok := result.(prediction.DiseaseDiagnosis); ok {
			confidence := d.Confidence
			log.Confidence = &confidence
		}
	}
	if failure != nil {
		log.Error = failure.Error()
	}

	if err := uc.audit.SaveLog(ctx, log); err != nil {
		opLogger.Warn("failed to persist prediction log", zap.Error(err))
	}
}

// GetResult loads the audited prediction for requestID.
func (uc *PredictionUseCase) GetResult(ctx context.Context, requestID string) (*repository.PredictionLog, error) {
	if uc.audit == nil {
		return nil, ErrAuditDisabled
	}
	return uc.audit.FindByRequestID(ctx, requestID)
}

func (uc *PredictionUseCase) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	attempts := uc.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("cache operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, ErrCacheMiss) {
			return err
		}
		if !isTransientError(err) || attempt == attempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}
		opLogger.Warn("transient cache error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func cacheKey(id registry.ModelID, in features.Input) (string, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(payload)
	return fmt.Sprintf("prediction:%s:%s", id, hex.EncodeToString(sum[:])), nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
