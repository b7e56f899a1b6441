// Package config parses command line flags with environment fallbacks.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alexflint/go-arg"
)

// ErrHelp is returned by Parse when usage was requested.
var ErrHelp = arg.ErrHelp

// Config holds every runtime option. Flags win over environment variables,
// which win over defaults.
type Config struct {
	Addr            string        `arg:"--addr,env:HTTP_ADDR" default:":8080" help:"HTTP listen address"`
	GRPCAddr        string        `arg:"--grpc-addr,env:GRPC_ADDR" help:"gRPC health listen address, empty disables it"`
	ModelDir        string        `arg:"--model-dir,env:MODEL_DIR" default:"models" help:"directory holding model and scaler artifacts"`
	ONNXRuntimeLib  string        `arg:"--onnxruntime-lib,env:ONNXRUNTIME_LIB" help:"path to the onnxruntime shared library"`
	CatalogPath     string        `arg:"--catalog,env:DISEASE_CATALOG" default:"plant_disease.json" help:"disease catalog JSON"`
	UploadDir       string        `arg:"--upload-dir,env:UPLOAD_DIR" default:"uploadimages" help:"directory for uploaded images"`
	MaxUploadBytes  int64         `arg:"--max-upload-bytes,env:MAX_UPLOAD_BYTES" default:"10485760" help:"largest accepted image upload"`
	RedisAddr       string        `arg:"--redis-addr,env:REDIS_ADDR" help:"redis address for the prediction cache, empty uses an in-process cache"`
	DatabaseDSN     string        `arg:"--database-dsn,env:DATABASE_DSN" help:"postgres DSN for the prediction audit log, empty disables it"`
	CacheSize       int           `arg:"--cache-size,env:CACHE_SIZE" default:"1024" help:"in-process cache entries"`
	CacheTTL        time.Duration `arg:"--cache-ttl,env:CACHE_TTL" default:"10m" help:"prediction cache TTL"`
	JWTSecret       string        `arg:"--jwt-secret,env:JWT_SECRET" help:"HS256 secret protecting admin endpoints, empty leaves them open"`
	JWTAudience     string        `arg:"--jwt-audience,env:JWT_AUDIENCE" help:"required token audience"`
	GeminiAPIKey    string        `arg:"--gemini-api-key,env:GEMINI_API_KEY" help:"enables market price lookup"`
	GeminiModel     string        `arg:"--gemini-model,env:GEMINI_MODEL" default:"gemini-2.0-flash" help:"Gemini model name"`
	LogLevel        string        `arg:"--log-level,env:LOG_LEVEL" default:"info" help:"debug, info, warn or error"`
	ShutdownTimeout time.Duration `arg:"--shutdown-timeout,env:SHUTDOWN_TIMEOUT" default:"15s" help:"graceful shutdown timeout"`
	HealthCheck     bool          `arg:"--health-check" help:"query the gRPC health service at grpc-addr and exit"`
}

// Parse reads args (without the program name) and the environment.
func Parse(args []string) (*Config, error) {
	var cfg Config
	p, err := arg.NewParser(arg.Config{Program: "agri-inference"}, &cfg)
	if err != nil {
		return nil, err
	}
	if err := p.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Usage writes the help text to w.
func Usage(w io.Writer) {
	var cfg Config
	p, err := arg.NewParser(arg.Config{Program: "agri-inference"}, &cfg)
	if err != nil {
		return
	}
	p.WriteHelp(w)
}

// Validate rejects option combinations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max-upload-bytes must be positive"))
	}
	if c.CacheSize <= 0 {
		errs = append(errs, errors.New("cache-size must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown-timeout must be positive"))
	}
	if c.HealthCheck && c.GRPCAddr == "" {
		errs = append(errs, errors.New("health-check requires grpc-addr"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log-level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}
