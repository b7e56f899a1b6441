package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/agri-inference/internal/auth"
	"github.com/example/agri-inference/internal/config"
	"github.com/example/agri-inference/internal/grpchealth"
	"github.com/example/agri-inference/internal/handlers"
	"github.com/example/agri-inference/internal/logging"
	"github.com/example/agri-inference/internal/market"
	"github.com/example/agri-inference/internal/predictor"
	"github.com/example/agri-inference/internal/registry"
	"github.com/example/agri-inference/internal/repository"
	"github.com/example/agri-inference/internal/storage"
	"github.com/example/agri-inference/internal/usecase"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		config.Usage(os.Stdout)
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.HealthCheck {
		if !checkHealth(cfg.GRPCAddr, logger) {
			logger.Sync() //nolint:errcheck
			os.Exit(1)
		}
		return
	}

	if err := predictor.InitRuntime(cfg.ONNXRuntimeLib); err != nil {
		logger.Fatal("failed to initialise onnxruntime", zap.Error(err))
	}
	defer predictor.ShutdownRuntime() //nolint:errcheck

	models, err := registry.Load(registry.Config{ModelDir: cfg.ModelDir, CatalogPath: cfg.CatalogPath}, predictor.OpenONNX, logger)
	if err != nil {
		logger.Fatal("failed to load models", zap.Error(err))
	}
	defer models.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var audit usecase.AuditRepository
	if cfg.DatabaseDSN != "" {
		repo := repository.NewPredictionRepository(initDatabase(ctx, cfg.DatabaseDSN, logger), logger)
		if err := repo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		audit = repo
	} else {
		logger.Info("prediction audit disabled")
	}

	var cache usecase.Cache
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		cache = usecase.NewRedisCache(initRedis(redisCtx, cfg.RedisAddr, logger))
	} else {
		cache = usecase.NewLRUCache(cfg.CacheSize, cfg.CacheTTL)
	}

	uploads, err := storage.NewUploadStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal("failed to prepare upload store", zap.Error(err))
	}

	uc := usecase.NewPredictionUseCase(models, cache, audit, logger, usecase.WithCacheTTL(cfg.CacheTTL))

	deps := handlers.Dependencies{
		Predictions:   uc,
		Models:        models,
		Uploads:       uploads,
		MaxUploadSize: cfg.MaxUploadBytes,
		Logger:        logger,
	}
	if cfg.GeminiAPIKey != "" {
		prices, err := market.New(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			logger.Fatal("failed to create market price client", zap.Error(err))
		}
		defer prices.Close() //nolint:errcheck
		deps.Market = prices
	}
	if cfg.JWTSecret != "" {
		deps.AdminAuth = auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience, auth.ScopePredictionsRead)
	} else {
		logger.Warn("JWT secret not set, admin endpoints are unauthenticated")
	}

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("failed to listen for gRPC health", zap.Error(err))
		}
		healthServer := grpchealth.New(models.Status(), logger)
		go func() {
			if err := healthServer.Serve(lis); err != nil {
				logger.Error("gRPC health server stopped", zap.Error(err))
			}
		}()
		defer healthServer.Shutdown()
	}

	tmpl, err := handlers.LoadTemplates()
	if err != nil {
		logger.Fatal("failed to parse templates", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), handlers.AccessLog(logger), handlers.CORS())
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	r.SetHTMLTemplate(tmpl)
	handlers.RegisterRoutes(r, deps)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("agri inference API listening", zap.String("addr", cfg.Addr))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
	}
}

func checkHealth(addr string, logger *zap.Logger) bool {
	status, err := grpchealth.Check(context.Background(), grpchealth.Target(addr), "", logger)
	if err != nil {
		return false
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		logger.Warn("service not serving", zap.String("status", status.String()))
		return false
	}
	return true
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
