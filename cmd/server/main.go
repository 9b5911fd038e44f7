package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"scip/internal/anchor"
	"scip/internal/config"
	"scip/internal/logger"
	"scip/internal/metrics"
	"scip/internal/repository"
	"scip/internal/revocation"
	"scip/internal/risk"
	"scip/internal/server"
	"scip/internal/service"
)

func main() {
	cfgPath := flag.String("config", envOr("SCIP_CONFIG", "configs/config.yml"), "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Environment: cfg.Logging.Environment,
		Level:       cfg.Logging.Level,
		ServiceName: "scip",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	// Database connection
	db, err := repository.Open(cfg.Database.Driver, cfg.Database.URL, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
		log.Info("Database closed")
	}()

	if err := repository.MigrateDB(db, log); err != nil {
		return err
	}

	var revoked revocation.Store = revocation.NewMemory()
	if cfg.Redis.Enabled {
		revoked, err = revocation.NewRedis(revocation.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			return err
		}
		log.Info("Token revocation backed by Redis", zap.String("addr", cfg.Redis.Addr))
	}
	defer revoked.Close()

	anchorer, err := anchor.New(cfg.Anchor, log)
	if err != nil {
		return err
	}

	estimator, err := risk.NewKeywordEstimator(cfg.Risk)
	if err != nil {
		return err
	}

	var (
		m        *metrics.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		gatherer = reg
	}

	// Initialize repositories and services
	evaluationRepo := repository.NewEvaluationRepository(db, log)
	authService := service.NewAuthService(service.AuthConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		TokenTTL: cfg.Auth.TokenTTL,
		Issuer:   cfg.Auth.Issuer,
	}, repository.NewAuthRepository(db, log), revoked, log)
	evaluationService := service.NewEvaluationService(service.EvaluationConfig{
		Threshold:     cfg.Risk.Threshold,
		AnchorTimeout: cfg.Anchor.Timeout,
		RecordTimeout: cfg.Server.RecordTimeout,
	}, estimator, anchorer, evaluationRepo, m, log)
	auditService := service.NewAuditService(evaluationRepo, log)

	srv := server.NewServer(server.Options{
		Auth:        authService,
		Evaluations: evaluationService,
		Audit:       auditService,
		Ping:        func(ctx context.Context) error { return repository.Ping(ctx, db) },
		AnchorState: func() string { return anchorer.State().String() },
		Metrics:     gatherer,
		MetricsPath: cfg.Metrics.Path,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, log)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("SCIP is running",
		zap.String("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Driver),
		zap.String("anchor", cfg.Anchor.Backend),
		zap.Float64("threshold", cfg.Risk.Threshold),
		zap.Int("indicators", len(cfg.Risk.Indicators)))

	return srv.Run(ctx, ":"+cfg.Server.Port, cfg.Server.ShutdownTimeout)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
