package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/periop-health/risk-engine/internal/api"
	cacheimpl "github.com/periop-health/risk-engine/internal/cache"
	"github.com/periop-health/risk-engine/internal/config"
	"github.com/periop-health/risk-engine/internal/database"
	"github.com/periop-health/risk-engine/internal/domain"
	"github.com/periop-health/risk-engine/internal/extractor"
	"github.com/periop-health/risk-engine/internal/literature"
	"github.com/periop-health/risk-engine/internal/medication"
	"github.com/periop-health/risk-engine/internal/ontology"
	"github.com/periop-health/risk-engine/internal/pooling"
	"github.com/periop-health/risk-engine/internal/risk"
	"github.com/periop-health/risk-engine/internal/service"
	auditrepo "github.com/periop-health/risk-engine/internal/audit"
)

const evidenceVersion = "v2026.01"

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("starting risk engine server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConfig := database.Config{
		Host: cfg.Database.Host, Port: cfg.Database.Port, Database: cfg.Database.Database,
		Username: cfg.Database.Username, Password: cfg.Database.Password,
		MaxConns: cfg.Database.MaxOpenConns, MinConns: cfg.Database.MaxIdleConns,
		MaxConnLife: cfg.Database.ConnMaxLifetime, MaxConnIdle: cfg.Database.ConnMaxLifetime,
		SSLMode: cfg.Database.SSLMode,
	}
	db, err := database.NewConnection(ctx, dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	migrationURL := (&url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Database.Username, cfg.Database.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port),
		Path:     "/" + cfg.Database.Database,
		RawQuery: "sslmode=" + url.QueryEscape(cfg.Database.SSLMode),
	}).String()
	migrationRunner, err := database.NewMigrationRunner(migrationURL, cfg.Database.MigrationsPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize migration runner")
	}
	if err := migrationRunner.Up(ctx); err != nil {
		logger.WithError(err).Fatal("failed to run database migrations")
	}

	store, err := ontology.NewStore(ontology.SeedTerms(), cfg.Cache.SynonymLRUSize)
	if err != nil {
		logger.WithError(err).Fatal("failed to build ontology store")
	}

	estimateRepo := database.NewEstimateRepository(db, logger)
	estimates, err := estimateRepo.LoadAll(ctx)
	if err != nil {
		logger.WithError(err).Fatal("failed to load estimates for evidence pooling")
	}
	snapshot, err := pooling.Build(estimates, evidenceVersion)
	if err != nil {
		logger.WithError(err).Fatal("failed to build initial evidence snapshot")
	}

	pooledCache, err := cacheimpl.New(cacheimpl.Config{
		RedisURL:    cfg.Cache.RedisURL,
		DefaultTTL:  cfg.Cache.DefaultTTL,
		MaxRetries:  cfg.Cache.MaxRetries,
		PoolSize:    cfg.Cache.PoolSize,
		PoolTimeout: cfg.Cache.PoolTimeout,
	})
	if err != nil {
		logger.WithError(err).Warn("pooled-table cache unavailable, continuing without it")
	} else {
		defer pooledCache.Close()
	}

	breakerConfig := literature.Config{
		BreakerMaxRequests: cfg.Literature.BreakerMaxRequests,
		BreakerInterval:    cfg.Literature.BreakerInterval,
		BreakerTimeout:     cfg.Literature.BreakerTimeout,
	}
	var fetcher literature.Fetcher = literature.NullFetcher{}
	if cfg.Literature.Enabled {
		fetcher = literature.NewHTTPFetcher(cfg.Literature.BaseURL, cfg.Literature.Timeout, cfg.Literature.RequestsPerSecond)
	}
	var literatureSource domain.LiteratureSource = literature.New(fetcher, breakerConfig)

	auditRecorder := auditrepo.New(db.Pool, logger)

	extract := extractor.New(store)
	riskCalculator := risk.New(store)
	decider := medication.New(store)

	var evidenceSnapshot domain.EvidenceSnapshot = snapshot
	engine := service.New(logger, extract, riskCalculator, decider, auditRecorder, literatureSource, evidenceSnapshot, cfg.Engine.RequestBudget)

	server := api.NewServer(configManager, engine)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutdown signal received, gracefully shutting down...")
		_ = migrationRunner.Close()
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("server failed to start")
	}

	logger.Info("server stopped")
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	}

	return logger
}
