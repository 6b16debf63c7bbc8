package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ZanzyTHEbar/claimiq/internal/config"
	"github.com/ZanzyTHEbar/claimiq/internal/cost"
	"github.com/ZanzyTHEbar/claimiq/internal/database"
	apperrors "github.com/ZanzyTHEbar/claimiq/internal/errors"
	"github.com/ZanzyTHEbar/claimiq/internal/fraud"
	"github.com/ZanzyTHEbar/claimiq/internal/monitoring"
	"github.com/ZanzyTHEbar/claimiq/internal/pipeline"
	"github.com/ZanzyTHEbar/claimiq/internal/providers"
	"github.com/ZanzyTHEbar/claimiq/internal/resilience"
)

// app holds every wired component for one command invocation
type app struct {
	db           *database.DB
	repo         *database.Repository
	catalog      *cost.Catalog
	orchestrator *pipeline.Orchestrator
	health       *resilience.HealthRegistry
	metrics      *monitoring.Metrics
}

func newApp(ctx context.Context, cfg *config.Config, logger *monitoring.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := monitoring.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	db, err := database.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	repo := database.NewRepository(db)

	health := resilience.NewHealthRegistry()
	client := func(pc resilience.ProviderConfig) *resilience.ProviderClient {
		return resilience.NewProviderClient(pc,
			resilience.WithMetrics(metrics),
			resilience.WithLogger(logger),
			resilience.WithHealth(health),
		)
	}

	catalog := cost.NewCatalog(repo, cfg.Pricing.TTL, metrics, logger)

	// image refs are absolute URLs, so the fetcher works without a base URL
	imagesCfg, ok := cfg.Provider(config.ProviderImages)
	if !ok {
		imagesCfg = resilience.ProviderConfig{Name: config.ProviderImages, Retry: resilience.DefaultRetryConfig()}
		if p, found := cfg.Providers[config.ProviderImages]; found {
			imagesCfg.Timeout = p.Timeout
			imagesCfg.RatePerSecond = p.RatePerSecond
			imagesCfg.Burst = p.Burst
		}
	}
	images := providers.NewImageFetcher(client(imagesCfg))

	var scorerOpts []fraud.Option
	if pc, ok := cfg.Provider(config.ProviderEmbedder); ok {
		scorerOpts = append(scorerOpts, fraud.WithEmbedding(providers.NewEmbedderClient(client(pc)), repo))
	} else {
		logger.Warn("Embedding provider not configured, image reuse falls back to perceptual hashes")
	}
	scorer := fraud.NewScorer(cfg.Fraud, images, repo, logger, scorerOpts...)

	deps := pipeline.Dependencies{
		Store:     repo,
		Estimator: cost.NewEstimator(catalog, metrics),
		Scorer:    scorer,
		Metrics:   metrics,
		Logger:    logger,
	}
	if pc, ok := cfg.Provider(config.ProviderDetector); ok {
		deps.Detector = providers.NewDetectorClient(client(pc))
	} else {
		logger.Warn("Detector not configured, every run will fail until it is")
	}
	if pc, ok := cfg.Provider(config.ProviderExplainer); ok {
		deps.Explainer = providers.NewExplainerClient(client(pc), cfg.Providers[config.ProviderExplainer].Model)
	}
	if pc, ok := cfg.Provider(config.ProviderStorage); ok {
		deps.Uploader = providers.NewObjectStore(client(pc), pc.BaseURL)
	}

	orchestrator := pipeline.New(deps, pipeline.Config{
		MaxConcurrency: cfg.Pipeline.MaxConcurrency,
		StageTimeout:   cfg.Pipeline.StageTimeout,
	})

	return &app{
		db:           db,
		repo:         repo,
		catalog:      catalog,
		orchestrator: orchestrator,
		health:       health,
		metrics:      metrics,
	}, nil
}

func (a *app) Close() {
	apperrors.SafeClose(a.db, "database")
}
