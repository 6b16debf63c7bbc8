// Package server exposes the claim pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ZanzyTHEbar/claimiq/internal/cost"
	"github.com/ZanzyTHEbar/claimiq/internal/database"
	apperrors "github.com/ZanzyTHEbar/claimiq/internal/errors"
	"github.com/ZanzyTHEbar/claimiq/internal/monitoring"
	"github.com/ZanzyTHEbar/claimiq/internal/pipeline"
	"github.com/ZanzyTHEbar/claimiq/internal/resilience"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

// ClaimStore is the persistence the HTTP layer reads and writes directly
type ClaimStore interface {
	CreateClaim(ctx context.Context, claim *types.Claim) error
	GetClaim(ctx context.Context, id string) (*types.Claim, error)
	ListClaims(ctx context.Context, limit int) ([]*types.Claim, error)
	Summary(ctx context.Context) (*database.AnalyticsSummary, error)
}

// Processor runs the pipeline for a claim
type Processor interface {
	Process(ctx context.Context, claimID string) (*pipeline.Result, error)
}

// VehicleCatalog lists the vehicles known to the pricing data
type VehicleCatalog interface {
	VehicleOptions(ctx context.Context) (map[string][]string, error)
}

// PoolReporter exposes connection pool statistics for /health
type PoolReporter interface {
	GetPoolStats() map[string]interface{}
}

// PricingReporter exposes the pricing snapshot state for /health
type PricingReporter interface {
	Status() cost.PricingStatus
}

type Dependencies struct {
	Claims    ClaimStore
	Processor Processor
	Vehicles  VehicleCatalog
	Health    *resilience.HealthRegistry
	Pool      PoolReporter
	Pricing   PricingReporter
	Metrics   *monitoring.Metrics
	Logger    *monitoring.Logger
}

type Config struct {
	Mode           string
	CORSOrigins    []string
	MaxImages      int
	ProcessTimeout time.Duration
	Version        string
}

// Server owns the gin engine and its handlers
type Server struct {
	deps   Dependencies
	cfg    Config
	engine *gin.Engine
}

// New builds the router with every middleware and route registered
func New(deps Dependencies, cfg Config) *Server {
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = 5
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if deps.Logger == nil {
		deps.Logger = monitoring.NewLogger(monitoring.ParseLevel("info"))
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	s := &Server{deps: deps, cfg: cfg, engine: gin.New()}
	s.routes()
	return s
}

// Handler returns the http.Handler serving every route
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine

	r.Use(requestID)
	r.Use(monitoring.MonitoringMiddleware(s.deps.Metrics, s.deps.Logger))
	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryHandler())
	r.Use(securityHeaders)

	corsConfig := cors.DefaultConfig()
	if len(s.cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = s.cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Request-ID")
	r.Use(cors.New(corsConfig))

	r.GET("/health", s.health)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Metrics.Registry(), promhttp.HandlerOpts{
			ErrorHandling: promhttp.HTTPErrorOnError,
		})))
	}

	v1 := r.Group("/api/v1", jsonBody)
	{
		v1.POST("/claims", s.createClaim)
		v1.GET("/claims", s.listClaims)
		v1.GET("/claims/vehicle-options", s.vehicleOptions)
		v1.GET("/claims/:id", s.getClaim)
		v1.POST("/claims/:id/process", s.processClaim)
		v1.GET("/analytics/summary", s.analyticsSummary)
	}
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("Starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.deps.Logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.deps.Logger.Info("Server exited")
	return nil
}

// respondError renders err with the status of its category
func respondError(c *gin.Context, err error) {
	appErr := apperrors.ToAppError(err)
	apperrors.LogError(c, appErr)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Response())
}
