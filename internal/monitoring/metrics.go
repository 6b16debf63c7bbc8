package monitoring

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector exported by the service
type Metrics struct {
	RunsTotal           *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec
	ProviderCalls       *prometheus.CounterVec
	DecisionsTotal      *prometheus.CounterVec
	FraudScore          prometheus.Histogram
	PricingTierTotal    *prometheus.CounterVec
	CacheRefreshTotal   *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	registry            *prometheus.Registry
}

// NewMetrics creates the collectors and registers them on registry
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) initMetrics() {
	m.RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claimiq_pipeline_runs_total",
		Help: "Total number of pipeline runs by outcome.",
	}, []string{"outcome"})

	m.StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "claimiq_pipeline_stage_duration_seconds",
		Help:    "Duration of pipeline stages in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"stage"})

	m.ProviderCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claimiq_provider_calls_total",
		Help: "Total number of external provider calls by provider and outcome.",
	}, []string{"provider", "outcome"})

	m.DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claimiq_decisions_total",
		Help: "Total number of decisions by outcome.",
	}, []string{"decision"})

	m.FraudScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "claimiq_fraud_score",
		Help:    "Distribution of composite fraud scores.",
		Buckets: []float64{10, 25, 50, 60, 75, 80, 90, 100},
	})

	m.PricingTierTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claimiq_pricing_tier_resolutions_total",
		Help: "Cost line items by the pricing tier that resolved them.",
	}, []string{"tier"})

	m.CacheRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claimiq_cache_refresh_total",
		Help: "Cache refreshes by cache and outcome.",
	}, []string{"cache", "outcome"})

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "claimiq_circuit_breaker_state",
		Help: "Circuit breaker state per provider (0 closed, 1 open, 2 half-open).",
	}, []string{"provider"})

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claimiq_http_requests_total",
		Help: "Total HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "claimiq_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordRun counts a finished pipeline run
func (m *Metrics) RecordRun(ok bool) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome(ok)).Inc()
}

// RecordConflict counts a run refused because the claim was busy or done
func (m *Metrics) RecordConflict() {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues("conflict").Inc()
}

// ObserveStage records how long a pipeline stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordProviderCall counts a provider call
func (m *Metrics) RecordProviderCall(provider string, ok bool) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, outcome(ok)).Inc()
}

// RecordDecision counts a decision and observes its fraud score
func (m *Metrics) RecordDecision(decision string, fraudScore int) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(decision).Inc()
	m.FraudScore.Observe(float64(fraudScore))
}

// RecordPricingTier counts the tier that priced a line item
func (m *Metrics) RecordPricingTier(tier string) {
	if m == nil {
		return
	}
	m.PricingTierTotal.WithLabelValues(tier).Inc()
}

// RecordCacheRefresh counts a cache refresh attempt
func (m *Metrics) RecordCacheRefresh(cache string, ok bool) {
	if m == nil {
		return
	}
	m.CacheRefreshTotal.WithLabelValues(cache, outcome(ok)).Inc()
}

// SetCircuitBreakerState publishes the breaker state for a provider
func (m *Metrics) SetCircuitBreakerState(provider string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordHTTPRequest counts and times an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.StageDuration,
		m.ProviderCalls,
		m.DecisionsTotal,
		m.FraudScore,
		m.PricingTierTotal,
		m.CacheRefreshTotal,
		m.CircuitBreakerState,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	}
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}
