package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/ZanzyTHEbar/claimiq/internal/errors"
	"github.com/ZanzyTHEbar/claimiq/internal/monitoring"
)

const defaultMaxResponseBytes = 16 << 20

// ProviderConfig describes one external HTTP provider
type ProviderConfig struct {
	Name             string
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	RatePerSecond    float64
	Burst            int
	MaxResponseBytes int64
	Retry            RetryConfig
	Breaker          CircuitBreakerConfig
}

// ProviderClient is an HTTP client for one provider that applies a per-call
// timeout, a token-bucket rate limit, a circuit breaker and retries
type ProviderClient struct {
	cfg     ProviderConfig
	http    *http.Client
	limiter *rate.Limiter
	breaker *CircuitBreaker
	metrics *monitoring.Metrics
	logger  *monitoring.Logger
	health  *HealthRegistry
}

// ClientOption configures a ProviderClient
type ClientOption func(*ProviderClient)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(p *ProviderClient) { p.http = c }
}

// WithMetrics reports calls and breaker state to Prometheus
func WithMetrics(m *monitoring.Metrics) ClientOption {
	return func(p *ProviderClient) { p.metrics = m }
}

// WithLogger sets the logger used for call logging
func WithLogger(l *monitoring.Logger) ClientOption {
	return func(p *ProviderClient) { p.logger = l }
}

// WithHealth records call outcomes in a health registry
func WithHealth(h *HealthRegistry) ClientOption {
	return func(p *ProviderClient) { p.health = h }
}

// NewProviderClient builds a client for cfg
func NewProviderClient(cfg ProviderConfig, opts ...ClientOption) *ProviderClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	p := &ProviderClient{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: rate.NewLimiter(limit, burst),
	}
	for _, opt := range opts {
		opt(p)
	}

	userHook := cfg.Breaker.OnStateChange
	cfg.Breaker.OnStateChange = func(from, to CircuitBreakerState) {
		p.metrics.SetCircuitBreakerState(cfg.Name, int(to))
		p.health.SetBreakerState(cfg.Name, to)
		if p.logger != nil {
			p.logger.Warn("Circuit breaker state changed", "provider", cfg.Name, "from", from.String(), "to", to.String())
		}
		if userHook != nil {
			userHook(from, to)
		}
	}
	p.breaker = NewCircuitBreaker(cfg.Breaker)
	p.health.Register(cfg.Name)

	return p
}

// Name is the provider name used in logs and metrics
func (p *ProviderClient) Name() string { return p.cfg.Name }

// Breaker exposes the provider's circuit breaker
func (p *ProviderClient) Breaker() *CircuitBreaker { return p.breaker }

// Request describes one provider call
type Request struct {
	Method      string
	Path        string // joined to BaseURL unless it is an absolute URL
	Body        []byte
	ContentType string
	Headers     map[string]string
}

// Do performs req with retries and returns the response body of a 2xx reply
func (p *ProviderClient) Do(ctx context.Context, req Request) ([]byte, error) {
	start := time.Now()
	var body []byte

	err := RetryWithConfig(ctx, p.cfg.Retry, func() error {
		var attemptErr error
		body, attemptErr = p.attempt(ctx, req)
		return attemptErr
	})

	ok := err == nil
	p.metrics.RecordProviderCall(p.cfg.Name, ok)
	p.health.Record(p.cfg.Name, err)
	if p.logger != nil {
		p.logger.ProviderLogger(p.cfg.Name, req.Method+" "+req.Path, time.Since(start), ok)
	}

	if err != nil {
		return nil, err
	}
	return body, nil
}

// DoJSON sends in as JSON (when non-nil) and decodes the reply into out (when non-nil)
func (p *ProviderClient) DoJSON(ctx context.Context, method, path string, in, out any) error {
	req := Request{Method: method, Path: path, Headers: map[string]string{"Accept": "application/json"}}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", p.cfg.Name, err)
		}
		req.Body = payload
		req.ContentType = "application/json"
	}

	body, err := p.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", p.cfg.Name, err)
	}
	return nil
}

func (p *ProviderClient) attempt(ctx context.Context, req Request) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body []byte
	var permanent error

	err := p.breaker.Call(func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()

		httpReq, err := p.newRequest(callCtx, req)
		if err != nil {
			permanent = err
			return nil
		}

		resp, err := p.http.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				permanent = ctx.Err()
				return nil
			}
			return apperrors.NewProviderDegradedError(p.cfg.Name, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxResponseBytes+1))
		if err != nil {
			return apperrors.NewProviderDegradedError(p.cfg.Name, err)
		}
		if int64(len(data)) > p.cfg.MaxResponseBytes {
			permanent = fmt.Errorf("%s response exceeds %d bytes", p.cfg.Name, p.cfg.MaxResponseBytes)
			return nil
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			httpErr := NewHTTPError(resp.StatusCode, resp.Status, truncate(string(data), 256))
			if isRetryableHTTPStatus(resp.StatusCode) {
				return httpErr
			}
			permanent = httpErr
			return nil
		}

		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	if permanent != nil {
		return nil, permanent
	}
	return body, nil
}

func (p *ProviderClient) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := req.Path
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = strings.TrimRight(p.cfg.BaseURL, "/") + "/" + strings.TrimLeft(req.Path, "/")
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", p.cfg.Name, err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
