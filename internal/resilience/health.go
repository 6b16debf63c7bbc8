package resilience

import (
	"sort"
	"sync"
	"time"
)

// ProviderHealth is the last observed condition of one provider
type ProviderHealth struct {
	Name                string    `json:"name"`
	Available           bool      `json:"available"`
	BreakerState        string    `json:"breaker_state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalCalls          int64     `json:"total_calls"`
	TotalFailures       int64     `json:"total_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
}

// HealthRegistry tracks provider health for the health endpoint.
// A nil registry ignores every call.
type HealthRegistry struct {
	mu        sync.RWMutex
	providers map[string]*ProviderHealth
	now       func() time.Time
}

// NewHealthRegistry creates an empty registry
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{
		providers: make(map[string]*ProviderHealth),
		now:       time.Now,
	}
}

// Register adds a provider in the available state
func (h *HealthRegistry) Register(name string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.getOrCreate(name)
}

func (h *HealthRegistry) getOrCreate(name string) *ProviderHealth {
	ph, ok := h.providers[name]
	if !ok {
		ph = &ProviderHealth{Name: name, Available: true, BreakerState: StateClosed.String()}
		h.providers[name] = ph
	}
	return ph
}

// Record notes the outcome of one provider call
func (h *HealthRegistry) Record(name string, err error) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := h.getOrCreate(name)
	ph.TotalCalls++
	if err == nil {
		ph.ConsecutiveFailures = 0
		ph.LastSuccess = h.now()
		ph.Available = ph.BreakerState != StateOpen.String()
		return
	}
	ph.TotalFailures++
	ph.ConsecutiveFailures++
	ph.LastError = err.Error()
	ph.LastFailure = h.now()
}

// SetBreakerState mirrors a breaker transition
func (h *HealthRegistry) SetBreakerState(name string, state CircuitBreakerState) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := h.getOrCreate(name)
	ph.BreakerState = state.String()
	ph.Available = state != StateOpen
}

// Snapshot returns a copy of every provider's health sorted by name
func (h *HealthRegistry) Snapshot() []ProviderHealth {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ProviderHealth, 0, len(h.providers))
	for _, ph := range h.providers {
		out = append(out, *ph)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsAvailable reports whether the named provider is not behind an open breaker
func (h *HealthRegistry) IsAvailable(name string) bool {
	if h == nil {
		return true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	ph, ok := h.providers[name]
	return !ok || ph.Available
}
