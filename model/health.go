package model

import (
	"sync"
	"time"
)

// EndpointHealth is a point-in-time view of one model endpoint.
type EndpointHealth struct {
	// Available indicates if the endpoint is currently usable.
	Available bool `json:"available"`

	// LastSuccess is the time of the last successful request.
	LastSuccess time.Time `json:"last_success,omitempty"`

	// LastFailure is the time of the last failed request.
	LastFailure time.Time `json:"last_failure,omitempty"`

	// FailureCount is the number of consecutive failures.
	FailureCount int `json:"failure_count"`

	// CircuitOpen indicates if the circuit breaker has tripped.
	CircuitOpen bool `json:"circuit_open"`

	// CircuitOpenedAt is when the circuit was opened.
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
}

// HealthConfig tunes circuit breaking for oracle endpoints.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive failures before
	// the circuit opens.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit blocks an endpoint
	// before a trial request is allowed through.
	RecoveryTimeout time.Duration
}

// DefaultHealthConfig returns circuit-breaker defaults sized for the
// built-in registry. Capability chains there are short (gemini with at
// most two fallbacks), and every routing or planning call happens
// while a researcher waits on the turn, so circuits trip after two
// consecutive failures and let the deterministic fallbacks carry the
// conversation.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  45 * time.Second,
	}
}

// healthTracker records per-endpoint outcomes under a single lock.
type healthTracker struct {
	mu     sync.Mutex
	cfg    HealthConfig
	byName map[string]*EndpointHealth
}

func newHealthTracker(cfg HealthConfig) *healthTracker {
	return &healthTracker{cfg: cfg, byName: make(map[string]*EndpointHealth)}
}

func (t *healthTracker) entry(name string) *EndpointHealth {
	if h, ok := t.byName[name]; ok {
		return h
	}
	h := &EndpointHealth{Available: true}
	t.byName[name] = h
	return h
}

func (t *healthTracker) markSuccess(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.entry(name)
	h.LastSuccess = time.Now()
	h.FailureCount = 0
	h.Available = true
	h.CircuitOpen = false
}

func (t *healthTracker) markFailure(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.entry(name)
	h.LastFailure = time.Now()
	h.FailureCount++
	if h.FailureCount >= t.cfg.FailureThreshold {
		h.CircuitOpen = true
		h.CircuitOpenedAt = time.Now()
		h.Available = false
	}
}

func (t *healthTracker) available(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.byName[name]
	if !ok || !h.CircuitOpen {
		// Never-seen endpoints are assumed healthy.
		return true
	}
	// Past the recovery window one trial request may go through; the
	// circuit closes only when it succeeds.
	return time.Since(h.CircuitOpenedAt) > t.cfg.RecoveryTimeout
}

func (t *healthTracker) snapshot(name string) *EndpointHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.byName[name]
	if !ok {
		return nil
	}
	copied := *h
	return &copied
}

// tracker lazily initializes health tracking on the registry.
func (r *Registry) tracker() *healthTracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.health == nil {
		r.health = newHealthTracker(DefaultHealthConfig())
	}
	return r.health
}

// MarkEndpointSuccess records a successful request and closes the
// endpoint's circuit.
func (r *Registry) MarkEndpointSuccess(name string) {
	r.tracker().markSuccess(name)
}

// MarkEndpointFailure records a failed request, opening the circuit
// once the failure threshold is reached.
func (r *Registry) MarkEndpointFailure(name string) {
	r.tracker().markFailure(name)
}

// IsEndpointAvailable reports whether requests may go to an endpoint.
// An open circuit blocks it until the recovery timeout passes.
func (r *Registry) IsEndpointAvailable(name string) bool {
	r.mu.RLock()
	t := r.health
	r.mu.RUnlock()
	if t == nil {
		return true
	}
	return t.available(name)
}

// GetEndpointHealth returns a copy of an endpoint's health, or nil
// when the endpoint has never been marked.
func (r *Registry) GetEndpointHealth(name string) *EndpointHealth {
	r.mu.RLock()
	t := r.health
	r.mu.RUnlock()
	if t == nil {
		return nil
	}
	return t.snapshot(name)
}

// GetAvailableFallbackChain filters a capability's fallback chain to
// endpoints whose circuits are closed. When every endpoint in the
// chain is down the full chain comes back unfiltered, since trying a
// broken oracle still beats skipping the capability outright.
func (r *Registry) GetAvailableFallbackChain(cap Capability) []string {
	chain := r.GetFallbackChain(cap)
	available := make([]string, 0, len(chain))
	for _, name := range chain {
		if r.IsEndpointAvailable(name) {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return chain
	}
	return available
}

// SetHealthConfig replaces the circuit-breaker configuration. Existing
// endpoint records are kept.
func (r *Registry) SetHealthConfig(cfg HealthConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.health == nil {
		r.health = newHealthTracker(cfg)
		return
	}
	r.health.mu.Lock()
	r.health.cfg = cfg
	r.health.mu.Unlock()
}
