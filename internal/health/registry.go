// Package health tracks per-source reliability: one circuit breaker and one
// rolling-statistics record per registered source, aggregate summaries, and
// typed health-change notifications.
package health

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/feedsentinel/internal/breaker"
	"github.com/ppiankov/feedsentinel/internal/feed"
)

// Status is the derived health status of a source.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// maxResponseSamples bounds the rolling latency ring per source.
const maxResponseSamples = 10

// nowFunc is the clock used for stats timestamps. Overridden in tests.
var nowFunc = time.Now

// SourceHealth is a computed snapshot of one source's health. It is never
// stored; every call derives it from the breaker and stats.
type SourceHealth struct {
	SourceID             string     `json:"source_id"`
	Name                 string     `json:"name"`
	Status               Status     `json:"status"`
	CircuitState         string     `json:"circuit_state"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	ConsecutiveSuccesses int        `json:"consecutive_successes"`
	UptimePct            float64    `json:"uptime_pct"`
	AvgResponseTimeMs    *float64   `json:"avg_response_time_ms,omitempty"`
	TotalRequests        int64      `json:"total_requests"`
	TotalFailures        int64      `json:"total_failures"`
	LastSuccess          *time.Time `json:"last_success,omitempty"`
	LastFailure          *time.Time `json:"last_failure,omitempty"`
	LastError            string     `json:"last_error,omitempty"`
}

// SourceStatus is one row in the health summary.
type SourceStatus struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Summary aggregates health across all registered sources.
type Summary struct {
	TotalSources     int            `json:"total_sources"`
	HealthySources   int            `json:"healthy_sources"`
	DegradedSources  int            `json:"degraded_sources"`
	UnhealthySources int            `json:"unhealthy_sources"`
	OverallStatus    Status         `json:"overall_status"`
	Sources          []SourceStatus `json:"sources"`
}

// stats tracks rolling reliability numbers for one source.
type stats struct {
	totalRequests int64
	totalFailures int64
	lastSuccess   time.Time
	lastFailure   time.Time
	lastError     string
	responseTimes []time.Duration // most recent samples, oldest evicted first
}

// entry pairs a source with its breaker and stats. Each entry carries its
// own lock so concurrent updates to different sources never contend.
type entry struct {
	mu      sync.Mutex
	source  feed.Source
	breaker *breaker.Breaker
	stats   stats
}

// Registry owns one circuit breaker and one rolling-statistics record per
// registered source. It is explicitly constructed and passed by reference;
// independent registries can coexist. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	cfg     breaker.Config
	entries map[string]*entry

	subMu sync.Mutex
	subs  []chan Event
}

// NewRegistry creates an empty registry whose breakers use cfg.
func NewRegistry(cfg breaker.Config) *Registry {
	return &Registry{cfg: cfg, entries: make(map[string]*entry)}
}

// Register adds a source with a fresh breaker and zeroed stats. Registering
// an already-known id is a no-op.
func (r *Registry) Register(src feed.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[src.ID]; ok {
		return
	}
	r.entries[src.ID] = &entry{source: src, breaker: breaker.New(r.cfg)}
}

// Unregister removes all state for the id. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Reconcile applies a configuration snapshot: sources missing from the
// registry are registered, sources no longer present are unregistered.
// Returns the applied added/removed ids.
func (r *Registry) Reconcile(sources []feed.Source) (added, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]feed.Source, len(sources))
	for _, s := range sources {
		want[s.ID] = s
	}

	for id := range r.entries {
		if _, ok := want[id]; !ok {
			delete(r.entries, id)
			removed = append(removed, id)
		}
	}
	for id, s := range want {
		if _, ok := r.entries[id]; !ok {
			r.entries[id] = &entry{source: s, breaker: breaker.New(r.cfg)}
			added = append(added, id)
		}
	}

	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// CanRequest reports whether a request to the source should be attempted.
// Unknown ids are reported as not requestable rather than an error.
func (r *Registry) CanRequest(id string) bool {
	e := r.entry(id)
	if e == nil {
		return false
	}
	return e.breaker.CanExecute()
}

// RecordSuccess updates the breaker and stats for a successful request.
// A negative latency means no sample was measured. Emits a source.healthy
// notification.
func (r *Registry) RecordSuccess(id string, latency time.Duration) {
	e := r.entry(id)
	if e == nil {
		return
	}

	e.mu.Lock()
	e.breaker.RecordSuccess()
	e.stats.totalRequests++
	e.stats.lastSuccess = nowFunc()
	if latency >= 0 {
		e.stats.responseTimes = append(e.stats.responseTimes, latency)
		if n := len(e.stats.responseTimes); n > maxResponseSamples {
			e.stats.responseTimes = e.stats.responseTimes[n-maxResponseSamples:]
		}
	}
	e.mu.Unlock()

	r.emit(Event{Type: EventSourceHealthy, SourceID: id, At: nowFunc()})
}

// RecordFailure updates the breaker and stats for a failed request. When
// the failure opens the circuit it emits source.unhealthy and
// circuit.opened; otherwise source.degraded with the current streak.
func (r *Registry) RecordFailure(id, reason string) {
	e := r.entry(id)
	if e == nil {
		return
	}

	e.mu.Lock()
	e.breaker.RecordFailure(reason)
	e.stats.totalRequests++
	e.stats.totalFailures++
	e.stats.lastFailure = nowFunc()
	e.stats.lastError = reason
	m := e.breaker.Metrics()
	e.mu.Unlock()

	if m.State == breaker.StateOpen {
		r.emit(Event{Type: EventSourceUnhealthy, SourceID: id, Reason: reason, Failures: m.FailureCount, At: nowFunc()})
		r.emit(Event{Type: EventCircuitOpened, SourceID: id, Reason: reason, Failures: m.FailureCount, At: nowFunc()})
		return
	}
	r.emit(Event{Type: EventSourceDegraded, SourceID: id, Reason: reason, Failures: m.FailureCount, At: nowFunc()})
}

// ResetSource forces the source's breaker closed and emits circuit.closed.
// Reports whether the id was registered.
func (r *Registry) ResetSource(id string) bool {
	e := r.entry(id)
	if e == nil {
		return false
	}

	e.mu.Lock()
	e.breaker.Reset()
	e.mu.Unlock()

	r.emit(Event{Type: EventCircuitClosed, SourceID: id, At: nowFunc()})
	return true
}

// SourceHealth computes the health snapshot for one source.
func (r *Registry) SourceHealth(id string) (SourceHealth, bool) {
	e := r.entry(id)
	if e == nil {
		return SourceHealth{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health(), true
}

// AllSourceHealth computes snapshots for every registered source, ordered
// by source id for stable output.
func (r *Registry) AllSourceHealth() []SourceHealth {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]SourceHealth, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.health())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Summary counts sources by status. Overall status is unhealthy only when
// every source is unhealthy, degraded when any source is degraded or
// unhealthy, and healthy otherwise (including an empty registry).
func (r *Registry) Summary() Summary {
	all := r.AllSourceHealth()
	s := Summary{TotalSources: len(all), OverallStatus: StatusHealthy}

	for _, h := range all {
		row := SourceStatus{ID: h.SourceID, Name: h.Name, Status: h.Status}
		switch h.Status {
		case StatusHealthy:
			s.HealthySources++
		case StatusDegraded:
			s.DegradedSources++
			row.Message = fmt.Sprintf("probing recovery after %d failures", h.ConsecutiveFailures)
		case StatusUnhealthy:
			s.UnhealthySources++
			row.Message = h.LastError
		}
		s.Sources = append(s.Sources, row)
	}

	switch {
	case s.TotalSources > 0 && s.UnhealthySources == s.TotalSources:
		s.OverallStatus = StatusUnhealthy
	case s.UnhealthySources > 0 || s.DegradedSources > 0:
		s.OverallStatus = StatusDegraded
	}
	return s
}

// Subscribe returns a channel of health-change events. Delivery is
// best-effort: events are dropped for subscribers that fall behind.
func (r *Registry) Subscribe() <-chan Event {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	ch := make(chan Event, eventBuffer)
	r.subs = append(r.subs, ch)
	return ch
}

func (r *Registry) emit(ev Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default: // subscriber lagging
		}
	}
}

func (r *Registry) entry(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

// statusOf maps a circuit state to a health status.
func statusOf(s breaker.State) Status {
	switch s {
	case breaker.StateOpen:
		return StatusUnhealthy
	case breaker.StateHalfOpen:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// health derives the snapshot. Caller must hold e.mu.
func (e *entry) health() SourceHealth {
	m := e.breaker.Metrics()

	h := SourceHealth{
		SourceID:             e.source.ID,
		Name:                 e.source.Name,
		Status:               statusOf(m.State),
		CircuitState:         m.State.String(),
		ConsecutiveFailures:  m.FailureCount,
		ConsecutiveSuccesses: m.SuccessCount,
		UptimePct:            100,
		TotalRequests:        e.stats.totalRequests,
		TotalFailures:        e.stats.totalFailures,
		LastError:            e.stats.lastError,
	}

	if e.stats.totalRequests > 0 {
		h.UptimePct = float64(e.stats.totalRequests-e.stats.totalFailures) / float64(e.stats.totalRequests) * 100
	}
	if n := len(e.stats.responseTimes); n > 0 {
		var total time.Duration
		for _, d := range e.stats.responseTimes {
			total += d
		}
		avg := float64(total) / float64(n) / float64(time.Millisecond)
		h.AvgResponseTimeMs = &avg
	}
	if !e.stats.lastSuccess.IsZero() {
		t := e.stats.lastSuccess
		h.LastSuccess = &t
	}
	if !e.stats.lastFailure.IsZero() {
		t := e.stats.lastFailure
		h.LastFailure = &t
	}
	return h
}
