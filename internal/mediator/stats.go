package mediator

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/drblury/relay/internal/mediator/jsoncodec"
)

// capabilityStats accumulates dispatch counters for one capability.
type capabilityStats struct {
	mu sync.Mutex

	calls    uint64
	failures uint64
	total    time.Duration
	min      time.Duration
	max      time.Duration
	lastErr  string
	lastAt   time.Time
}

func (s *capabilityStats) record(duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.total += duration
	if s.calls == 1 || duration < s.min {
		s.min = duration
	}
	if duration > s.max {
		s.max = duration
	}
	s.lastAt = time.Now()
	if err != nil {
		s.failures++
		s.lastErr = err.Error()
	}
}

// CapabilityStats is the read model served by the stats endpoint.
type CapabilityStats struct {
	Kind      string  `json:"kind"`
	Request   string  `json:"request"`
	Response  string  `json:"response,omitempty"`
	Calls     uint64  `json:"calls"`
	Failures  uint64  `json:"failures"`
	AvgMs     float64 `json:"avg_ms"`
	MinMs     float64 `json:"min_ms"`
	MaxMs     float64 `json:"max_ms"`
	LastError string  `json:"last_error,omitempty"`
	LastAt    string  `json:"last_at,omitempty"`
}

// dispatchStats tracks counters for every capability the mediator has
// dispatched, independent of whether Prometheus metrics are enabled.
type dispatchStats struct {
	mu      sync.RWMutex
	entries map[CapabilityKey]*capabilityStats
}

func newDispatchStats() *dispatchStats {
	return &dispatchStats{entries: make(map[CapabilityKey]*capabilityStats)}
}

func (s *dispatchStats) capability(key CapabilityKey) *capabilityStats {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[key]; ok {
		return entry
	}
	entry = &capabilityStats{}
	s.entries[key] = entry
	return entry
}

func (s *dispatchStats) snapshot() []CapabilityStats {
	s.mu.RLock()
	keys := make([]CapabilityKey, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	views := make([]CapabilityStats, 0, len(keys))
	for _, key := range keys {
		entry := s.capability(key)

		entry.mu.Lock()
		view := CapabilityStats{
			Kind:      key.Kind.String(),
			Request:   typeName(key.Request),
			Response:  typeName(key.Response),
			Calls:     entry.calls,
			Failures:  entry.failures,
			MinMs:     float64(entry.min) / float64(time.Millisecond),
			MaxMs:     float64(entry.max) / float64(time.Millisecond),
			LastError: entry.lastErr,
		}
		if entry.calls > 0 {
			view.AvgMs = float64(entry.total) / float64(entry.calls) / float64(time.Millisecond)
		}
		if !entry.lastAt.IsZero() {
			view.LastAt = entry.lastAt.Format(time.RFC3339)
		}
		entry.mu.Unlock()

		views = append(views, view)
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].Kind != views[j].Kind {
			return views[i].Kind < views[j].Kind
		}
		return views[i].Request < views[j].Request
	})
	return views
}

// Stats returns a point-in-time snapshot of per-capability dispatch counters.
func (m *Mediator) Stats() []CapabilityStats {
	return m.stats.snapshot()
}

// StatsHandler serves the dispatch counters as JSON, for wiring into an
// operational HTTP mux.
func (m *Mediator) StatsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := jsoncodec.MarshalIndent(m.stats.snapshot(), "", "  ")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
}
