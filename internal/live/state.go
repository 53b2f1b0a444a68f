// Package live keeps the latest analysis results in memory for the read
// surfaces (HTTP API, socket RPC, dashboard).
package live

import (
	"sync"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

// Options sizes the in-memory history.
type Options struct {
	RecentAlerts int // transitions kept, newest last
	RateSamples  int // per-second rate samples kept
	Counters     func() model.Counters
}

// State is a thread-safe pipeline sink that remembers the latest stats
// snapshot, the active alert, recent alert transitions and rate samples.
type State struct {
	mu          sync.RWMutex
	opts        Options
	latest      *model.Stats
	current     *model.Alert
	transitions []model.AlertTransition
	rates       []model.RateSample
	buffered    int
	statsCount  int64
	errCount    int64
	lastErr     string
}

// NewState creates an empty state.
func NewState(opts Options) *State {
	if opts.RecentAlerts <= 0 {
		opts.RecentAlerts = model.DefaultRecentAlerts
	}
	if opts.RateSamples <= 0 {
		opts.RateSamples = model.DefaultRateSamples
	}
	return &State{opts: opts}
}

// OnStats records the latest stats snapshot.
func (s *State) OnStats(st *model.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = st
	s.statsCount++
}

// OnAlert records an alert transition.
func (s *State) OnAlert(t model.AlertTransition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch t.Kind {
	case model.TransitionStarted:
		a := t.Alert
		s.current = &a
	case model.TransitionRecovered:
		if s.current != nil && s.current.ID == t.Alert.ID {
			s.current = nil
		}
	}
	s.transitions = appendBounded(s.transitions, t, s.opts.RecentAlerts)
}

// OnError counts pipeline errors and keeps the last message.
func (s *State) OnError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errCount++
	s.lastErr = err.Error()
}

// OnRate records one per-second rate sample.
func (s *State) OnRate(sample model.RateSample, buffered int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = appendBounded(s.rates, sample, s.opts.RateSamples)
	s.buffered = buffered
}

// LatestStats returns the most recent snapshot, or nil before the first one.
func (s *State) LatestStats() (*model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, nil
}

// CurrentAlert returns a copy of the active alert, or nil when idle.
func (s *State) CurrentAlert() (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, nil
	}
	a := *s.current
	return &a, nil
}

// RecentAlerts returns up to limit transitions, newest first.
func (s *State) RecentAlerts(limit int) ([]model.AlertTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.transitions, limit), nil
}

// RateSamples returns up to limit rate samples in chronological order.
func (s *State) RateSamples(limit int) ([]model.RateSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.rates)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.RateSample, n)
	copy(out, s.rates[len(s.rates)-n:])
	return out, nil
}

// Counters merges ingestion counters with the pipeline's own.
func (s *State) Counters() (model.Counters, error) {
	var c model.Counters
	if s.opts.Counters != nil {
		c = s.opts.Counters()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c.Buffered = s.buffered
	c.StatsCount = s.statsCount
	return c, nil
}

// LastError returns the number of pipeline errors and the most recent message.
func (s *State) LastError() (int64, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errCount, s.lastErr
}

func appendBounded[T any](items []T, item T, limit int) []T {
	items = append(items, item)
	if len(items) > limit {
		// Shift down in place so the backing array does not grow without bound.
		n := copy(items, items[len(items)-limit:])
		items = items[:n]
	}
	return items
}

func newestFirst[T any](items []T, limit int) []T {
	n := len(items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, 0, n)
	for i := len(items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, items[i])
	}
	return out
}
