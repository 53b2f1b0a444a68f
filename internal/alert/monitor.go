// Package alert watches the overall request rate over a trailing window and
// raises a high-traffic alert when its average exceeds a threshold.
package alert

import (
	"github.com/google/uuid"

	"github.com/tinytelemetry/trafficwatch/internal/model"
	"github.com/tinytelemetry/trafficwatch/internal/window"
)

// Monitor is a two-state machine (idle, active) driven by the records pushed
// into its trailing window. It is owned by a single goroutine.
type Monitor struct {
	buffer    *window.Buffer
	window    int64
	threshold float64
	current   *model.Alert
	newID     func() string
}

// NewMonitor creates a monitor averaging over windowSeconds and alerting when
// the average exceeds threshold requests per second.
func NewMonitor(windowSeconds int64, threshold float64) *Monitor {
	return &Monitor{
		buffer:    window.New(),
		window:    windowSeconds,
		threshold: threshold,
		newID:     uuid.NewString,
	}
}

// Push inserts r and evicts records that fell out of the trailing window.
func (m *Monitor) Push(r model.LogRecord) {
	m.buffer.Push(r)
	m.buffer.EvictOlderThan(m.window)
}

// Evaluate checks the window and returns the transition that fired, if any.
//
// The average divides by the configured window, not by the seconds actually
// covered, and nothing fires until the buffer covers at least window-1 seconds.
func (m *Monitor) Evaluate() *model.AlertTransition {
	newest, ok := m.buffer.Newest()
	if !ok {
		return nil
	}
	covered := m.buffer.Span() >= m.window-1
	avg := m.AverageRate()

	switch {
	case m.current == nil && covered && avg > m.threshold:
		m.current = model.NewAlert(m.newID(), newest.Timestamp, avg)
		return &model.AlertTransition{Kind: model.TransitionStarted, Alert: *m.current}

	case m.current != nil && covered && avg < m.threshold:
		if !m.current.Recover(newest.Timestamp) {
			return nil
		}
		t := &model.AlertTransition{Kind: model.TransitionRecovered, Alert: *m.current}
		m.current = nil
		return t
	}
	return nil
}

// CurrentAlert returns a copy of the active alert, or nil when idle.
func (m *Monitor) CurrentAlert() *model.Alert {
	if m.current == nil {
		return nil
	}
	a := *m.current
	return &a
}

// CurrentCount returns the number of records inside the window.
func (m *Monitor) CurrentCount() int {
	return m.buffer.Len()
}

// AverageRate returns the current average requests per second.
func (m *Monitor) AverageRate() float64 {
	if m.window <= 0 {
		return 0
	}
	return float64(m.buffer.Len()) / float64(m.window)
}

// Window returns the configured window length in seconds.
func (m *Monitor) Window() int64 {
	return m.window
}

// Threshold returns the configured threshold in requests per second.
func (m *Monitor) Threshold() float64 {
	return m.threshold
}
