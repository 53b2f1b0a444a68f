// Package stats aggregates access records into per-section traffic snapshots.
package stats

import (
	"fmt"

	"github.com/tinytelemetry/trafficwatch/internal/model"
	"github.com/tinytelemetry/trafficwatch/internal/window"
)

// Aggregator buffers records until they span the configured timespan and then
// folds them into a Stats snapshot.
//
// The window closes as soon as the data itself covers the timespan, not when
// wall-clock time elapses, so replaying the same input yields the same
// snapshots. Emit and Purge are separate so the caller decides when a cycle
// resets.
type Aggregator struct {
	buffer   *window.Buffer
	timespan int64
}

// NewAggregator creates an aggregator emitting every timespan seconds of data.
func NewAggregator(timespan int64) *Aggregator {
	return &Aggregator{
		buffer:   window.New(),
		timespan: timespan,
	}
}

// Push adds a record to the current span.
func (a *Aggregator) Push(r model.LogRecord) {
	a.buffer.Push(r)
}

// CanEmit reports whether the buffered records span at least the timespan.
func (a *Aggregator) CanEmit() bool {
	return a.buffer.Len() > 0 && a.buffer.Span() >= a.timespan
}

// Emit builds a snapshot of the buffered records. It returns nil, nil when the
// buffer is empty. The buffer is left untouched; call Purge to start a new span.
func (a *Aggregator) Emit() (*model.Stats, error) {
	oldest, ok := a.buffer.Oldest()
	if !ok {
		return nil, nil
	}
	newest, _ := a.buffer.Newest()

	b := newSnapshotBuilder(oldest.Timestamp, newest.Timestamp)
	var firstErr error
	a.buffer.Each(func(r model.LogRecord) {
		if firstErr != nil {
			return
		}
		if err := fold(b, r); err != nil {
			firstErr = fmt.Errorf("stats: record at %d: %w", r.Timestamp, err)
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return b.build(), nil
}

// Purge clears the buffered records.
func (a *Aggregator) Purge() {
	a.buffer.Clear()
}

// Len returns the number of buffered records.
func (a *Aggregator) Len() int {
	return a.buffer.Len()
}

// Timespan returns the configured span length in seconds.
func (a *Aggregator) Timespan() int64 {
	return a.timespan
}

func fold(b *snapshotBuilder, r model.LogRecord) error {
	section, err := ExtractSection(r.Request)
	if err != nil {
		return err
	}
	if err := b.initSection(section); err != nil {
		return err
	}
	if err := b.increment(section, model.MetricHits); err != nil {
		return err
	}
	if r.Status == 404 {
		if err := b.increment(section, model.MetricNotFound); err != nil {
			return err
		}
	}
	if class := statusClassMetric(r.Status); class != "" {
		return b.increment(section, class)
	}
	return nil
}

// statusClassMetric maps a status to its 100-wide class counter.
// 1xx responses count toward hits only.
func statusClassMetric(status int) string {
	switch {
	case status >= 200 && status < 300:
		return model.MetricSuccessful
	case status >= 300 && status < 400:
		return model.MetricRedirections
	case status >= 400 && status < 500:
		return model.MetricClientErrors
	case status >= 500 && status < 600:
		return model.MetricServerErrors
	}
	return ""
}
