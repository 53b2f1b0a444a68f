package pipeline

import "github.com/tinytelemetry/trafficwatch/internal/model"

// Sink receives the results of both analyses. Methods are called from the
// consumer goroutines, so implementations shared between them must
// synchronize internally.
type Sink interface {
	OnStats(s *model.Stats)
	OnAlert(t model.AlertTransition)
	OnError(err error)
}

// RateSink is implemented by sinks that also track the alert window's rate.
// OnRate is called once per completed second of input with the number of
// records left in the window.
type RateSink interface {
	OnRate(sample model.RateSample, buffered int)
}

// MultiSink forwards every result to each of its sinks in order.
type MultiSink []Sink

func (m MultiSink) OnStats(s *model.Stats) {
	for _, sink := range m {
		sink.OnStats(s)
	}
}

func (m MultiSink) OnAlert(t model.AlertTransition) {
	for _, sink := range m {
		sink.OnAlert(t)
	}
}

func (m MultiSink) OnError(err error) {
	for _, sink := range m {
		sink.OnError(err)
	}
}

func (m MultiSink) OnRate(sample model.RateSample, buffered int) {
	for _, sink := range m {
		if rs, ok := sink.(RateSink); ok {
			rs.OnRate(sample, buffered)
		}
	}
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) OnStats(*model.Stats)          {}
func (NopSink) OnAlert(model.AlertTransition) {}
func (NopSink) OnError(error)                 {}
