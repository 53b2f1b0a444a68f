// Package pipeline fans a record stream out to the stats aggregator and the
// alert monitor and forwards their results to a Sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/trafficwatch/internal/alert"
	"github.com/tinytelemetry/trafficwatch/internal/model"
	"github.com/tinytelemetry/trafficwatch/internal/stats"
)

const defaultBufferSize = 1024

// Config controls both analyses.
type Config struct {
	StatsTimespan    int64
	AlertWindow      int64
	AlertThreshold   float64
	AbortOnMalformed bool
	BufferSize       int // per-consumer channel capacity
}

// DefaultConfig returns the stock timespans and threshold.
func DefaultConfig() Config {
	return Config{
		StatsTimespan:    model.DefaultStatsTimespan,
		AlertWindow:      model.DefaultAlertWindow,
		AlertThreshold:   model.DefaultAlertThreshold,
		AbortOnMalformed: true,
		BufferSize:       defaultBufferSize,
	}
}

// Validate rejects non-positive windows and thresholds.
func (c Config) Validate() error {
	if c.StatsTimespan <= 0 {
		return fmt.Errorf("stats timespan must be positive, got %d", c.StatsTimespan)
	}
	if c.AlertWindow <= 0 {
		return fmt.Errorf("alert window must be positive, got %d", c.AlertWindow)
	}
	if c.AlertThreshold <= 0 {
		return fmt.Errorf("alert threshold must be positive, got %v", c.AlertThreshold)
	}
	return nil
}

// Pipeline owns one aggregator and one monitor. Run may be called once.
type Pipeline struct {
	cfg        Config
	sink       Sink
	aggregator *stats.Aggregator
	monitor    *alert.Monitor
}

// New creates a pipeline reporting to sink. A nil sink discards results.
func New(cfg Config, sink Sink) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Pipeline{
		cfg:        cfg,
		sink:       sink,
		aggregator: stats.NewAggregator(cfg.StatsTimespan),
		monitor:    alert.NewMonitor(cfg.AlertWindow, cfg.AlertThreshold),
	}, nil
}

// Run consumes in until it is closed or ctx is cancelled. Both consumers see
// every record in delivery order and drain their buffers before returning:
// the stats side emits whatever span is left and the alert side evaluates once
// more. Run returns the first consumer error, if any.
func (p *Pipeline) Run(ctx context.Context, in <-chan model.LogRecord) error {
	g, gctx := errgroup.WithContext(ctx)

	statsCh := make(chan model.LogRecord, p.cfg.BufferSize)
	alertCh := make(chan model.LogRecord, p.cfg.BufferSize)

	g.Go(func() error {
		defer close(statsCh)
		defer close(alertCh)
		for {
			select {
			case <-gctx.Done():
				return nil
			case r, ok := <-in:
				if !ok {
					return nil
				}
				if !send(gctx, statsCh, r) || !send(gctx, alertCh, r) {
					return nil
				}
			}
		}
	})

	g.Go(func() error { return p.consumeStats(statsCh) })
	g.Go(func() error { return p.consumeAlerts(alertCh) })

	err := g.Wait()
	log.Debug().
		Str("component", "pipeline").
		Int("stats_buffered", p.aggregator.Len()).
		Int("alert_buffered", p.monitor.CurrentCount()).
		Msg("pipeline drained")
	return err
}

// StatsTimespan returns the stats span length in seconds.
func (p *Pipeline) StatsTimespan() int64 { return p.aggregator.Timespan() }

// AlertWindow returns the alert window length in seconds.
func (p *Pipeline) AlertWindow() int64 { return p.monitor.Window() }

// AlertThreshold returns the alert threshold in requests per second.
func (p *Pipeline) AlertThreshold() float64 { return p.monitor.Threshold() }

func send(ctx context.Context, ch chan<- model.LogRecord, r model.LogRecord) bool {
	select {
	case ch <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) consumeStats(ch <-chan model.LogRecord) error {
	for r := range ch {
		p.aggregator.Push(r)
		if !p.aggregator.CanEmit() {
			continue
		}
		if err := p.emitStats(); err != nil {
			return err
		}
	}
	if p.aggregator.Len() == 0 {
		return nil
	}
	return p.emitStats()
}

// emitStats publishes the buffered span and purges it. A malformed request
// line drops the span unless the pipeline is configured to abort.
func (p *Pipeline) emitStats() error {
	s, err := p.aggregator.Emit()
	p.aggregator.Purge()
	if err != nil {
		p.sink.OnError(err)
		if p.cfg.AbortOnMalformed || !errors.Is(err, stats.ErrUnparsableRequest) {
			return err
		}
		log.Warn().
			Str("component", "pipeline").
			Err(err).
			Msg("dropping stats span with malformed request")
		return nil
	}
	if s != nil {
		p.sink.OnStats(s)
	}
	return nil
}

func (p *Pipeline) consumeAlerts(ch <-chan model.LogRecord) error {
	rates, _ := p.sink.(RateSink)
	var (
		lastTs int64
		seen   bool
	)
	for r := range ch {
		if rates != nil && seen && r.Timestamp > lastTs {
			rates.OnRate(model.RateSample{Timestamp: lastTs, Rate: p.monitor.AverageRate()}, p.monitor.CurrentCount())
		}
		if !seen || r.Timestamp > lastTs {
			lastTs = r.Timestamp
			seen = true
		}

		p.monitor.Push(r)
		if t := p.monitor.Evaluate(); t != nil {
			p.logTransition(*t)
			p.sink.OnAlert(*t)
		}
	}

	if t := p.monitor.Evaluate(); t != nil {
		p.logTransition(*t)
		p.sink.OnAlert(*t)
	}
	if rates != nil && seen {
		rates.OnRate(model.RateSample{Timestamp: lastTs, Rate: p.monitor.AverageRate()}, p.monitor.CurrentCount())
	}
	return nil
}

func (p *Pipeline) logTransition(t model.AlertTransition) {
	log.Info().
		Str("component", "pipeline").
		Str("kind", string(t.Kind)).
		Str("alert_id", t.Alert.ID).
		Float64("average_hits", t.Alert.AverageHits).
		Msg("alert transition")
}
