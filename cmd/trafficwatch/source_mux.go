package main

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

// DefaultMuxBuffer is the default channel buffer size for the source multiplexer.
const DefaultMuxBuffer = 50_000

// SourceMultiplexer merges several line sources into one stream. Lines keep
// their per-source order; lines from different sources interleave freely.
type SourceMultiplexer struct {
	ctx    context.Context
	cancel context.CancelFunc

	sources []NamedLogSource
	counts  []atomic.Int64
	lines   chan model.IngestEnvelope

	startOnce sync.Once
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup

	errMu sync.Mutex
	err   error
}

func NewSourceMultiplexer(parent context.Context, sources []NamedLogSource, buffer int) *SourceMultiplexer {
	if buffer <= 0 {
		buffer = DefaultMuxBuffer
	}
	ctx, cancel := context.WithCancel(parent)
	return &SourceMultiplexer{
		ctx:     ctx,
		cancel:  cancel,
		sources: sources,
		counts:  make([]atomic.Int64, len(sources)),
		lines:   make(chan model.IngestEnvelope, buffer),
	}
}

// Start launches one forwarder per source. The output closes once every
// source is exhausted.
func (m *SourceMultiplexer) Start() {
	m.startOnce.Do(func() {
		if len(m.sources) == 0 {
			m.closeOutput()
			return
		}

		for i := range m.sources {
			m.wg.Add(1)
			go m.forward(i)
		}

		go func() {
			m.wg.Wait()
			m.closeOutput()
		}()
	})
}

// Stop cancels forwarding and stops every source.
func (m *SourceMultiplexer) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		for _, src := range m.sources {
			src.Stop()
		}
		m.wg.Wait()
		m.closeOutput()
	})
}

func (m *SourceMultiplexer) HasSources() bool {
	return len(m.sources) > 0
}

// Names lists the source names in registration order.
func (m *SourceMultiplexer) Names() []string {
	names := make([]string, len(m.sources))
	for i, src := range m.sources {
		names[i] = src.Name()
	}
	return names
}

// Counts returns the number of lines forwarded per source name.
func (m *SourceMultiplexer) Counts() map[string]int64 {
	out := make(map[string]int64, len(m.sources))
	for i, src := range m.sources {
		out[src.Name()] += m.counts[i].Load()
	}
	return out
}

func (m *SourceMultiplexer) Lines() <-chan model.IngestEnvelope {
	return m.lines
}

func (m *SourceMultiplexer) forward(i int) {
	defer m.wg.Done()

	src := m.sources[i]
	sourceLines := src.Lines()
	for {
		select {
		case <-m.ctx.Done():
			return
		case env, ok := <-sourceLines:
			if !ok {
				if err := src.Err(); err != nil {
					m.setErr(err)
					return
				}
				log.Debug().
					Str("component", "mux").
					Str("source", src.Name()).
					Int64("lines", m.counts[i].Load()).
					Msg("source exhausted")
				return
			}
			if env.Line == "" {
				continue
			}
			if env.Source == "" {
				env.Source = src.Name()
			}
			select {
			case m.lines <- env:
				m.counts[i].Add(1)
			case <-m.ctx.Done():
				return
			}
		}
	}
}

// Err returns the first source read failure. Once Lines is closed it covers
// every source.
func (m *SourceMultiplexer) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

func (m *SourceMultiplexer) setErr(err error) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	if m.err == nil {
		m.err = err
	}
}

func (m *SourceMultiplexer) closeOutput() {
	m.closeOnce.Do(func() {
		close(m.lines)
	})
}
