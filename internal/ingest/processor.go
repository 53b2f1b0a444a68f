package ingest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/trafficwatch/internal/accesslog"
	"github.com/tinytelemetry/trafficwatch/internal/model"
)

// Processor parses access-log lines, drops duplicates and routes records to storage.
type Processor struct {
	mu         sync.Mutex
	sink       RecordSink
	sourceName string
	parsers    map[string]*accesslog.Parser
	seen       *lru.Cache[string, struct{}]

	parsed  atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// NewProcessor creates a new processor.
func NewProcessor(sink RecordSink, sourceName string, dedupeSize int) (*Processor, error) {
	p := &Processor{
		sink:       sink,
		sourceName: sourceName,
		parsers:    make(map[string]*accesslog.Parser),
	}
	if dedupeSize > 0 {
		cache, err := lru.New[string, struct{}](dedupeSize)
		if err != nil {
			return nil, fmt.Errorf("create dedupe cache: %w", err)
		}
		p.seen = cache
	}
	return p, nil
}

// ProcessResult holds the outcome of processing one line.
// Exactly one of Record, Skipped, Duplicate or Err is set.
type ProcessResult struct {
	Record    *model.LogRecord
	Source    string
	Skipped   bool // header or blank line
	Duplicate bool
	Err       error
}

// ProcessLine processes an untagged line using the processor source name.
func (p *Processor) ProcessLine(line string) *ProcessResult {
	return p.ProcessEnvelope(model.IngestEnvelope{Line: line})
}

// ProcessEnvelope processes one source-tagged line. Line numbers and header
// detection are tracked per source.
func (p *Processor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	source := env.Source
	if source == "" {
		source = p.sourceName
	}
	parser, ok := p.parsers[source]
	if !ok {
		parser = accesslog.NewParser()
		p.parsers[source] = parser
	}

	record, err := parser.Parse(env.Line)
	if err != nil {
		if accesslog.Skippable(err) {
			p.skipped.Add(1)
			return &ProcessResult{Source: source, Skipped: true}
		}
		p.failed.Add(1)
		var perr *accesslog.ParseError
		if errors.As(err, &perr) {
			log.Debug().
				Str("component", "ingest").
				Str("source", source).
				Int64("line", perr.Line).
				Str("field", perr.Field).
				Err(perr.Err).
				Msg("unparsable access log line")
		}
		return &ProcessResult{Source: source, Err: err}
	}

	if p.seen != nil {
		key := record.Key()
		if p.seen.Contains(key) {
			p.skipped.Add(1)
			return &ProcessResult{Source: source, Duplicate: true}
		}
		p.seen.Add(key, struct{}{})
	}

	p.parsed.Add(1)
	if p.sink != nil {
		p.sink.Add(&model.StoredRecord{LogRecord: record, Source: source})
	}
	return &ProcessResult{Record: &record, Source: source}
}

// Counters returns the parsed, skipped and failed line counts.
func (p *Processor) Counters() model.Counters {
	return model.Counters{
		Parsed:  p.parsed.Load(),
		Skipped: p.skipped.Load(),
		Failed:  p.failed.Load(),
	}
}
