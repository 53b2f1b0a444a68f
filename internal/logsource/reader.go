package logsource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

// readerSource emits the non-empty lines of an io.Reader until EOF or Stop.
type readerSource struct {
	name     string
	ch       chan model.IngestEnvelope
	cancel   context.CancelFunc
	closer   io.Closer
	stopOnce sync.Once

	mu  sync.Mutex
	err error
}

func newReaderSource(ctx context.Context, name string, r io.Reader, closer io.Closer, conf ReaderConfig) *readerSource {
	conf = conf.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	s := &readerSource{
		name:   name,
		ch:     make(chan model.IngestEnvelope, conf.BufferSize),
		cancel: cancel,
		closer: closer,
	}
	go s.read(ctx, r, conf.MaxLineSize)
	return s
}

func (s *readerSource) read(ctx context.Context, r io.Reader, maxLineSize int) {
	defer close(s.ch)

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, min(64*1024, maxLineSize))
	scanner.Buffer(buf, maxLineSize)

	// Use a single goroutine for blocking scan with a done channel to
	// detect context cancellation without spawning a goroutine per line.
	results := make(chan string)
	go func() {
		defer close(results)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case results <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			if errors.Is(err, bufio.ErrTooLong) {
				err = fmt.Errorf("line exceeds %d bytes: %w", maxLineSize, err)
			}
			log.Error().Str("component", "logsource").Str("source", s.name).Err(err).Msg("stopping source")
			s.setErr(err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-results:
			if !ok {
				return
			}
			select {
			case s.ch <- model.IngestEnvelope{Source: s.name, Line: line}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *readerSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *readerSource) Name() string                       { return s.name }

// Err returns the read failure that ended the source early, or nil after a
// clean EOF or Stop. It is only meaningful once Lines is closed.
func (s *readerSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *readerSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = fmt.Errorf("%s: %w", s.name, err)
}

func (s *readerSource) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.closer != nil {
			_ = s.closer.Close()
		}
	})
}
