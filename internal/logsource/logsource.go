// Package logsource provides the line sources the analyzer can read from.
package logsource

import "github.com/tinytelemetry/trafficwatch/internal/model"

// LogSource is a unified interface for all log input sources (TCP, file, stdin).
type LogSource interface {
	Lines() <-chan model.IngestEnvelope // read-only channel of log lines
	Stop()                              // graceful shutdown
	Name() string                       // "tcp", "file", "stdin"
	Err() error                         // read failure that closed Lines early, nil otherwise
}

const (
	// DefaultBufferSize is the default channel buffer size for reader-backed sources.
	DefaultBufferSize = 50_000

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB
)

// ReaderConfig holds tunable parameters for the stdin and file sources.
type ReaderConfig struct {
	BufferSize  int
	MaxLineSize int
}

func (c ReaderConfig) withDefaults() ReaderConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = DefaultMaxLineSize
	}
	return c
}
