package logsource

import (
	"context"
	"io"
	"os"
)

// StdinSource reads log lines from stdin.
type StdinSource struct {
	*readerSource
}

// NewStdinSource creates a StdinSource that reads from stdin in a background goroutine.
func NewStdinSource(ctx context.Context, conf ...ReaderConfig) *StdinSource {
	return newStdinSourceWithReader(ctx, os.Stdin, conf...)
}

func newStdinSourceWithReader(ctx context.Context, r io.Reader, conf ...ReaderConfig) *StdinSource {
	var c ReaderConfig
	if len(conf) > 0 {
		c = conf[0]
	}
	return &StdinSource{readerSource: newReaderSource(ctx, "stdin", r, nil, c)}
}
