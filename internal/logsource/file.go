package logsource

import (
	"context"
	"fmt"
	"os"
)

// FileSource reads an access-log file once and closes its channel at EOF.
type FileSource struct {
	*readerSource
	path string
}

// NewFileSource opens path and starts reading it in a background goroutine.
func NewFileSource(ctx context.Context, path string, conf ...ReaderConfig) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	var c ReaderConfig
	if len(conf) > 0 {
		c = conf[0]
	}
	return &FileSource{
		readerSource: newReaderSource(ctx, "file", f, f, c),
		path:         path,
	}, nil
}

// Path returns the file being read.
func (f *FileSource) Path() string {
	return f.path
}
