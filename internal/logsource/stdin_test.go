package logsource

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestStdinSourceStopClosesLines(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()

	src := newStdinSourceWithReader(context.Background(), r)
	src.Stop()

	select {
	case _, ok := <-src.Lines():
		if ok {
			t.Fatal("expected lines channel to be closed after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lines channel to close")
	}
}

func TestStdinSourceStopIsIdempotent(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()

	src := newStdinSourceWithReader(context.Background(), r)
	src.Stop()
	src.Stop()
}

func TestStdinSourceTagsLines(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}

	src := newStdinSourceWithReader(context.Background(), r)
	defer src.Stop()

	if _, err := w.WriteString("first\n\nsecond\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()

	var got []string
	for env := range src.Lines() {
		if env.Source != "stdin" {
			t.Errorf("Source = %q, want %q", env.Source, "stdin")
		}
		got = append(got, env.Line)
	}
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("lines = %q, want [first second]", got)
	}
}
