package logsource

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileSourceReadsToEOF(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "access.csv")
	content := "\"remotehost\",\"rfc931\",\"authuser\",\"date\",\"request\",\"status\",\"bytes\"\n" +
		"\"10.0.0.2\",\"-\",\"apache\",1549573860,\"GET /api/user HTTP/1.0\",200,1234\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	src, err := NewFileSource(context.Background(), path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Stop()

	if src.Name() != "file" {
		t.Errorf("Name() = %q, want %q", src.Name(), "file")
	}
	if src.Path() != path {
		t.Errorf("Path() = %q, want %q", src.Path(), path)
	}

	count := 0
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-src.Lines():
			if !ok {
				if count != 2 {
					t.Errorf("lines = %d, want 2", count)
				}
				return
			}
			count++
		case <-timeout:
			t.Fatal("timed out waiting for EOF")
		}
	}
}

func TestFileSourceCleanEOFHasNoError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "access.csv")
	if err := os.WriteFile(path, []byte("a\nb\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	src, err := NewFileSource(context.Background(), path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Stop()

	if got := drainLines(t, src); len(got) != 2 {
		t.Errorf("lines = %q, want 2 lines", got)
	}
	if err := src.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestFileSourceReportsOverlongLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		maxLineSize int
		longLine    int
	}{
		{"below scanner initial buffer", 128, 200},
		{"above scanner initial buffer", 100_000, 200_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "access.csv")
			content := "first\n" + strings.Repeat("x", tt.longLine) + "\nthird\nfourth\n"
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write file: %v", err)
			}
			src, err := NewFileSource(context.Background(), path, ReaderConfig{MaxLineSize: tt.maxLineSize})
			if err != nil {
				t.Fatalf("NewFileSource: %v", err)
			}
			defer src.Stop()

			got := drainLines(t, src)
			if len(got) != 1 || got[0] != "first" {
				t.Errorf("lines = %d, want only the line before the long one", len(got))
			}
			err = src.Err()
			if !errors.Is(err, bufio.ErrTooLong) {
				t.Fatalf("Err() = %v, want bufio.ErrTooLong", err)
			}
			if !strings.Contains(err.Error(), "file") {
				t.Errorf("Err() = %q, want source name", err.Error())
			}
		})
	}
}

func TestFileSourceStopIsNotAnError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "access.csv")
	if err := os.WriteFile(path, []byte(strings.Repeat("line\n", 1000)), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	src, err := NewFileSource(context.Background(), path, ReaderConfig{BufferSize: 1})
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	src.Stop()
	drainLines(t, src)

	if err := src.Err(); err != nil {
		t.Errorf("Err() after Stop = %v, want nil", err)
	}
}

func drainLines(t *testing.T, src *FileSource) []string {
	t.Helper()

	var got []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env, ok := <-src.Lines():
			if !ok {
				return got
			}
			got = append(got, env.Line)
		case <-timeout:
			t.Fatal("timed out waiting for lines to close")
		}
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := NewFileSource(context.Background(), filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
