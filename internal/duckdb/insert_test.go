package duckdb

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/trafficwatch/internal/journal"
	"github.com/tinytelemetry/trafficwatch/internal/model"
)

func countRecords(t *testing.T, store *Store) int64 {
	t.Helper()
	count, err := store.TotalRecordCount()
	if err != nil {
		t.Fatalf("TotalRecordCount: %v", err)
	}
	return count
}

func TestInsertBuffer_AddAndStop(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	for i := 0; i < 10; i++ {
		buf.Add(testRecord("10.0.0.1", int64(100+i), "GET /api/user HTTP/1.0", 200))
	}

	// Stop should flush all pending records
	buf.Stop()

	if count := countRecords(t, store); count != 10 {
		t.Errorf("after Stop, TotalRecordCount = %d, want 10", count)
	}
	if buf.Flushed() != 10 {
		t.Errorf("Flushed() = %d, want 10", buf.Flushed())
	}
}

func TestInsertBuffer_BatchThreshold(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 100, FlushInterval: time.Hour})

	for i := 0; i < 250; i++ {
		buf.Add(testRecord("10.0.0.1", int64(i), "GET /api/user HTTP/1.0", 200))
	}

	buf.Stop()

	if count := countRecords(t, store); count != 250 {
		t.Errorf("after batch insert, TotalRecordCount = %d, want 250", count)
	}
}

func TestInsertBuffer_ConcurrentAdd(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 50

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < recordsPerGoroutine; i++ {
				buf.Add(testRecord("10.0.0.1", int64(i), "GET /api/user HTTP/1.0", 200))
			}
		}()
	}

	wg.Wait()
	buf.Stop()

	expected := int64(numGoroutines * recordsPerGoroutine)
	if count := countRecords(t, store); count != expected {
		t.Errorf("concurrent insert TotalRecordCount = %d, want %d", count, expected)
	}
}

func TestInsertBuffer_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	buf.Add(testRecord("10.0.0.1", 1, "GET /api/user HTTP/1.0", 200))

	buf.Stop()
	buf.Stop()

	if count := countRecords(t, store); count != 1 {
		t.Errorf("after double Stop, TotalRecordCount = %d, want 1", count)
	}
}

func TestInsertBuffer_JournalCommitAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.journal")
	j, err := journal.Open(path)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}

	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{Journal: j})
	for i := 0; i < 5; i++ {
		buf.Add(testRecord("10.0.0.1", int64(i), "GET /api/user HTTP/1.0", 200))
	}
	buf.Stop()

	j2, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer j2.Close()

	var pending int
	if err := j2.Replay(func(uint64, *model.StoredRecord) error {
		pending++
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if pending != 0 {
		t.Errorf("uncommitted journal entries = %d, want 0", pending)
	}
}
