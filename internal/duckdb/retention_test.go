package duckdb

import (
	"testing"
	"time"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

func TestRetentionCleaner_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	cleaner := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 1})
	if cleaner == nil {
		t.Fatal("expected non-nil retention cleaner")
	}

	cleaner.Stop()
	cleaner.Stop()
}

func TestRetentionCleaner_DisabledReturnsNil(t *testing.T) {
	store := newTestStore(t)
	if cleaner := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 0}); cleaner != nil {
		t.Fatal("expected nil retention cleaner when retention is 0")
	}
}

func TestDeleteBefore(t *testing.T) {
	store := newTestStore(t)
	insertTestRecords(t, store, []*model.StoredRecord{
		testRecord("10.0.0.1", 100, "GET /api/user HTTP/1.0", 200),
		testRecord("10.0.0.2", 101, "GET /api/user HTTP/1.0", 200),
	})

	deleted, err := store.DeleteBefore(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore(past): %v", err)
	}
	if deleted != 0 {
		t.Errorf("DeleteBefore(past) deleted %d, want 0", deleted)
	}

	deleted, err = store.DeleteBefore(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore(future): %v", err)
	}
	if deleted != 2 {
		t.Errorf("DeleteBefore(future) deleted %d, want 2", deleted)
	}
}
