// Package window provides a buffer of access records kept in timestamp order.
package window

import (
	"sort"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

// compactThreshold is the number of evicted head slots tolerated before the
// backing slice is compacted.
const compactThreshold = 1024

// Buffer holds LogRecords ordered non-decreasing by timestamp.
// Records with equal timestamps keep their arrival order.
//
// A Buffer is owned by a single consumer and is not safe for concurrent use.
type Buffer struct {
	records []model.LogRecord
	head    int // index of the oldest live record
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Push inserts r keeping the buffer ordered.
// Appending at the tail is O(1); an out-of-order record is placed after the
// last record whose timestamp is <= r.Timestamp.
func (b *Buffer) Push(r model.LogRecord) {
	n := len(b.records)
	if b.Len() == 0 || b.records[n-1].Timestamp <= r.Timestamp {
		b.records = append(b.records, r)
		return
	}

	live := b.records[b.head:]
	i := b.head + sort.Search(len(live), func(i int) bool {
		return live[i].Timestamp > r.Timestamp
	})
	b.records = append(b.records, model.LogRecord{})
	copy(b.records[i+1:], b.records[i:n])
	b.records[i] = r
}

// EvictOlderThan drops records from the oldest end while
// newest.Timestamp - record.Timestamp >= window. It stops at the first record
// that must be kept and returns the number of evicted records.
func (b *Buffer) EvictOlderThan(window int64) int {
	if b.Len() == 0 {
		return 0
	}
	newest := b.records[len(b.records)-1].Timestamp
	evicted := 0
	for b.head < len(b.records) && newest-b.records[b.head].Timestamp >= window {
		b.records[b.head] = model.LogRecord{}
		b.head++
		evicted++
	}
	b.compact()
	return evicted
}

// Oldest returns the record with the smallest timestamp.
func (b *Buffer) Oldest() (model.LogRecord, bool) {
	if b.Len() == 0 {
		return model.LogRecord{}, false
	}
	return b.records[b.head], true
}

// Newest returns the most recently ordered record.
func (b *Buffer) Newest() (model.LogRecord, bool) {
	if b.Len() == 0 {
		return model.LogRecord{}, false
	}
	return b.records[len(b.records)-1], true
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	return len(b.records) - b.head
}

// Span returns newest.Timestamp - oldest.Timestamp, or 0 when empty.
func (b *Buffer) Span() int64 {
	if b.Len() == 0 {
		return 0
	}
	return b.records[len(b.records)-1].Timestamp - b.records[b.head].Timestamp
}

// Each calls fn for every record from oldest to newest.
func (b *Buffer) Each(fn func(model.LogRecord)) {
	for _, r := range b.records[b.head:] {
		fn(r)
	}
}

// Records returns a copy of the buffered records in order.
func (b *Buffer) Records() []model.LogRecord {
	out := make([]model.LogRecord, b.Len())
	copy(out, b.records[b.head:])
	return out
}

// Clear empties the buffer and releases the held records.
func (b *Buffer) Clear() {
	b.records = nil
	b.head = 0
}

func (b *Buffer) compact() {
	if b.head == len(b.records) {
		b.records = b.records[:0]
		b.head = 0
		return
	}
	if b.head < compactThreshold || b.head < len(b.records)/2 {
		return
	}
	n := copy(b.records, b.records[b.head:])
	for i := n; i < len(b.records); i++ {
		b.records[i] = model.LogRecord{}
	}
	b.records = b.records[:n]
	b.head = 0
}
