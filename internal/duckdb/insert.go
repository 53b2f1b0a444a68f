package duckdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/trafficwatch/internal/journal"
	"github.com/tinytelemetry/trafficwatch/internal/model"
	"github.com/tinytelemetry/trafficwatch/internal/stats"
)

const (
	// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
	DefaultFlushQueueSize = 64

	// DefaultBatchSize is the number of records that triggers an immediate flush.
	DefaultBatchSize = 2000

	// DefaultFlushInterval is how often pending records are drained.
	DefaultFlushInterval = 100 * time.Millisecond
)

type journaledRecord struct {
	seq    uint64
	record *model.StoredRecord
}

type durableJournal interface {
	Append(record *model.StoredRecord) (uint64, error)
	Commit(seq uint64) error
	Close() error
}

// InsertBuffer batches access records and flushes them to DuckDB asynchronously.
// Add() never blocks on DuckDB writes - records are sent to a flush goroutine.
type InsertBuffer struct {
	writer        model.RecordWriter
	mu            sync.Mutex
	pending       []journaledRecord
	flushChan     chan []journaledRecord // async flush queue
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup // separate WaitGroup for tickLoop
	stopOnce      sync.Once
	journal       durableJournal

	flushed atomic.Int64

	// backpressureCount tracks inline flushes for throttled logging.
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix timestamp of last backpressure log
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
	Journal        *journal.Journal
}

// NewInsertBuffer creates a new insert buffer that flushes to writer.
func NewInsertBuffer(writer model.RecordWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := DefaultBatchSize
	flushInterval := DefaultFlushInterval
	flushQueueSize := DefaultFlushQueueSize
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		pending:       make([]journaledRecord, 0, batchSize),
		flushChan:     make(chan []journaledRecord, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
	if len(conf) > 0 && conf[0].Journal != nil {
		b.journal = conf[0].Journal
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

// tickLoop periodically drains the pending buffer.
func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending() // final drain
			return
		}
	}
}

// logBackpressure emits a throttled warning (at most once per 10 seconds) when
// the flush channel is full and an inline flush is triggered.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Warn().
			Str("component", "duckdb").
			Int64("inline_flushes", count).
			Msg("backpressure: flush channel full, DuckDB falling behind")
	}
}

// handoff sends a batch to the flush worker, flushing inline when the queue is full.
func (b *InsertBuffer) handoff(batch []journaledRecord) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		if err := b.flushBatch(batch); err != nil {
			log.Error().Str("component", "duckdb").Err(err).Msg("inline flush failed")
		}
	}
}

// drainPending moves pending records to the flush channel without blocking on DuckDB.
func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]journaledRecord, 0, b.maxBatch)
	b.mu.Unlock()

	b.handoff(batch)
}

// flushWorker processes batches from the flush channel.
func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		if err := b.flushBatch(batch); err != nil {
			log.Error().Str("component", "duckdb").Err(err).Msg("flush failed")
		}
	}
}

// Add queues a record for batch insertion. This never blocks on DuckDB IO.
func (b *InsertBuffer) Add(record *model.StoredRecord) {
	select {
	case <-b.done:
		return
	default:
	}

	seq := uint64(0)
	if b.journal != nil {
		for {
			var err error
			seq, err = b.journal.Append(record)
			if err == nil {
				break
			}
			log.Warn().Str("component", "duckdb").Err(err).Msg("journal append failed, retrying")
			select {
			case <-b.done:
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
	b.enqueue(journaledRecord{seq: seq, record: record})
}

// Requeue queues a record that is already journaled under seq.
func (b *InsertBuffer) Requeue(seq uint64, record *model.StoredRecord) {
	b.enqueue(journaledRecord{seq: seq, record: record})
}

func (b *InsertBuffer) enqueue(item journaledRecord) {
	b.mu.Lock()
	b.pending = append(b.pending, item)
	var batch []journaledRecord
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]journaledRecord, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.handoff(batch)
	}
}

// Flushed returns the number of records written to the store so far.
func (b *InsertBuffer) Flushed() int64 {
	return b.flushed.Load()
}

// Stop flushes remaining records and waits for all writes to complete.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		// Wait for tickLoop to finish its final drain before closing flushChan.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
		if b.journal != nil {
			if err := b.journal.Close(); err != nil {
				log.Error().Str("component", "duckdb").Err(err).Msg("journal close failed")
			}
		}
	})
}

func (b *InsertBuffer) flushBatch(batch []journaledRecord) error {
	if len(batch) == 0 {
		return nil
	}

	records := make([]*model.StoredRecord, 0, len(batch))
	var maxSeq uint64
	for _, item := range batch {
		records = append(records, item.record)
		maxSeq = max(maxSeq, item.seq)
	}

	if err := b.writer.InsertRecordBatch(records); err != nil {
		return err
	}
	b.flushed.Add(int64(len(records)))

	if b.journal != nil && maxSeq > 0 {
		if err := b.journal.Commit(maxSeq); err != nil {
			return fmt.Errorf("journal commit seq=%d: %w", maxSeq, err)
		}
	}
	return nil
}

// InsertRecordBatch appends a batch of access records in a single transaction.
// If the batch fails, it is retried record-by-record to salvage as many
// records as possible.
func (s *Store) InsertRecordBatch(records []*model.StoredRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insertBatchTx(ctx, records)
	if err == nil {
		return nil
	}

	var failed int
	for _, r := range records {
		if rerr := s.insertBatchTx(ctx, []*model.StoredRecord{r}); rerr != nil {
			failed++
			log.Warn().
				Str("component", "duckdb").
				Str("remote_host", r.RemoteHost).
				Int64("ts", r.Timestamp).
				Err(rerr).
				Msg("dropping record")
		}
	}
	if failed > 0 {
		log.Warn().Str("component", "duckdb").Int("failed", failed).Int("batch", len(records)).Msg("batch partially failed")
	}
	return nil
}

// insertBatchTx inserts records in a single transaction.
func (s *Store) insertBatchTx(ctx context.Context, records []*model.StoredRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO access_logs (remote_host, rfc931, auth_user, ts, request, section, status, bytes, source, ingested_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ingestedAt := time.Now().UTC()
	for _, r := range records {
		var section any
		if sec, serr := stats.ExtractSection(r.Request); serr == nil {
			section = sec
		}
		source := r.Source
		if source == "" {
			source = "stdin"
		}
		if _, err := stmt.ExecContext(ctx,
			r.RemoteHost, r.RFC931, r.AuthUser, r.Timestamp,
			r.Request, section, r.Status, r.Bytes, source, ingestedAt,
		); err != nil {
			return fmt.Errorf("record insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
