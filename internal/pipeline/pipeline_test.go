package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/trafficwatch/internal/model"
	"github.com/tinytelemetry/trafficwatch/internal/stats"
)

type recordingSink struct {
	mu     sync.Mutex
	stats  []*model.Stats
	alerts []model.AlertTransition
	errs   []error
	rates  []model.RateSample
}

func (s *recordingSink) OnStats(st *model.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, st)
}

func (s *recordingSink) OnAlert(t model.AlertTransition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, t)
}

func (s *recordingSink) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordingSink) OnRate(sample model.RateSample, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = append(s.rates, sample)
}

func rec(ts int64, request string) model.LogRecord {
	return model.LogRecord{
		RemoteHost: "10.0.0.4",
		RFC931:     "-",
		AuthUser:   "apache",
		Timestamp:  ts,
		Request:    request,
		Status:     200,
		Bytes:      1307,
	}
}

func feed(records []model.LogRecord) <-chan model.LogRecord {
	ch := make(chan model.LogRecord, len(records))
	for _, r := range records {
		ch <- r
	}
	close(ch)
	return ch
}

func runPipeline(t *testing.T, cfg Config, sink Sink, records []model.LogRecord) error {
	t.Helper()
	p, err := New(cfg, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Run(ctx, feed(records))
}

func TestRun_StatsSpansAndFinalDrain(t *testing.T) {
	t.Parallel()

	var records []model.LogRecord
	for ts := int64(0); ts <= 24; ts++ {
		records = append(records, rec(ts, "GET /api/user HTTP/1.0"))
	}

	sink := &recordingSink{}
	cfg := DefaultConfig()
	if err := runPipeline(t, cfg, sink, records); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Spans [0,10], [11,21] and the final partial [22,24].
	if len(sink.stats) != 3 {
		t.Fatalf("stats snapshots = %d, want 3", len(sink.stats))
	}
	wantBounds := [][2]int64{{0, 10}, {11, 21}, {22, 24}}
	var total int64
	for i, s := range sink.stats {
		if s.FirstTimestamp != wantBounds[i][0] || s.LastTimestamp != wantBounds[i][1] {
			t.Errorf("snapshot %d bounds = [%d, %d], want %v", i, s.FirstTimestamp, s.LastTimestamp, wantBounds[i])
		}
		total += s.TotalHits()
	}
	if total != int64(len(records)) {
		t.Errorf("total hits = %d, want %d", total, len(records))
	}
	if len(sink.alerts) != 0 {
		t.Errorf("alerts = %d, want 0", len(sink.alerts))
	}
}

func TestRun_AlertAndRecovery(t *testing.T) {
	t.Parallel()

	var records []model.LogRecord
	for ts := int64(0); ts < 10; ts++ {
		for i := 0; i < 30; i++ {
			records = append(records, rec(ts, "GET /api/user HTTP/1.0"))
		}
	}
	for ts := int64(10); ts < 30; ts++ {
		records = append(records, rec(ts, "GET /api/user HTTP/1.0"))
	}

	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.AlertWindow = 5
	cfg.AlertThreshold = 10
	if err := runPipeline(t, cfg, sink, records); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sink.alerts) != 2 {
		t.Fatalf("alert transitions = %d, want 2", len(sink.alerts))
	}
	if sink.alerts[0].Kind != model.TransitionStarted || sink.alerts[1].Kind != model.TransitionRecovered {
		t.Errorf("kinds = %q, %q, want started, recovered", sink.alerts[0].Kind, sink.alerts[1].Kind)
	}
	if sink.alerts[0].Alert.ID != sink.alerts[1].Alert.ID {
		t.Errorf("recovered alert %q differs from started %q", sink.alerts[1].Alert.ID, sink.alerts[0].Alert.ID)
	}
	if len(sink.rates) == 0 {
		t.Error("no rate samples recorded")
	}
}

func TestRun_MalformedAborts(t *testing.T) {
	t.Parallel()

	records := []model.LogRecord{
		rec(0, "GET /api HTTP/1.0"),
		rec(1, "TRACE /api HTTP/1.0"),
		rec(10, "GET /api HTTP/1.0"),
		rec(20, "GET /api HTTP/1.0"),
	}
	sink := &recordingSink{}
	err := runPipeline(t, DefaultConfig(), sink, records)
	if !errors.Is(err, stats.ErrUnparsableRequest) {
		t.Fatalf("Run error = %v, want ErrUnparsableRequest", err)
	}
	if len(sink.errs) != 1 {
		t.Errorf("sink errors = %d, want 1", len(sink.errs))
	}
	if len(sink.stats) != 0 {
		t.Errorf("stats snapshots = %d, want 0", len(sink.stats))
	}
}

func TestRun_MalformedDropsSpan(t *testing.T) {
	t.Parallel()

	records := []model.LogRecord{
		rec(0, "GET /api HTTP/1.0"),
		rec(1, "TRACE /api HTTP/1.0"),
		rec(10, "GET /api HTTP/1.0"),
		rec(20, "GET /report HTTP/1.0"),
	}
	cfg := DefaultConfig()
	cfg.AbortOnMalformed = false
	sink := &recordingSink{}
	if err := runPipeline(t, cfg, sink, records); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.errs) != 1 {
		t.Errorf("sink errors = %d, want 1", len(sink.errs))
	}
	if len(sink.stats) != 1 {
		t.Fatalf("stats snapshots = %d, want 1", len(sink.stats))
	}
	if _, ok := sink.stats[0].Sections["/report"]; !ok {
		t.Errorf("surviving snapshot sections = %v, want /report", sink.stats[0].Sections)
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	p, err := New(DefaultConfig(), &recordingSink{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	in := make(chan model.LogRecord)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, in) }()

	in <- rec(0, "GET /api HTTP/1.0")
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []Config{
		{StatsTimespan: 0, AlertWindow: 120, AlertThreshold: 10},
		{StatsTimespan: 10, AlertWindow: -1, AlertThreshold: 10},
		{StatsTimespan: 10, AlertWindow: 120, AlertThreshold: 0},
	}
	for _, cfg := range tests {
		if _, err := New(cfg, nil); err == nil {
			t.Errorf("New(%+v) error = nil, want error", cfg)
		}
	}
}

func TestNew_ReportsSettings(t *testing.T) {
	t.Parallel()

	p, err := New(Config{StatsTimespan: 5, AlertWindow: 60, AlertThreshold: 2.5}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.StatsTimespan() != 5 {
		t.Errorf("StatsTimespan() = %d, want 5", p.StatsTimespan())
	}
	if p.AlertWindow() != 60 {
		t.Errorf("AlertWindow() = %d, want 60", p.AlertWindow())
	}
	if p.AlertThreshold() != 2.5 {
		t.Errorf("AlertThreshold() = %v, want 2.5", p.AlertThreshold())
	}
}

func TestMultiSink(t *testing.T) {
	t.Parallel()

	a, b := &recordingSink{}, &recordingSink{}
	m := MultiSink{a, NopSink{}, b}
	m.OnStats(&model.Stats{})
	m.OnAlert(model.AlertTransition{Kind: model.TransitionStarted})
	m.OnError(errors.New("boom"))
	m.OnRate(model.RateSample{Timestamp: 1, Rate: 2}, 3)

	for _, s := range []*recordingSink{a, b} {
		if len(s.stats) != 1 || len(s.alerts) != 1 || len(s.errs) != 1 || len(s.rates) != 1 {
			t.Errorf("sink got stats=%d alerts=%d errs=%d rates=%d, want 1 each",
				len(s.stats), len(s.alerts), len(s.errs), len(s.rates))
		}
	}
}
