package alert

import (
	"fmt"
	"testing"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

func pushSecond(m *Monitor, ts int64, n int) {
	for i := 0; i < n; i++ {
		m.Push(model.LogRecord{
			RemoteHost: "10.0.0.1",
			RFC931:     "-",
			AuthUser:   "apache",
			Timestamp:  ts,
			Request:    "GET /api/user HTTP/1.0",
			Status:     200,
			Bytes:      100,
		})
	}
}

func newTestMonitor(window int64, threshold float64) *Monitor {
	m := NewMonitor(window, threshold)
	n := 0
	m.newID = func() string {
		n++
		return fmt.Sprintf("alert-%d", n)
	}
	return m
}

func TestEvaluate_Empty(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(2, 10)
	if got := m.Evaluate(); got != nil {
		t.Errorf("Evaluate() on empty = %+v, want nil", got)
	}
	if m.CurrentAlert() != nil {
		t.Error("CurrentAlert() on empty != nil")
	}
}

func TestEvaluate_AlertThenRecover(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(2, 10)
	pushSecond(m, 100, 12)
	pushSecond(m, 101, 12)

	got := m.Evaluate()
	if got == nil || got.Kind != model.TransitionStarted {
		t.Fatalf("Evaluate() = %+v, want started", got)
	}
	if got.Alert.StartedAt != 101 {
		t.Errorf("StartedAt = %d, want 101", got.Alert.StartedAt)
	}
	if got.Alert.AverageHits != 12 {
		t.Errorf("AverageHits = %v, want 12", got.Alert.AverageHits)
	}
	if !got.Alert.Active {
		t.Error("started alert is not active")
	}
	if cur := m.CurrentAlert(); cur == nil || cur.ID != "alert-1" {
		t.Fatalf("CurrentAlert() = %+v, want alert-1", cur)
	}

	if again := m.Evaluate(); again != nil {
		t.Errorf("second Evaluate() = %+v, want nil while still above threshold", again)
	}

	pushSecond(m, 102, 5)
	pushSecond(m, 103, 5)
	if m.CurrentCount() != 10 {
		t.Fatalf("CurrentCount() = %d, want 10", m.CurrentCount())
	}

	got = m.Evaluate()
	if got == nil || got.Kind != model.TransitionRecovered {
		t.Fatalf("Evaluate() = %+v, want recovered", got)
	}
	if got.Alert.ID != "alert-1" {
		t.Errorf("recovered alert ID = %q, want %q", got.Alert.ID, "alert-1")
	}
	if got.Alert.RecoveredAt != 103 {
		t.Errorf("RecoveredAt = %d, want 103", got.Alert.RecoveredAt)
	}
	if d, ok := got.Alert.Duration(); !ok || d != 2 {
		t.Errorf("Duration() = %d, %v, want 2, true", d, ok)
	}
	if m.CurrentAlert() != nil {
		t.Error("CurrentAlert() after recovery != nil")
	}
	if again := m.Evaluate(); again != nil {
		t.Errorf("Evaluate() after recovery = %+v, want nil", again)
	}
}

func TestEvaluate_NoAlertBelowThreshold(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(2, 10)
	pushSecond(m, 100, 6)
	pushSecond(m, 101, 6)
	if got := m.Evaluate(); got != nil {
		t.Errorf("Evaluate() = %+v, want nil for average 6", got)
	}
}

func TestEvaluate_AverageEqualToThresholdDoesNothing(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(2, 10)
	pushSecond(m, 100, 10)
	pushSecond(m, 101, 10)
	if got := m.Evaluate(); got != nil {
		t.Errorf("Evaluate() = %+v, want nil at exactly the threshold", got)
	}
}

func TestEvaluate_WaitsForCoverage(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(10, 1)
	// 50 records in one second average 5/s over the window but cover 0s.
	pushSecond(m, 100, 50)
	if got := m.Evaluate(); got != nil {
		t.Fatalf("Evaluate() = %+v, want nil before window-1 seconds are covered", got)
	}
	pushSecond(m, 109, 1)
	if got := m.Evaluate(); got == nil || got.Kind != model.TransitionStarted {
		t.Fatalf("Evaluate() = %+v, want started once covered", got)
	}
}

func TestEvaluate_RealertAllocatesNewAlert(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(2, 10)
	pushSecond(m, 100, 12)
	pushSecond(m, 101, 12)
	first := m.Evaluate()
	pushSecond(m, 102, 1)
	pushSecond(m, 103, 1)
	recovered := m.Evaluate()
	pushSecond(m, 104, 30)
	pushSecond(m, 105, 30)
	second := m.Evaluate()

	if first == nil || recovered == nil || second == nil {
		t.Fatalf("transitions = %v, %v, %v; want three", first, recovered, second)
	}
	if second.Kind != model.TransitionStarted {
		t.Fatalf("third transition = %q, want started", second.Kind)
	}
	if second.Alert.ID == first.Alert.ID {
		t.Errorf("re-alert reused ID %q", second.Alert.ID)
	}
	if second.Alert.StartedAt != 105 || second.Alert.AverageHits != 30 {
		t.Errorf("re-alert = %+v, want started 105 avg 30", second.Alert)
	}
	if recovered.Alert.Active {
		t.Error("recovered transition carries an active alert")
	}
}

func TestPush_EvictsOutsideWindow(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(5, 10)
	for ts := int64(0); ts < 20; ts++ {
		pushSecond(m, ts, 2)
	}
	// Newest is 19; records at 15..19 remain.
	if got := m.CurrentCount(); got != 10 {
		t.Errorf("CurrentCount() = %d, want 10", got)
	}
	if got := m.AverageRate(); got != 2 {
		t.Errorf("AverageRate() = %v, want 2", got)
	}
}

func TestCurrentAlert_ReturnsCopy(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(2, 10)
	pushSecond(m, 100, 30)
	pushSecond(m, 101, 30)
	m.Evaluate()

	cur := m.CurrentAlert()
	cur.Recover(500)
	if still := m.CurrentAlert(); still == nil || !still.Active {
		t.Error("mutating the returned alert changed monitor state")
	}
}
