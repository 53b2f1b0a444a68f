package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/trafficwatch/internal/live"
	"github.com/tinytelemetry/trafficwatch/internal/model"
)

type failingQuerier struct{ live.State }

func (*failingQuerier) Counters() (model.Counters, error) {
	return model.Counters{}, errors.New("socket closed")
}

func populatedState() *live.State {
	state := live.NewState(live.Options{
		Counters: func() model.Counters { return model.Counters{Parsed: 42} },
	})
	state.OnStats(&model.Stats{
		FirstTimestamp: 1549573860,
		LastTimestamp:  1549573870,
		Sections: map[string]*model.SectionMetrics{
			"/api":    {Hits: 9, Successful: 9},
			"/report": {Hits: 3, NotFound: 3, ClientErrors: 3},
		},
	})
	for i := int64(0); i < 10; i++ {
		state.OnRate(model.RateSample{Timestamp: 1549573860 + i, Rate: float64(i)}, 12)
	}
	return state
}

// poll runs one fetch synchronously and feeds the result back into the model.
func poll(t *testing.T, d *Dashboard) {
	t.Helper()
	cmd := d.fetch()
	if cmd == nil {
		t.Fatal("fetch() returned nil command")
	}
	d.Update(cmd())
}

func sized(d *Dashboard) *Dashboard {
	d.Update(tea.WindowSizeMsg{Width: 140, Height: 50})
	return d
}

func TestDashboard_ViewBeforeSize(t *testing.T) {
	d := NewDashboard(live.NewState(live.Options{}), 0, time.UTC)
	if got := d.View(); got != "Initializing dashboard..." {
		t.Errorf("View() = %q, want initializing placeholder", got)
	}
	if d.interval != DefaultUpdateInterval {
		t.Errorf("interval = %v, want %v", d.interval, DefaultUpdateInterval)
	}
}

func TestDashboard_AppliesSnapshot(t *testing.T) {
	d := sized(NewDashboard(populatedState(), time.Second, time.UTC))
	poll(t, d)

	if d.fetchInFlight {
		t.Error("fetchInFlight still set after snapshot")
	}
	rows := d.table.Rows()
	if len(rows) != 2 || rows[0][0] != "/api" || rows[0][1] != "9" {
		t.Errorf("table rows = %v, want /api first with 9 hits", rows)
	}

	view := d.View()
	for _, want := range []string{
		"Traffic stats between 2019-02-07 21:11:00 and 2019-02-07 21:11:10",
		"OK",
		"parsed 42",
		"now 9.00",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestDashboard_AlertBanner(t *testing.T) {
	state := populatedState()
	state.OnAlert(model.AlertTransition{Kind: model.TransitionStarted, Alert: *model.NewAlert("a1", 1549573979, 15)})

	d := sized(NewDashboard(state, time.Second, time.UTC))
	poll(t, d)

	view := d.View()
	if !strings.Contains(view, "ALERT") || !strings.Contains(view, "hits = 15, triggered at 2019-02-07 21:12:59") {
		t.Errorf("View() missing alert banner:\n%s", view)
	}
}

func TestDashboard_KeepsDataOnError(t *testing.T) {
	d := sized(NewDashboard(populatedState(), time.Second, time.UTC))
	poll(t, d)

	d.client = &failingQuerier{}
	poll(t, d)

	if d.lastErr != "socket closed" {
		t.Errorf("lastErr = %q, want %q", d.lastErr, "socket closed")
	}
	if d.stats == nil {
		t.Error("stats cleared after failed poll")
	}
	if !strings.Contains(d.View(), "error: socket closed") {
		t.Error("View() missing error status")
	}
}

func TestDashboard_SingleFetchInFlight(t *testing.T) {
	d := NewDashboard(live.NewState(live.Options{}), time.Second, time.UTC)
	if d.fetch() == nil {
		t.Fatal("first fetch() = nil, want command")
	}
	if d.fetch() != nil {
		t.Error("second fetch() while in flight returned a command")
	}
}

func TestDashboard_Keys(t *testing.T) {
	d := NewDashboard(live.NewState(live.Options{}), time.Second, time.UTC)

	_, cmd := d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q returned nil command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}

	_, cmd = d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("r returned nil command")
	}
	if _, ok := cmd().(snapshotMsg); !ok {
		t.Error("r did not trigger a fetch")
	}
}
