package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

// 2019-02-07 21:11:00 UTC
const baseTS = 1549573860

func TestPrintSettings(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(&buf, time.UTC).PrintSettings(Settings{
		InputFile:      "sample.csv",
		StatsTimespan:  10,
		AlertWindow:    120,
		AlertThreshold: 10,
	})

	for _, want := range []string{
		"Processing the log file sample.csv",
		"Using 10 seconds as a timespan for stats computation",
		"Using 120 seconds as a timewindow for alerting",
		"Using 10 hits as a threshold for alerting",
	} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestOnStats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(&buf, time.UTC).OnStats(&model.Stats{
		FirstTimestamp: baseTS,
		LastTimestamp:  baseTS + 10,
		Sections: map[string]*model.SectionMetrics{
			"/report": {Hits: 2, Successful: 2},
			"/api":    {Hits: 5, NotFound: 1, Successful: 3, ClientErrors: 1, ServerErrors: 1},
		},
	})
	out := buf.String()

	if !strings.Contains(out, "Traffic stats between 2019-02-07 21:11:00 and 2019-02-07 21:11:10") {
		t.Errorf("missing heading:\n%s", out)
	}
	for _, col := range []string{"section", "hits", "404s", "successful", "redirections", "client_errors", "server_errors"} {
		if !strings.Contains(out, col) {
			t.Errorf("missing column %q", col)
		}
	}
	api := strings.Index(out, "/api")
	report := strings.Index(out, "/report")
	if api < 0 || report < 0 || api > report {
		t.Errorf("sections not ordered by hits (api at %d, report at %d):\n%s", api, report, out)
	}
}

func TestOnStats_Nil(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(&buf, time.UTC).OnStats(nil)
	if buf.Len() != 0 {
		t.Errorf("OnStats(nil) wrote %q, want nothing", buf.String())
	}
}

func TestOnAlert_Banners(t *testing.T) {
	t.Parallel()

	a := model.NewAlert("a1", baseTS+119, 12.6)
	var buf bytes.Buffer
	r := New(&buf, time.UTC)
	r.OnAlert(model.AlertTransition{Kind: model.TransitionStarted, Alert: *a})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("started banner has %d lines, want 3:\n%s", len(lines), buf.String())
	}
	want := "### High traffic generated an alert - hits = 12, triggered at 2019-02-07 21:12:59 ###"
	if !strings.Contains(lines[1], want) {
		t.Errorf("banner text = %q, want %q", lines[1], want)
	}
	if !strings.Contains(lines[0], strings.Repeat("#", len(want))) {
		t.Errorf("frame line = %q, want %d hashes", lines[0], len(want))
	}

	buf.Reset()
	a.Recover(baseTS + 179)
	r.OnAlert(model.AlertTransition{Kind: model.TransitionRecovered, Alert: *a})
	if !strings.Contains(buf.String(), "High traffic alert recovered at 2019-02-07 21:13:59. Alert duration: 60 seconds.") {
		t.Errorf("recovery banner missing:\n%s", buf.String())
	}
}

func TestOnError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := New(&buf, time.UTC)
	r.OnError(nil)
	if buf.Len() != 0 {
		t.Errorf("OnError(nil) wrote %q", buf.String())
	}
	r.OnError(errors.New("boom"))
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("error output = %q, want it to contain boom", buf.String())
	}
}

func TestTransitionText_NilLocation(t *testing.T) {
	t.Parallel()

	text := TransitionText(model.AlertTransition{Kind: model.TransitionStarted, Alert: *model.NewAlert("x", baseTS, 10.9)}, nil)
	if !strings.HasPrefix(text, "High traffic generated an alert - hits = 10, triggered at ") {
		t.Errorf("TransitionText = %q", text)
	}
}
