package socketrpc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

// stubQuerier returns fixed values and records the limits it was asked for.
type stubQuerier struct {
	lastLimit int
}

func (q *stubQuerier) LatestStats() (*model.Stats, error) {
	return &model.Stats{FirstTimestamp: 10, LastTimestamp: 20, Sections: map[string]*model.SectionMetrics{
		"/api": {Hits: 3, Successful: 3},
	}}, nil
}
func (q *stubQuerier) CurrentAlert() (*model.Alert, error) { return nil, nil }
func (q *stubQuerier) RecentAlerts(limit int) ([]model.AlertTransition, error) {
	q.lastLimit = limit
	return []model.AlertTransition{{Kind: model.TransitionStarted, Alert: *model.NewAlert("a", 1, 11)}}, nil
}
func (q *stubQuerier) Counters() (model.Counters, error) {
	return model.Counters{Parsed: 5}, nil
}
func (q *stubQuerier) RateSamples(limit int) ([]model.RateSample, error) {
	q.lastLimit = limit
	return []model.RateSample{{Timestamp: 1, Rate: 2}}, nil
}

func newTestDispatcher() (*Server, *stubQuerier) {
	q := &stubQuerier{}
	return NewServer("", q), q
}

func TestDispatch_Methods(t *testing.T) {
	srv, _ := newTestDispatcher()

	tests := []struct {
		method string
		params string
		want   string
	}{
		{"LatestStats", "", `"last_timestamp":20`},
		{"CurrentAlert", "", `null`},
		{"RecentAlerts", `{"Limit":3}`, `"kind":"started"`},
		{"Counters", "", `"parsed":5`},
		{"RateSamples", "null", `"rate":2`},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			resp := srv.dispatch(Request{JSONRPC: "2.0", ID: 7, Method: tt.method, Params: json.RawMessage(tt.params)})
			if resp.Error != nil {
				t.Fatalf("%s error = %v", tt.method, resp.Error)
			}
			if resp.ID != 7 {
				t.Errorf("ID = %d, want 7", resp.ID)
			}
			if !strings.Contains(string(resp.Result), tt.want) {
				t.Errorf("%s result = %s, want it to contain %s", tt.method, resp.Result, tt.want)
			}
		})
	}
}

func TestDispatch_DefaultLimits(t *testing.T) {
	srv, q := newTestDispatcher()

	srv.dispatch(Request{Method: "RecentAlerts"})
	if q.lastLimit != model.DefaultRecentAlerts {
		t.Errorf("RecentAlerts limit = %d, want %d", q.lastLimit, model.DefaultRecentAlerts)
	}
	srv.dispatch(Request{Method: "RateSamples", Params: json.RawMessage(`{"Limit":0}`)})
	if q.lastLimit != model.DefaultRateSamples {
		t.Errorf("RateSamples limit = %d, want %d", q.lastLimit, model.DefaultRateSamples)
	}
	srv.dispatch(Request{Method: "RateSamples", Params: json.RawMessage(`{"Limit":9}`)})
	if q.lastLimit != 9 {
		t.Errorf("RateSamples limit = %d, want 9", q.lastLimit)
	}
}

func TestDispatch_InvalidParams(t *testing.T) {
	srv, _ := newTestDispatcher()

	resp := srv.dispatch(Request{Method: "RecentAlerts", Params: json.RawMessage(`{"Limit":"many"}`)})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Errorf("error = %+v, want code %d", resp.Error, codeInvalidParams)
	}
}

func TestDispatch_UnknownMethod(t *testing.T) {
	srv, _ := newTestDispatcher()

	resp := srv.dispatch(Request{Method: "DropEverything"})
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Errorf("error = %+v, want code %d", resp.Error, codeMethodNotFound)
	}
}
