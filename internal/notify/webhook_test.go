package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

type webhookRecorder struct {
	mu       sync.Mutex
	payloads []Payload
}

func (w *webhookRecorder) handler(status int) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			w.mu.Lock()
			w.payloads = append(w.payloads, p)
			w.mu.Unlock()
		}
		rw.WriteHeader(status)
	}
}

func (w *webhookRecorder) all() []Payload {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Payload(nil), w.payloads...)
}

func TestNewWebhookNotifier_RequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := NewWebhookNotifier(Config{}); err == nil {
		t.Fatal("NewWebhookNotifier with empty URL succeeded, want error")
	}
}

func TestWebhookNotifier_DeliversTransitions(t *testing.T) {
	t.Parallel()

	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(http.StatusNoContent))
	defer srv.Close()

	n, err := NewWebhookNotifier(Config{URL: srv.URL, Location: time.UTC})
	if err != nil {
		t.Fatalf("NewWebhookNotifier: %v", err)
	}

	a := model.NewAlert("a1", 1549573979, 12.6)
	n.OnAlert(model.AlertTransition{Kind: model.TransitionStarted, Alert: *a})
	a.Recover(1549574039)
	n.OnAlert(model.AlertTransition{Kind: model.TransitionRecovered, Alert: *a})
	n.OnStats(&model.Stats{})
	n.Close()

	got := rec.all()
	if len(got) != 2 {
		t.Fatalf("received %d payloads, want 2", len(got))
	}
	if got[0].Kind != model.TransitionStarted || got[0].Alert.ID != "a1" {
		t.Errorf("first payload = %+v, want started a1", got[0])
	}
	if !strings.Contains(got[0].Message, "hits = 12, triggered at 2019-02-07 21:12:59") {
		t.Errorf("first message = %q", got[0].Message)
	}
	if got[1].Kind != model.TransitionRecovered || got[1].Alert.Active {
		t.Errorf("second payload = %+v, want inactive recovered", got[1])
	}
	if sent, failed := n.Stats(); sent != 2 || failed != 0 {
		t.Errorf("Stats() = %d, %d, want 2, 0", sent, failed)
	}
}

func TestWebhookNotifier_CountsFailures(t *testing.T) {
	t.Parallel()

	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(http.StatusInternalServerError))
	defer srv.Close()

	n, err := NewWebhookNotifier(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewWebhookNotifier: %v", err)
	}
	n.OnAlert(model.AlertTransition{Kind: model.TransitionStarted, Alert: *model.NewAlert("a1", 1, 11)})
	n.Close()

	if sent, failed := n.Stats(); sent != 0 || failed != 1 {
		t.Errorf("Stats() = %d, %d, want 0, 1", sent, failed)
	}
}

func TestWebhookNotifier_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	n, err := NewWebhookNotifier(Config{URL: srv.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWebhookNotifier: %v", err)
	}
	n.OnAlert(model.AlertTransition{Kind: model.TransitionStarted, Alert: *model.NewAlert("a1", 1, 11)})
	n.Close()

	if _, failed := n.Stats(); failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}

func TestWebhookNotifier_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	n, err := NewWebhookNotifier(Config{URL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewWebhookNotifier: %v", err)
	}
	n.Close()
	n.Close()
}
