// Package notify forwards alert transitions to an outgoing webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/trafficwatch/internal/model"
	"github.com/tinytelemetry/trafficwatch/internal/render"
)

const (
	DefaultTimeout   = 5 * time.Second
	DefaultQueueSize = 64
)

// Config tunes a WebhookNotifier.
type Config struct {
	URL       string
	Timeout   time.Duration
	QueueSize int
	Location  *time.Location // for the message text; local time when nil
}

// Payload is the JSON body posted for each alert transition.
type Payload struct {
	Kind    model.TransitionKind `json:"kind"`
	Message string               `json:"message"`
	Alert   model.Alert          `json:"alert"`
	SentAt  time.Time            `json:"sent_at"`
}

// WebhookNotifier is a pipeline sink that POSTs alert transitions as JSON.
// Deliveries run on a background worker so the alert consumer never waits on
// the network; when the queue is full the transition is dropped and logged.
type WebhookNotifier struct {
	url      string
	loc      *time.Location
	client   *http.Client
	queue    chan model.AlertTransition
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu     sync.Mutex
	sent   int64
	failed int64
}

// NewWebhookNotifier creates a notifier and starts its delivery worker.
func NewWebhookNotifier(cfg Config) (*WebhookNotifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("notify: webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	n := &WebhookNotifier{
		url: cfg.URL,
		loc: cfg.Location,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		queue: make(chan model.AlertTransition, cfg.QueueSize),
	}
	n.wg.Add(1)
	go n.worker()
	return n, nil
}

func (n *WebhookNotifier) OnStats(*model.Stats) {}

func (n *WebhookNotifier) OnError(error) {}

// OnAlert queues the transition for delivery.
func (n *WebhookNotifier) OnAlert(t model.AlertTransition) {
	select {
	case n.queue <- t:
	default:
		n.mu.Lock()
		n.failed++
		n.mu.Unlock()
		log.Warn().Str("component", "notify").Str("alert_id", t.Alert.ID).Msg("webhook queue full, dropping transition")
	}
}

func (n *WebhookNotifier) worker() {
	defer n.wg.Done()
	for t := range n.queue {
		err := n.send(context.Background(), t)

		n.mu.Lock()
		if err != nil {
			n.failed++
		} else {
			n.sent++
		}
		n.mu.Unlock()

		if err != nil {
			log.Error().Str("component", "notify").Str("alert_id", t.Alert.ID).Err(err).Msg("webhook delivery failed")
		}
	}
}

func (n *WebhookNotifier) send(ctx context.Context, t model.AlertTransition) error {
	body, err := json.Marshal(Payload{
		Kind:    t.Kind,
		Message: render.TransitionText(t, n.loc),
		Alert:   t.Alert,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned %s", resp.Status)
	}
	return nil
}

// Stats returns the number of delivered and failed notifications.
func (n *WebhookNotifier) Stats() (sent, failed int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent, n.failed
}

// Close stops accepting transitions and waits for queued deliveries.
func (n *WebhookNotifier) Close() {
	n.stopOnce.Do(func() {
		close(n.queue)
		n.wg.Wait()
	})
}
