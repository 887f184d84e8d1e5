// Package webhook delivers violation events to the backend, off the scan path.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	deliveryTimeout = 10 * time.Second
	queueSize       = 64
)

// Event is the violation payload posted to the backend webhook.
type Event struct {
	GroupID       uuid.UUID `json:"groupId"`
	MemberFID     string    `json:"memberFid"`
	MemberAddress string    `json:"memberAddress"`
	RuleID        uuid.UUID `json:"ruleId"`
	ViolationType string    `json:"violationType"`
	Evidence      string    `json:"evidence"`
	CastHash      string    `json:"castHash"`
	DetectedAt    string    `json:"detectedAt"`
}

// Notifier posts events to {base}/api/violations/webhook from a background
// worker so delivery never blocks the scanning loop. Delivery is best-effort:
// failures and queue overflow are logged, never returned.
type Notifier struct {
	url    string
	client *http.Client
	queue  chan Event
	done   chan struct{}
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a Notifier for the backend at baseURL and starts its worker.
func New(baseURL string, log *slog.Logger) *Notifier {
	n := &Notifier{
		url:    baseURL + "/api/violations/webhook",
		client: &http.Client{Timeout: deliveryTimeout},
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
		log:    log,
	}
	go n.run()
	return n
}

// Submit enqueues an event for delivery. It never blocks: if the queue is
// full, or the notifier is already closed, the event is dropped with a
// warning.
func (n *Notifier) Submit(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		n.log.Warn("notifier closed, dropping event", "cast_hash", ev.CastHash)
		return
	}
	select {
	case n.queue <- ev:
	default:
		n.log.Warn("webhook queue full, dropping event", "cast_hash", ev.CastHash)
	}
}

// Close stops accepting events, drains the queue, and waits for the worker.
// It is safe to call more than once.
func (n *Notifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()
	<-n.done
}

func (n *Notifier) run() {
	defer close(n.done)
	for ev := range n.queue {
		n.deliver(ev)
	}
}

func (n *Notifier) deliver(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.log.Error("marshal webhook event", "cast_hash", ev.CastHash, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		n.log.Error("create webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Error("deliver violation event", "cast_hash", ev.CastHash, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.log.Error("webhook rejected event", "cast_hash", ev.CastHash, "status", resp.StatusCode)
		return
	}
	n.log.Debug("violation event delivered", "cast_hash", ev.CastHash)
}
