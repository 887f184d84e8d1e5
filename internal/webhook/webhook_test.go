package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierDelivers(t *testing.T) {
	var mu sync.Mutex
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	groupID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	ruleID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440001")

	n := New(srv.URL, discardLogger())
	n.Submit(Event{
		GroupID:       groupID,
		MemberFID:     "1398613",
		MemberAddress: "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb",
		RuleID:        ruleID,
		ViolationType: "Used forbidden word (test)",
		Evidence:      "This is a test message",
		CastHash:      "0xabc123",
		DetectedAt:    "2025-10-24T08:00:00Z",
	})
	n.Close()

	mu.Lock()
	defer mu.Unlock()

	if gotPath != "/api/violations/webhook" {
		t.Errorf("delivered to %q, want /api/violations/webhook", gotPath)
	}

	want := map[string]any{
		"groupId":       "550e8400-e29b-41d4-a716-446655440000",
		"memberFid":     "1398613",
		"memberAddress": "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb",
		"ruleId":        "550e8400-e29b-41d4-a716-446655440001",
		"violationType": "Used forbidden word (test)",
		"evidence":      "This is a test message",
		"castHash":      "0xabc123",
		"detectedAt":    "2025-10-24T08:00:00Z",
	}
	if diff := cmp.Diff(want, gotBody); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifierSurvivesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Failures are logged only: Submit and Close must not block or panic.
	n := New(srv.URL, discardLogger())
	n.Submit(Event{CastHash: "0x1"})
	n.Submit(Event{CastHash: "0x2"})
	n.Close()
}

func TestNotifierSubmitAfterClose(t *testing.T) {
	n := New("http://127.0.0.1:1", discardLogger())
	n.Close()

	// Late events are dropped, not panicked on, and Close is idempotent.
	n.Submit(Event{CastHash: "0x1"})
	n.Close()
}

func TestNotifierUnreachableBackend(t *testing.T) {
	n := New("http://127.0.0.1:1", discardLogger())
	n.Submit(Event{CastHash: "0x1"})

	done := make(chan struct{})
	go func() {
		n.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("Close did not return after delivery failure")
	}
}
