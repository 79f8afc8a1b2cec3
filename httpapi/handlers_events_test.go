package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
)

func TestHandleEventsStreamsPublishedEvents(t *testing.T) {
	deps, router := newTestRouter(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()

	// Give the handler a moment to subscribe before publishing, since
	// Publish never blocks and a subscriber registered too late would
	// simply miss the event (spec.md's documented no-replay guarantee).
	time.Sleep(50 * time.Millisecond)
	deps.Bus.Publish(collab.SlotEvent{
		Ts: 1, Slot: "dexter", Session: "sess-1",
		Phase: collab.PhaseProposal, Event: collab.EventProposalOK, Text: "streamed",
	})
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return after context cancellation")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: slot_event") {
		t.Fatalf("missing SSE event frame in body: %q", body)
	}
	if !strings.Contains(body, `"streamed"`) {
		t.Fatalf("missing expected event text in body: %q", body)
	}
}

func TestHandleEventsFiltersBySlot(t *testing.T) {
	deps, router := newTestRouter(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events?slot=dexter", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	deps.Bus.Publish(collab.SlotEvent{
		Ts: 1, Slot: "analyst", Session: "sess-1",
		Phase: collab.PhaseProposal, Event: collab.EventProposalOK, Text: "should be filtered out",
	})
	deps.Bus.Publish(collab.SlotEvent{
		Ts: 2, Slot: "dexter", Session: "sess-1",
		Phase: collab.PhaseProposal, Event: collab.EventProposalOK, Text: "should pass through",
	})
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return after context cancellation")
	}

	body := rec.Body.String()
	if strings.Contains(body, "should be filtered out") {
		t.Fatalf("got event from non-matching slot in body: %q", body)
	}
	if !strings.Contains(body, "should pass through") {
		t.Fatalf("missing matching-slot event in body: %q", body)
	}
}
