package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
	"github.com/Gliksbot/gliksbot/eventbus"
)

func event(ts int64, slot string, session collab.SessionID, tag string) collab.SlotEvent {
	return collab.SlotEvent{
		Ts:      ts,
		Slot:    slot,
		Session: session,
		Phase:   collab.PhaseProposal,
		Event:   tag,
		Text:    "text-" + tag,
	}
}

func TestAppendThenHeadReturnsAppendedEvent(t *testing.T) {
	store := New(nil, 0)
	ctx := context.Background()

	if err := store.Append(ctx, "dexter", event(1, "dexter", "sess-1", collab.EventProposalOK)); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.Head(ctx, "dexter", 1)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if len(got) != 1 || got[0].Event != collab.EventProposalOK {
		t.Fatalf("head returned %+v, want the appended event", got)
	}
}

func TestPerSlotOrderIsPreserved(t *testing.T) {
	store := New(nil, 0)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		if err := store.Append(ctx, "analyst", event(i, "analyst", "sess-1", collab.EventProposalOK)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := store.TailSince(ctx, "analyst", 0)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Ts < got[i-1].Ts {
			t.Fatalf("order violated at index %d: %d < %d", i, got[i].Ts, got[i-1].Ts)
		}
	}
}

func TestAppendMirrorsToEventBus(t *testing.T) {
	bus := eventbus.New(8)
	sub := bus.Subscribe()
	defer sub.Cancel()

	store := New(bus, 0)
	ctx := context.Background()

	if err := store.Append(ctx, "dexter", event(1, "dexter", "sess-1", collab.EventProposalOK)); err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case got := <-sub.Events:
		if got.Slot != "dexter" {
			t.Fatalf("got slot=%s want dexter", got.Slot)
		}
	case <-time.After(time.Second):
		t.Fatal("expected append to be mirrored to the event bus")
	}
}

func TestSessionSnapshotGroupsBySlot(t *testing.T) {
	store := New(nil, 0)
	ctx := context.Background()

	_ = store.Append(ctx, "dexter", event(1, "dexter", "sess-1", collab.EventProposalOK))
	_ = store.Append(ctx, "analyst", event(2, "analyst", "sess-1", collab.EventProposalOK))
	_ = store.Append(ctx, "analyst", event(3, "analyst", "sess-2", collab.EventProposalOK))

	snap, err := store.SessionSnapshot(ctx, "sess-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("got %d slots, want 2", len(snap))
	}
	if len(snap["analyst"]) != 1 {
		t.Fatalf("got %d analyst events for sess-1, want 1", len(snap["analyst"]))
	}
}

func TestLogTruncationMarksOldestDropped(t *testing.T) {
	store := New(nil, 2)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		_ = store.Append(ctx, "dexter", event(i, "dexter", "sess-1", collab.EventProposalOK))
	}

	got, err := store.Head(ctx, "dexter", 10)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3 (2 retained + 1 truncation marker)", len(got))
	}
	foundMarker := false
	for _, e := range got {
		if e.Event == collab.EventLogTruncated {
			foundMarker = true
		}
	}
	if !foundMarker {
		t.Fatal("expected a log.truncated marker event")
	}
}
