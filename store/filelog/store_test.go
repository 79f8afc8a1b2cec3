package filelog

import (
	"context"
	"testing"

	"github.com/Gliksbot/gliksbot/collab"
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
	dir := t.TempDir()
	store, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

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

func TestReopenReplaysPriorEvents(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := int64(1); i <= 3; i++ {
		if err := store.Append(ctx, "analyst", event(i, "analyst", "sess-1", collab.EventProposalOK)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.TailSince(ctx, "analyst", 0)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d replayed events, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Ts < got[i-1].Ts {
			t.Fatalf("order violated at index %d", i)
		}
	}
}

func TestSessionSnapshotGroupsBySlot(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

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
}

func TestOpenRejectsEmptyRoot(t *testing.T) {
	if _, err := Open("", nil); err == nil {
		t.Fatal("expected error for empty root directory")
	}
}
