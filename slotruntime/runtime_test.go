package slotruntime

import (
	"context"
	"errors"
	"testing"

	"github.com/Gliksbot/gliksbot/collab"
	"github.com/Gliksbot/gliksbot/store/inmem"
)

type stubClient struct {
	result collab.CallResult
	err    error
}

func (s *stubClient) Call(_ context.Context, _ collab.SlotConfig, _, _ string) (collab.CallResult, error) {
	return s.result, s.err
}

func testSlot(name string) collab.SlotConfig {
	return collab.SlotConfig{Name: name, Enabled: true, Provider: collab.ProviderOllama, Endpoint: "http://localhost:11434", Model: "m", LocalModel: true}
}

func TestRunProposalAppendsOKEventOnSuccess(t *testing.T) {
	store := inmem.New(nil, 0)
	client := &stubClient{result: collab.CallResult{Text: "my answer"}}
	rt := New(testSlot("analyst"), client, store)

	text, err := rt.RunProposal(context.Background(), "sess-1", []string{"dexter"}, "summarize CAP theorem")
	if err != nil {
		t.Fatalf("run proposal: %v", err)
	}
	if text != "my answer" {
		t.Fatalf("got text=%q", text)
	}
	if rt.State() != StateDoneProposal {
		t.Fatalf("got state=%s want done_proposal", rt.State())
	}

	events, err := store.Head(context.Background(), "analyst", 1)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if len(events) != 1 || events[0].Event != collab.EventProposalOK {
		t.Fatalf("got events=%+v", events)
	}
}

func TestRunProposalAppendsErrorEventOnFailure(t *testing.T) {
	store := inmem.New(nil, 0)
	client := &stubClient{err: collab.CallError(collab.ErrConfig, "analyst", "missing env var", errors.New("unset"))}
	rt := New(testSlot("analyst"), client, store)

	_, err := rt.RunProposal(context.Background(), "sess-1", nil, "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if rt.State() != StateFailed {
		t.Fatalf("got state=%s want failed", rt.State())
	}

	events, err := store.Head(context.Background(), "analyst", 1)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if len(events) != 1 || events[0].Event != collab.EventProposalError {
		t.Fatalf("got events=%+v", events)
	}
	if events[0].Meta["error_class"] == "" {
		t.Fatal("expected error_class in meta")
	}
}

func TestRunProposalAppendsCanceledEventOnCancellation(t *testing.T) {
	store := inmem.New(nil, 0)
	client := &stubClient{err: collab.CallError(collab.ErrCanceled, "analyst", "context canceled", context.Canceled)}
	rt := New(testSlot("analyst"), client, store)

	_, err := rt.RunProposal(context.Background(), "sess-1", nil, "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if rt.State() != StateCanceled {
		t.Fatalf("got state=%s want canceled", rt.State())
	}

	events, _ := store.Head(context.Background(), "analyst", 1)
	if len(events) != 1 || events[0].Event != collab.EventProposalCancel {
		t.Fatalf("got events=%+v", events)
	}
}

func TestRunRefinementAndVoteProgressState(t *testing.T) {
	store := inmem.New(nil, 0)
	client := &stubClient{result: collab.CallResult{Text: "refined"}}
	rt := New(testSlot("analyst"), client, store)

	if _, err := rt.RunRefinement(context.Background(), "sess-1", "prior", "peer context"); err != nil {
		t.Fatalf("run refinement: %v", err)
	}
	if rt.State() != StateDoneRefinement {
		t.Fatalf("got state=%s want done_refinement", rt.State())
	}

	client.result = collab.CallResult{Text: "dexter"}
	if _, err := rt.RunVote(context.Background(), "sess-1", "labeled answers"); err != nil {
		t.Fatalf("run vote: %v", err)
	}
	if rt.State() != StateDoneVote {
		t.Fatalf("got state=%s want done_vote", rt.State())
	}
}
