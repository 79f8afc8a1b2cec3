package eventbus

import (
	"testing"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
)

func testEvent(slot string, n int) collab.SlotEvent {
	return collab.SlotEvent{
		Ts:      int64(n),
		Slot:    slot,
		Session: "sess-1",
		Phase:   collab.PhaseProposal,
		Event:   collab.EventProposalOK,
		Text:    "hello",
	}
}

func TestPublishSubscribeOrder(t *testing.T) {
	bus := New(8)
	sub := bus.Subscribe()
	defer sub.Cancel()

	for i := 0; i < 3; i++ {
		bus.Publish(testEvent("dexter", i))
	}

	for i := 0; i < 3; i++ {
		select {
		case event := <-sub.Events:
			if event.Ts != int64(i) {
				t.Fatalf("event %d: got ts=%d want %d", i, event.Ts, i)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d: timed out waiting for delivery", i)
		}
	}
}

func TestPublishNeverBlocksOnOverflow(t *testing.T) {
	bus := New(2)
	sub := bus.Subscribe()
	defer sub.Cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(testEvent("analyst", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked under overflow")
	}

	if bus.Drops() == 0 {
		t.Fatal("expected at least one drop under overflow, got 0")
	}
}

func TestSubscribeIsolatesSubscribers(t *testing.T) {
	bus := New(8)
	subA := bus.Subscribe()
	defer subA.Cancel()
	subB := bus.Subscribe()
	defer subB.Cancel()

	bus.Publish(testEvent("engineer", 1))

	for _, sub := range []collab.Subscription{subA, subB} {
		select {
		case event := <-sub.Events:
			if event.Slot != "engineer" {
				t.Fatalf("got slot=%s want engineer", event.Slot)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := New(8)
	sub := bus.Subscribe()
	sub.Cancel()

	bus.Publish(testEvent("dexter", 1))

	select {
	case _, ok := <-sub.Events:
		if ok {
			t.Fatal("expected closed channel after cancel, got event")
		}
	case <-time.After(time.Second):
		t.Fatal("expected events channel to close after cancel")
	}
}
