package collab

import "fmt"

// Event tags. Slot Runtime and Engine append events with these short tags;
// the HTTP JSON schema transports them verbatim in the `event` field.
const (
	EventProposalOK      = "proposal.ok"
	EventProposalError   = "proposal.error"
	EventProposalCancel  = "proposal.canceled"
	EventRefineOK        = "refine.ok"
	EventRefineError     = "refine.error"
	EventRefineCancel    = "refine.canceled"
	EventVoteOK          = "vote.ok"
	EventVoteError       = "vote.error"
	EventVoteCancel      = "vote.canceled"
	EventVoteTally       = "vote.tally"
	EventChatOK          = "chat.ok"
	EventLogTruncated    = "log.truncated"
	EventSessionStarted  = "session.started"
	EventSessionDone     = "session.done"
	EventSessionFailed   = "session.failed"
	EventWeightsWarning  = "vote_weights.unknown_slot"
	EventUserInput       = "user.input"
)

// OutOfBandSession tags a SlotEvent appended via /collaboration/input,
// which is recorded in the slot's log without belonging to any
// Collaboration session; it never constitutes a vote or a session, and
// it is not read back into the slot's prompts.
const OutOfBandSession SessionID = "out-of-band"

// SlotEvent is one immutable record appended to a slot's log. Per (slot,
// session) the Ts sequence is nondecreasing and appends are atomic.
type SlotEvent struct {
	Ts      int64             `json:"ts"`
	Slot    string            `json:"slot"`
	Session SessionID         `json:"session"`
	Phase   Phase             `json:"phase"`
	Event   string            `json:"event"`
	Text    string            `json:"text,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// CloneSlotEvent returns a deep copy safe for cross-goroutine handoff
// (event bus fan-out, in-memory store snapshots).
func CloneSlotEvent(in SlotEvent) SlotEvent {
	out := in
	if in.Meta != nil {
		out.Meta = make(map[string]string, len(in.Meta))
		for k, v := range in.Meta {
			out.Meta[k] = v
		}
	}
	return out
}

// ValidateEvent checks structural invariants before a Store append or Bus
// publish, mirroring the teacher's event-validation boundary checks.
func ValidateEvent(event SlotEvent) error {
	if event.Slot == "" {
		return fmt.Errorf("%w: field=slot reason=empty", ErrEventInvalid)
	}
	if event.Session == "" {
		return fmt.Errorf("%w: field=session reason=empty slot=%s", ErrEventInvalid, event.Slot)
	}
	if event.Event == "" {
		return fmt.Errorf("%w: field=event reason=empty slot=%s session=%s", ErrEventInvalid, event.Slot, event.Session)
	}
	if event.Ts < 0 {
		return fmt.Errorf("%w: field=ts reason=negative slot=%s session=%s", ErrEventInvalid, event.Slot, event.Session)
	}
	return nil
}
