package collab

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SessionID is an opaque identifier unique per user request.
type SessionID string

// Phase is the ordered, forward-only protocol stage of a session.
type Phase string

const (
	PhaseProposal   Phase = "proposal"
	PhaseRefinement Phase = "refinement"
	PhaseVote       Phase = "vote"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"

	// PhaseMeta tags orchestrator meta-events appended to the
	// SessionMetaSlot virtual slot's log (session.started, vote.tally,
	// session.done/failed); it never participates in Advance.
	PhaseMeta Phase = "meta"
)

// SessionMetaSlot is the virtual slot name reserved for orchestrator meta-events
// (e.g. vote tally, truncation markers) that are not written by any real slot.
const SessionMetaSlot = "session"

var phaseOrder = map[Phase]int{
	PhaseProposal:   0,
	PhaseRefinement: 1,
	PhaseVote:       2,
	PhaseDone:       3,
	PhaseFailed:     3,
}

// CanAdvance reports whether moving from `from` to `to` respects the
// forward-only ordering Proposal < Refinement < Vote < {Done, Failed}.
func CanAdvance(from, to Phase) bool {
	if from == to {
		return true
	}
	fromRank, ok := phaseOrder[from]
	if !ok {
		return false
	}
	toRank, ok := phaseOrder[to]
	if !ok {
		return false
	}
	if to == PhaseFailed {
		return true
	}
	return toRank > fromRank
}

// FinalStatus describes how a session concluded.
type FinalStatus string

const (
	FinalStatusDone   FinalStatus = "done"
	FinalStatusFailed FinalStatus = "failed"
)

// SessionHandle is the live state of one in-flight or completed request.
// The Engine owns all mutation; readers take the handle's lock via the
// accessor methods.
type SessionHandle struct {
	mu sync.RWMutex

	ID         SessionID
	CampaignID string
	StartedAt  time.Time

	phase  Phase
	cancel context.CancelFunc

	proposals  map[string]string
	refined    map[string]string
	voteTally  map[string]float64
	winner     string

	finalAnswer string
	finalStatus FinalStatus
	failureErr  error
}

// NewSessionHandle constructs a handle in PhaseProposal with its own
// cancellation signal derived from parent.
func NewSessionHandle(id SessionID, campaignID string, parent context.Context) (*SessionHandle, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &SessionHandle{
		ID:         id,
		CampaignID: campaignID,
		StartedAt:  time.Now(),
		phase:      PhaseProposal,
		cancel:     cancel,
		proposals:  make(map[string]string),
		refined:    make(map[string]string),
		voteTally:  make(map[string]float64),
	}, ctx
}

// Phase returns the current phase under lock.
func (h *SessionHandle) Phase() Phase {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.phase
}

// Advance moves the session to the next phase, enforcing forward-only order.
func (h *SessionHandle) Advance(to Phase) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !CanAdvance(h.phase, to) {
		return fmt.Errorf("%w: phase went backwards: %s -> %s session=%s", ErrInternal, h.phase, to, h.ID)
	}
	h.phase = to
	return nil
}

// Cancel signals cancellation to every in-flight slot runtime for this session.
func (h *SessionHandle) Cancel() {
	h.mu.RLock()
	cancel := h.cancel
	h.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// SetProposal records slot's Phase-1 text.
func (h *SessionHandle) SetProposal(slot, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.proposals[slot] = text
}

// Proposal returns slot's Phase-1 text, if any.
func (h *SessionHandle) Proposal(slot string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.proposals[slot]
	return v, ok
}

// Proposals returns a snapshot copy of all recorded Phase-1 texts.
func (h *SessionHandle) Proposals() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]string, len(h.proposals))
	for k, v := range h.proposals {
		out[k] = v
	}
	return out
}

// SetRefined records slot's Phase-2 text.
func (h *SessionHandle) SetRefined(slot, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refined[slot] = text
}

// Refined returns slot's Phase-2 text, if any.
func (h *SessionHandle) Refined(slot string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.refined[slot]
	return v, ok
}

// Refinements returns a snapshot copy of all recorded Phase-2 texts.
func (h *SessionHandle) Refinements() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]string, len(h.refined))
	for k, v := range h.refined {
		out[k] = v
	}
	return out
}

// SetVoteTally stores the tallied vote weights and the winning slot name.
func (h *SessionHandle) SetVoteTally(tally map[string]float64, winner string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.voteTally = tally
	h.winner = winner
}

// VoteTally returns a snapshot copy of the vote tally and the recorded winner.
func (h *SessionHandle) VoteTally() (map[string]float64, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]float64, len(h.voteTally))
	for k, v := range h.voteTally {
		out[k] = v
	}
	return out, h.winner
}

// Finish records the terminal outcome of the session.
func (h *SessionHandle) Finish(status FinalStatus, answer string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finalStatus = status
	h.finalAnswer = answer
	h.failureErr = err
	if status == FinalStatusDone {
		h.phase = PhaseDone
	} else {
		h.phase = PhaseFailed
	}
}

// Result returns the final answer, status, and error recorded by Finish.
func (h *SessionHandle) Result() (answer string, status FinalStatus, err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.finalAnswer, h.finalStatus, h.failureErr
}
