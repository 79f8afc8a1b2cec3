// Package slotruntime drives one slot's per-session state machine: build
// prompt -> invoke LLM Client -> append result to the Collaboration
// Store -> report outcome. The Engine alone decides when to dispatch
// each phase; the Runtime never self-advances.
package slotruntime

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
)

// State is the per-(slot,session) machine state from spec §4.4.
type State int

const (
	StateIdle State = iota
	StateRunningProposal
	StateDoneProposal
	StateRunningRefinement
	StateDoneRefinement
	StateRunningVote
	StateDoneVote
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunningProposal:
		return "running_proposal"
	case StateDoneProposal:
		return "done_proposal"
	case StateRunningRefinement:
		return "running_refinement"
	case StateDoneRefinement:
		return "done_refinement"
	case StateRunningVote:
		return "running_vote"
	case StateDoneVote:
		return "done_vote"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

type phaseEventTags struct {
	ok, errTag, cancel string
}

var tagsByPhase = map[collab.Phase]phaseEventTags{
	collab.PhaseProposal:   {collab.EventProposalOK, collab.EventProposalError, collab.EventProposalCancel},
	collab.PhaseRefinement: {collab.EventRefineOK, collab.EventRefineError, collab.EventRefineCancel},
	collab.PhaseVote:       {collab.EventVoteOK, collab.EventVoteError, collab.EventVoteCancel},
}

// Runtime owns one slot's state machine across however many sessions it
// is dispatched into; callers key one Runtime per (slot, session) pair,
// or reuse across sessions since all per-session data lives in call args.
type Runtime struct {
	slot   collab.SlotConfig
	client collab.LLMClient
	store  collab.Store

	mu    sync.Mutex
	state State
}

// New constructs a Runtime for slot, calling out through client and
// recording every outcome in store.
func New(slot collab.SlotConfig, client collab.LLMClient, store collab.Store) *Runtime {
	return &Runtime{slot: slot, client: client, store: store, state: StateIdle}
}

// State reports the runtime's current state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runtime) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// RunProposal executes Phase 1: the slot proposes its best answer to
// userMessage, aware of its peers' names but not their content yet.
func (r *Runtime) RunProposal(ctx context.Context, session collab.SessionID, peerNames []string, userMessage string) (string, error) {
	r.setState(StateRunningProposal)
	prompt := fmt.Sprintf(
		"You are participating in a team with peers %s. The user request follows. Produce your best solution/answer as %s. User: %s",
		joinNames(peerNames), roleOrName(r.slot), userMessage,
	)
	return r.dispatch(ctx, session, collab.PhaseProposal, prompt, StateDoneProposal)
}

// RunRefinement executes Phase 2: the slot revises its Phase-1 proposal
// in light of every other dispatched slot's Phase-1 text.
func (r *Runtime) RunRefinement(ctx context.Context, session collab.SessionID, ownProposal, peerContext string) (string, error) {
	r.setState(StateRunningRefinement)
	prompt := fmt.Sprintf(
		"Your previous proposal was: %s. Your peers proposed: %s. Revise your proposal, integrating peer insights where they improve correctness and clarity. Return only the refined answer.",
		ownProposal, peerContext,
	)
	return r.dispatch(ctx, session, collab.PhaseRefinement, prompt, StateDoneRefinement)
}

// RunVote executes Phase 3: the slot names the single peer slot whose
// refined answer it judges best.
func (r *Runtime) RunVote(ctx context.Context, session collab.SessionID, labeledAnswers string) (string, error) {
	r.setState(StateRunningVote)
	prompt := fmt.Sprintf(
		"Each team member's refined answer follows: %s. Choose the best answer by returning exactly the name of one slot, and nothing else.",
		labeledAnswers,
	)
	return r.dispatch(ctx, session, collab.PhaseVote, prompt, StateDoneVote)
}

func (r *Runtime) dispatch(ctx context.Context, session collab.SessionID, phase collab.Phase, userPrompt string, doneState State) (string, error) {
	tags := tagsByPhase[phase]
	start := time.Now()

	result, err := r.client.Call(ctx, r.slot, r.slot.Prompt, userPrompt)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, collab.ErrCanceled) {
			r.appendEvent(session, phase, tags.cancel, "", map[string]string{
				"duration_ms": strconv.FormatInt(duration.Milliseconds(), 10),
			})
			r.setState(StateCanceled)
			return "", err
		}
		r.appendEvent(session, phase, tags.errTag, err.Error(), map[string]string{
			"error_class": collab.ErrorClass(err).Error(),
			"duration_ms": strconv.FormatInt(duration.Milliseconds(), 10),
		})
		r.setState(StateFailed)
		return "", err
	}

	meta := result.Meta
	if meta == nil {
		meta = make(map[string]string)
	}
	meta["duration_ms"] = strconv.FormatInt(duration.Milliseconds(), 10)
	r.appendEvent(session, phase, tags.ok, result.Text, meta)
	r.setState(doneState)
	return result.Text, nil
}

// Cancel marks the runtime canceled for session and appends a
// `<phase>.canceled` event; a phase without event tags is ignored. The
// Engine does not call it: its deadlines reach a dispatched runtime
// through the context passed to the Run* methods.
func (r *Runtime) Cancel(session collab.SessionID, phase collab.Phase) {
	tags, ok := tagsByPhase[phase]
	if !ok {
		return
	}
	r.appendEvent(session, phase, tags.cancel, "", nil)
	r.setState(StateCanceled)
}

func (r *Runtime) appendEvent(session collab.SessionID, phase collab.Phase, tag, text string, meta map[string]string) {
	event := collab.SlotEvent{
		Ts:      time.Now().Unix(),
		Slot:    r.slot.Name,
		Session: session,
		Phase:   phase,
		Event:   tag,
		Text:    text,
		Meta:    meta,
	}
	// Best-effort: a store append failure must not crash the collaboration
	// round, so the error is discarded here.
	_ = r.store.Append(context.Background(), r.slot.Name, event)
}

func roleOrName(slot collab.SlotConfig) string {
	if slot.Role != "" {
		return slot.Role
	}
	return slot.Name
}

func joinNames(names []string) string {
	if len(names) == 0 {
		return "no peers"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}
