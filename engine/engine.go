// Package engine implements the Collaboration Engine: it drives the
// three-phase proposal/refinement/vote protocol across every
// collaboration-enabled slot for one session, composes the
// user-facing final answer, and hands any flagged skill to the
// Sandbox Runner for promotion.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
	"github.com/Gliksbot/gliksbot/skillstore"
	"github.com/Gliksbot/gliksbot/slotruntime"
)

// DefaultPhaseDeadline, DefaultCallDeadline and DefaultSessionDeadline
// mirror spec §5's independent timeout budgets; the Engine applies
// whichever context deadline is stricter by nesting the call deadline
// inside the phase deadline.
const (
	DefaultPhaseDeadline   = 90 * time.Second
	DefaultCallDeadline    = 120 * time.Second
	DefaultSessionDeadline = 600 * time.Second
)

// ExecutedSkill reports the outcome of an optional skill extraction and
// sandbox test triggered by the session's final answer.
type ExecutedSkill struct {
	OK        bool
	SkillName string
	Promoted  bool
}

// Result is everything the caller (the /chat handler) needs to render
// a response for one completed or failed session.
type Result struct {
	Answer   string
	Status   collab.FinalStatus
	Err      error
	Executed *ExecutedSkill
}

// Engine owns the slot roster, vote weights, and deadlines for one
// running configuration; RunSession is safe to call concurrently for
// distinct sessions.
type Engine struct {
	rosterMu sync.RWMutex
	slots    []collab.SlotConfig
	weights  collab.VoteWeights

	client  collab.LLMClient
	store   collab.Store
	sandbox collab.SandboxRunner
	skills  *skillstore.Store

	phaseDeadline   time.Duration
	callDeadline    time.Duration
	sessionDeadline time.Duration
}

// Option configures non-default Engine behavior.
type Option func(*Engine)

func WithPhaseDeadline(d time.Duration) Option   { return func(e *Engine) { e.phaseDeadline = d } }
func WithCallDeadline(d time.Duration) Option    { return func(e *Engine) { e.callDeadline = d } }
func WithSessionDeadline(d time.Duration) Option { return func(e *Engine) { e.sessionDeadline = d } }

// New constructs an Engine. slots must already satisfy
// collab.ValidateRoster; New does not re-validate it.
func New(slots []collab.SlotConfig, weights collab.VoteWeights, client collab.LLMClient, store collab.Store, sandbox collab.SandboxRunner, skills *skillstore.Store, opts ...Option) *Engine {
	e := &Engine{
		slots:           slots,
		weights:         weights,
		client:          client,
		store:           store,
		sandbox:         sandbox,
		skills:          skills,
		phaseDeadline:   DefaultPhaseDeadline,
		callDeadline:    DefaultCallDeadline,
		sessionDeadline: DefaultSessionDeadline,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Roster returns a snapshot of the current slot roster and vote
// weights, safe to read concurrently with SetRoster.
func (e *Engine) Roster() ([]collab.SlotConfig, collab.VoteWeights) {
	e.rosterMu.RLock()
	defer e.rosterMu.RUnlock()
	slots := make([]collab.SlotConfig, len(e.slots))
	copy(slots, e.slots)
	weights := make(collab.VoteWeights, len(e.weights))
	for k, v := range e.weights {
		weights[k] = v
	}
	return slots, weights
}

// SetRoster atomically swaps the slot roster and vote weights used by
// every session started after this call returns; sessions already in
// flight keep reading the roster snapshot they started with (spec §5:
// "in-flight sessions keep the config they started with"). Callers must
// validate slots via collab.ValidateRoster before calling SetRoster.
func (e *Engine) SetRoster(slots []collab.SlotConfig, weights collab.VoteWeights) {
	e.rosterMu.Lock()
	defer e.rosterMu.Unlock()
	e.slots = slots
	e.weights = weights
}

type slotOutcome struct {
	name string
	text string
	ok   bool
}

// RunSession drives handle's session through all three phases and
// returns the composed final answer, blocking until Done, Failed, or
// the session deadline elapses.
func (e *Engine) RunSession(ctx context.Context, handle *collab.SessionHandle, userMessage string) Result {
	slots, weights := e.Roster()
	participants := collab.EnabledCollaborators(slots)
	if !anyDexter(participants) {
		err := fmt.Errorf("%w: dexter is not collaboration-enabled", collab.ErrDexterRequired)
		handle.Finish(collab.FinalStatusFailed, "", err)
		return Result{Status: collab.FinalStatusFailed, Err: err}
	}

	sessionCtx, cancel := context.WithTimeout(ctx, e.sessionDeadline)
	defer cancel()

	e.appendMeta(handle.ID, collab.EventSessionStarted, "", map[string]string{
		"campaign_id": handle.CampaignID,
	})

	enabledNames := make(map[string]bool, len(participants))
	for _, s := range participants {
		enabledNames[s.Name] = true
	}

	runtimes := make(map[string]*slotruntime.Runtime, len(participants))
	for _, s := range participants {
		runtimes[s.Name] = slotruntime.New(s, e.client, e.store)
	}

	// Phase 1: proposal.
	proposalOK := e.runPhase(sessionCtx, participants, runtimes, func(ctx context.Context, rt *slotruntime.Runtime, self collab.SlotConfig) (string, error) {
		peers := peerNamesExcluding(participants, self.Name)
		return rt.RunProposal(ctx, handle.ID, peers, userMessage)
	})
	for _, o := range proposalOK {
		handle.SetProposal(o.name, o.text)
	}
	if err := handle.Advance(collab.PhaseRefinement); err != nil {
		handle.Finish(collab.FinalStatusFailed, "", err)
		return Result{Status: collab.FinalStatusFailed, Err: err}
	}
	if res, canceled := e.checkCanceled(ctx, handle); canceled {
		return res
	}

	// Phase 2: refinement, dispatched only to slots that succeeded Phase 1.
	phase1Texts := toTextMap(proposalOK)
	phase2Participants := restrictTo(participants, phase1Texts)
	refinedOK := e.runPhase(sessionCtx, phase2Participants, runtimes, func(ctx context.Context, rt *slotruntime.Runtime, self collab.SlotConfig) (string, error) {
		peerCtx := peerContext(participants, phase1Texts, self.Name)
		return rt.RunRefinement(ctx, handle.ID, phase1Texts[self.Name], peerCtx)
	})
	for _, o := range refinedOK {
		handle.SetRefined(o.name, o.text)
	}
	if err := handle.Advance(collab.PhaseVote); err != nil {
		handle.Finish(collab.FinalStatusFailed, "", err)
		return Result{Status: collab.FinalStatusFailed, Err: err}
	}
	if res, canceled := e.checkCanceled(ctx, handle); canceled {
		return res
	}

	// Phase 3: vote, dispatched only to slots that have a refined answer.
	refinedTexts := toTextMap(refinedOK)
	phase3Participants := restrictTo(participants, refinedTexts)
	labeled := labeledAnswers(phase3Participants, refinedTexts)
	voteOK := e.runPhase(sessionCtx, phase3Participants, runtimes, func(ctx context.Context, rt *slotruntime.Runtime, self collab.SlotConfig) (string, error) {
		return rt.RunVote(ctx, handle.ID, labeled)
	})

	votes := make(map[string]string, len(voteOK))
	for _, o := range voteOK {
		if choice, ok := parseVote(o.text, enabledNames); ok {
			votes[o.name] = choice
		} else {
			e.appendMeta(handle.ID, collab.EventWeightsWarning, o.text, map[string]string{"voter": o.name})
		}
	}
	tally := tallyVotes(votes, weights)

	eligibleWinners := make(map[string]bool, len(phase3Participants))
	for _, s := range phase3Participants {
		if !collab.IsDexter(s.Name) {
			eligibleWinners[s.Name] = true
		}
	}
	winner, hasWinner := pickWinner(tally, eligibleWinners)

	tallyMeta := map[string]string{}
	for name, weight := range tally {
		tallyMeta[name] = strconv.FormatFloat(weight, 'f', -1, 64)
	}
	if hasWinner {
		tallyMeta["winner"] = winner
	}
	e.appendMeta(handle.ID, collab.EventVoteTally, "", tallyMeta)
	handle.SetVoteTally(tally, winner)

	answer, composeErr := e.composeFinalAnswer(phase1Texts, refinedTexts, tally)
	if composeErr != nil {
		handle.Finish(collab.FinalStatusFailed, "", composeErr)
		e.appendMeta(handle.ID, collab.EventSessionFailed, composeErr.Error(), nil)
		return Result{Status: collab.FinalStatusFailed, Err: composeErr}
	}

	// The session's own hard deadline (distinct from checkCanceled's
	// original-ctx check above) may have elapsed while the phases ran;
	// spec §5 forces Phase = Failed in that case even though a final
	// answer was successfully composed from whatever text accumulated.
	if sessionCtx.Err() != nil {
		var err error
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: session canceled mid-flight", collab.ErrCanceled)
		} else {
			err = fmt.Errorf("%w: session deadline exceeded before completion", collab.ErrTimeout)
		}
		handle.Finish(collab.FinalStatusFailed, answer, err)
		e.appendMeta(handle.ID, collab.EventSessionFailed, err.Error(), nil)
		return Result{Answer: answer, Status: collab.FinalStatusFailed, Err: err}
	}

	executed := e.maybePromoteSkill(sessionCtx, answer)

	handle.Finish(collab.FinalStatusDone, answer, nil)
	e.appendMeta(handle.ID, collab.EventSessionDone, "", nil)
	return Result{Answer: answer, Status: collab.FinalStatusDone, Executed: executed}
}

// composeFinalAnswer implements spec §4.5's composition rule together
// with §7's dexter-failure fallback: if dexter has no refined text but
// did produce a Phase-1 proposal, dexter's own proposal is preferred
// over a peer's refined text (a dexter failure in Phase 2 alone falls
// back to dexter, not to the peer winner; only a dexter failure in
// both phases defers to the peer winner).
func (e *Engine) composeFinalAnswer(phase1, refined map[string]string, tally map[string]float64) (string, error) {
	if text, ok := refined[collab.DexterSlotName]; ok {
		return text, nil
	}
	if text, ok := phase1[collab.DexterSlotName]; ok {
		return text, nil
	}
	if candidates := names(refined); len(candidates) > 0 {
		_, text, ok := bestBySlotVotes(candidates, refined, tally)
		if ok {
			return text, nil
		}
	}
	if candidates := names(phase1); len(candidates) > 0 {
		_, text, ok := bestBySlotVotes(candidates, phase1, tally)
		if ok {
			return text, nil
		}
	}
	return "", fmt.Errorf("%w: no slot produced any text for this session", collab.ErrInternal)
}

func (e *Engine) maybePromoteSkill(ctx context.Context, answer string) *ExecutedSkill {
	if e.sandbox == nil || e.skills == nil {
		return nil
	}
	name, entryName, source, ok := extractSkill(answer)
	if !ok {
		return nil
	}

	result, err := e.sandbox.Run(ctx, source, entryName, "hello world", collab.SandboxLimits{})
	if err != nil {
		return &ExecutedSkill{OK: false, SkillName: name}
	}

	skill := collab.Skill{ID: name, Name: name, Source: source, EntryName: entryName, State: collab.SkillStateDraft, LastTestOK: result.OK}
	_ = e.skills.Put(skill)

	if !result.OK {
		_, _ = e.skills.Discard(name)
		return &ExecutedSkill{OK: false, SkillName: name, Promoted: false}
	}

	_, promoted, _ := e.skills.Promote(name)
	return &ExecutedSkill{OK: true, SkillName: name, Promoted: promoted}
}

// runPhase dispatches fn against every slot in participants in
// parallel, bounded by the phase deadline; slots still running at the
// deadline are cancelled and counted as failed for this phase.
func (e *Engine) runPhase(ctx context.Context, participants []collab.SlotConfig, runtimes map[string]*slotruntime.Runtime, fn func(context.Context, *slotruntime.Runtime, collab.SlotConfig) (string, error)) []slotOutcome {
	if len(participants) == 0 {
		return nil
	}

	phaseCtx, cancelPhase := context.WithTimeout(ctx, e.phaseDeadline)
	defer cancelPhase()

	results := make(chan slotOutcome, len(participants))
	var wg sync.WaitGroup
	for _, s := range participants {
		wg.Add(1)
		go func(slot collab.SlotConfig) {
			defer wg.Done()
			callCtx, cancelCall := context.WithTimeout(phaseCtx, e.callDeadline)
			defer cancelCall()

			text, err := fn(callCtx, runtimes[slot.Name], slot)
			results <- slotOutcome{name: slot.Name, text: text, ok: err == nil}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-phaseCtx.Done():
		// phaseCtx's deadline (or the caller's own cancellation, which
		// phaseCtx inherits) cancels every in-flight callCtx as a child
		// context; slots still running simply observe ctx.Err() and
		// report an error, counted as failed/canceled for this phase.
		<-done
	}
	close(results)

	outcomes := make([]slotOutcome, 0, len(participants))
	for o := range results {
		if o.ok {
			outcomes = append(outcomes, o)
		}
	}
	return outcomes
}

func (e *Engine) appendMeta(session collab.SessionID, event, text string, meta map[string]string) {
	_ = e.store.Append(context.Background(), collab.SessionMetaSlot, collab.SlotEvent{
		Ts:      time.Now().Unix(),
		Slot:    collab.SessionMetaSlot,
		Session: session,
		Phase:   collab.PhaseMeta,
		Event:   event,
		Text:    text,
		Meta:    meta,
	})
}

// checkCanceled reports whether the caller-supplied ctx (not the
// Engine's own phase/session timeout contexts) was canceled, e.g. a
// client disconnect propagated through the SessionHandle's cancel
// signal. Per spec §8 scenario 4, such a session transitions straight
// to Failed rather than composing a best-effort answer from whatever
// phases completed.
func (e *Engine) checkCanceled(ctx context.Context, handle *collab.SessionHandle) (Result, bool) {
	if ctx.Err() == nil {
		return Result{}, false
	}
	err := fmt.Errorf("%w: session canceled mid-flight", collab.ErrCanceled)
	handle.Finish(collab.FinalStatusFailed, "", err)
	e.appendMeta(handle.ID, collab.EventSessionFailed, err.Error(), nil)
	return Result{Status: collab.FinalStatusFailed, Err: err}, true
}

func anyDexter(slots []collab.SlotConfig) bool {
	for _, s := range slots {
		if collab.IsDexter(s.Name) {
			return true
		}
	}
	return false
}

func peerNamesExcluding(slots []collab.SlotConfig, self string) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		if s.Name != self {
			out = append(out, s.Name)
		}
	}
	return out
}

func toTextMap(outcomes []slotOutcome) map[string]string {
	out := make(map[string]string, len(outcomes))
	for _, o := range outcomes {
		out[o.name] = o.text
	}
	return out
}

func names(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func restrictTo(slots []collab.SlotConfig, ok map[string]string) []collab.SlotConfig {
	out := make([]collab.SlotConfig, 0, len(slots))
	for _, s := range slots {
		if _, found := ok[s.Name]; found {
			out = append(out, s)
		}
	}
	return out
}

// peerContext concatenates every other slot's Phase-1 text, labeled by
// name and role, per spec §4.5.
func peerContext(slots []collab.SlotConfig, texts map[string]string, self string) string {
	var b strings.Builder
	for _, s := range slots {
		if s.Name == self {
			continue
		}
		text, ok := texts[s.Name]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s (%s): %s", s.Name, roleOrName(s), text)
	}
	return b.String()
}

// labeledAnswers renders every refined answer for the vote prompt.
func labeledAnswers(slots []collab.SlotConfig, texts map[string]string) string {
	var b strings.Builder
	for _, s := range slots {
		text, ok := texts[s.Name]
		if !ok {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s (%s): %s", s.Name, roleOrName(s), text)
	}
	return b.String()
}

func roleOrName(s collab.SlotConfig) string {
	if s.Role != "" {
		return s.Role
	}
	return s.Name
}
