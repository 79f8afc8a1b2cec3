package engine

import (
	"sort"
	"strings"

	"github.com/Gliksbot/gliksbot/collab"
)

// parseVote normalizes a slot's raw vote text and checks it against the
// set of enabled slot names, per spec §4.5: "lowercase, strip whitespace,
// match against the set of enabled slot names. Unparseable votes are
// discarded."
func parseVote(raw string, enabled map[string]bool) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return "", false
	}
	if !enabled[name] {
		return "", false
	}
	return name, true
}

// tallyVotes sums each voter's weight onto the slot it voted for.
func tallyVotes(votes map[string]string, weights collab.VoteWeights) map[string]float64 {
	tally := make(map[string]float64)
	for voter, choice := range votes {
		tally[choice] += weights.Weight(voter)
	}
	return tally
}

// pickWinner selects the tallied slot with the highest weight, breaking
// ties lexicographically by name, restricted to candidates present in
// eligible. Returns ok=false if no eligible candidate has a vote.
func pickWinner(tally map[string]float64, eligible map[string]bool) (string, bool) {
	var names []string
	for name := range tally {
		if eligible == nil || eligible[name] {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Slice(names, func(i, j int) bool {
		if tally[names[i]] != tally[names[j]] {
			return tally[names[i]] > tally[names[j]]
		}
		return names[i] < names[j]
	})
	return names[0], true
}

// bestBySlotVotes picks the highest-voted slot among candidates, using
// tally to rank and the same weight-then-name tie-break as pickWinner.
// candidates absent from tally are treated as weight 0 and still
// eligible to win by lexicographic tie-break against other zero-weight
// candidates. An empty-text proposal is still a valid candidate per
// spec's boundary behavior; callers decide separately whether an empty
// final answer is acceptable.
func bestBySlotVotes(candidates []string, texts map[string]string, tally map[string]float64) (slot, text string, ok bool) {
	if len(candidates) == 0 {
		return "", "", false
	}
	names := append([]string(nil), candidates...)
	sort.Slice(names, func(i, j int) bool {
		wi, wj := tally[names[i]], tally[names[j]]
		if wi != wj {
			return wi > wj
		}
		return names[i] < names[j]
	})
	best := names[0]
	return best, texts[best], true
}
