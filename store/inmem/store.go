// Package inmem is the default, non-durable Collaboration Store backend.
package inmem

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/Gliksbot/gliksbot/collab"
)

// DefaultMaxEventsPerLog bounds retained events per (slot, session) log
// when running without persistence (spec §5 resource caps).
const DefaultMaxEventsPerLog = 1024

type logKey struct {
	slot    string
	session collab.SessionID
}

// Store is a concurrency-safe, linearizable-per-slot append-only log.
type Store struct {
	mu         sync.RWMutex
	logs       map[logKey][]collab.SlotEvent
	maxPerLog  int
	bus        collab.EventBus
	lastTs     map[string]int64
}

var _ collab.Store = (*Store)(nil)

// New constructs a Store mirroring every Append to bus (may be nil to
// disable fan-out, e.g. in isolated tests). maxPerLog <= 0 uses the default.
func New(bus collab.EventBus, maxPerLog int) *Store {
	if maxPerLog <= 0 {
		maxPerLog = DefaultMaxEventsPerLog
	}
	return &Store{
		logs:      make(map[logKey][]collab.SlotEvent),
		maxPerLog: maxPerLog,
		bus:       bus,
		lastTs:    make(map[string]int64),
	}
}

// Append validates, timestamps-guards, and records event for (slot,
// session), then publishes it to the Event Bus. Per (slot,session) the Ts
// sequence is forced nondecreasing.
func (s *Store) Append(_ context.Context, slot string, event collab.SlotEvent) error {
	if err := collab.ValidateEvent(event); err != nil {
		return err
	}

	s.mu.Lock()
	last := s.lastTs[slot]
	if event.Ts < last {
		event.Ts = last
	}
	s.lastTs[slot] = event.Ts

	key := logKey{slot: slot, session: event.Session}
	// A truncated log keeps one marker as its last entry; lift it off so
	// it does not count against maxPerLog, carrying its dropped count.
	prev := s.logs[key]
	dropped := 0
	if n := len(prev); n > 0 && prev[n-1].Event == collab.EventLogTruncated {
		dropped, _ = strconv.Atoi(prev[n-1].Meta["dropped"])
		prev = prev[:n-1]
	}
	entries := append(prev, collab.CloneSlotEvent(event))
	if len(entries) > s.maxPerLog {
		drop := len(entries) - s.maxPerLog
		entries = entries[drop:]
		dropped += drop
		marker := collab.SlotEvent{
			Ts:      event.Ts,
			Slot:    slot,
			Session: event.Session,
			Phase:   event.Phase,
			Event:   collab.EventLogTruncated,
			Meta:    map[string]string{"dropped": strconv.Itoa(dropped)},
		}
		entries = append(entries, marker)
	}
	s.logs[key] = entries
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(event)
	}
	return nil
}

// Head returns the last n events for slot across all sessions, newest
// first. n must be >= 1; if fewer exist, all are returned.
func (s *Store) Head(_ context.Context, slot string, n int) ([]collab.SlotEvent, error) {
	if n < 1 {
		n = 1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var merged []collab.SlotEvent
	for key, entries := range s.logs {
		if key.slot != slot {
			continue
		}
		merged = append(merged, entries...)
	}
	sortByTsAscending(merged)

	if len(merged) > n {
		merged = merged[len(merged)-n:]
	}
	out := make([]collab.SlotEvent, len(merged))
	for i := range merged {
		out[len(merged)-1-i] = collab.CloneSlotEvent(merged[i])
	}
	return out, nil
}

// TailSince returns events for slot strictly after ts, oldest first.
func (s *Store) TailSince(_ context.Context, slot string, ts int64) ([]collab.SlotEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var merged []collab.SlotEvent
	for key, entries := range s.logs {
		if key.slot != slot {
			continue
		}
		for _, e := range entries {
			if e.Ts > ts {
				merged = append(merged, e)
			}
		}
	}
	sortByTsAscending(merged)
	out := make([]collab.SlotEvent, len(merged))
	for i := range merged {
		out[i] = collab.CloneSlotEvent(merged[i])
	}
	return out, nil
}

// SessionSnapshot returns every event recorded for session, keyed by slot.
func (s *Store) SessionSnapshot(_ context.Context, session collab.SessionID) (map[string][]collab.SlotEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]collab.SlotEvent)
	for key, entries := range s.logs {
		if key.session != session {
			continue
		}
		cloned := make([]collab.SlotEvent, len(entries))
		for i := range entries {
			cloned[i] = collab.CloneSlotEvent(entries[i])
		}
		sortByTsAscending(cloned)
		out[key.slot] = cloned
	}
	return out, nil
}

func sortByTsAscending(events []collab.SlotEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Ts < events[j].Ts })
}
