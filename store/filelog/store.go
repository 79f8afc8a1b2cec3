// Package filelog is a durable Collaboration Store backend. Each
// (slot, session) log is an append-only JSON-lines file under a root
// directory; an in-memory cache answers reads without re-scanning disk.
package filelog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/Gliksbot/gliksbot/collab"
)

var safeComponent = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

type logKey struct {
	slot    string
	session collab.SessionID
}

// Store persists every Append to one <slot>__<session>.jsonl file under
// Root, fsyncing before the call returns, and mirrors in-memory so Head,
// TailSince, and SessionSnapshot never touch disk.
type Store struct {
	root string

	mu     sync.RWMutex
	logs   map[logKey][]collab.SlotEvent
	lastTs map[string]int64

	fileMu sync.Mutex
	files  map[logKey]*os.File

	bus collab.EventBus
}

var _ collab.Store = (*Store)(nil)

// Open creates (or resumes) a durable store rooted at dir, replaying any
// existing *.jsonl files into the in-memory cache. bus may be nil.
func Open(dir string, bus collab.EventBus) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: filelog root directory is empty", collab.ErrConfig)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create filelog root %s: %v", collab.ErrConfig, dir, err)
	}

	s := &Store{
		root:   dir,
		logs:   make(map[logKey][]collab.SlotEvent),
		lastTs: make(map[string]int64),
		files:  make(map[logKey]*os.File),
		bus:    bus,
	}
	if err := s.replay(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) replay() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("%w: read filelog root: %v", collab.ErrConfig, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		if err := s.replayFile(filepath.Join(s.root, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) replayFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", collab.ErrConfig, path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event collab.SlotEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return fmt.Errorf("%w: corrupt line in %s: %v", collab.ErrDecode, path, err)
		}
		key := logKey{slot: event.Slot, session: event.Session}
		s.logs[key] = append(s.logs[key], event)
		if event.Ts > s.lastTs[event.Slot] {
			s.lastTs[event.Slot] = event.Ts
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: scan %s: %v", collab.ErrDecode, path, err)
	}
	return nil
}

func fileName(slot string, session collab.SessionID) string {
	s, sess := string(slot), string(session)
	if !safeComponent.MatchString(s) {
		s = sanitize(s)
	}
	if !safeComponent.MatchString(sess) {
		sess = sanitize(sess)
	}
	return fmt.Sprintf("%s__%s.jsonl", s, sess)
}

func sanitize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}

func (s *Store) fileFor(key logKey) (*os.File, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	if f, ok := s.files[key]; ok {
		return f, nil
	}
	path := filepath.Join(s.root, fileName(key.slot, key.session))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY|os.O_SYNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", collab.ErrConfig, path, err)
	}
	s.files[key] = f
	return f, nil
}

// Append validates event, forces per-slot Ts nondecreasing, durably
// appends one JSON line to the (slot, session) file (O_SYNC guarantees
// the write lands before this call returns), updates the in-memory
// cache, then publishes to the bus.
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
	cloned := collab.CloneSlotEvent(event)
	s.mu.Unlock()

	f, err := s.fileFor(key)
	if err != nil {
		return err
	}
	line, err := json.Marshal(cloned)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %v", collab.ErrInternal, err)
	}
	line = append(line, '\n')

	s.fileMu.Lock()
	_, writeErr := f.Write(line)
	s.fileMu.Unlock()
	if writeErr != nil {
		return fmt.Errorf("%w: append to %s log: %v", collab.ErrInternal, slot, writeErr)
	}

	s.mu.Lock()
	s.logs[key] = append(s.logs[key], cloned)
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(event)
	}
	return nil
}

// Head returns the last n events for slot across all sessions, newest first.
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

// Close releases every open log file handle.
func (s *Store) Close() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	var firstErr error
	for key, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close log for slot %s: %w", key.slot, err)
		}
	}
	return firstErr
}

func sortByTsAscending(events []collab.SlotEvent) {
	sort.SliceStable(events, func(i, j int) bool { return events[i].Ts < events[j].Ts })
}
