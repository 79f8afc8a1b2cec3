// Package registry is the Session Registry: it maps a session id to its
// live SessionHandle, enforces the maximum-concurrent-sessions cap, and
// garbage-collects terminal sessions.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
)

// DefaultMaxConcurrent bounds simultaneously live (non-terminal)
// sessions; creation beyond the cap returns collab.ErrBusy.
const DefaultMaxConcurrent = 32

// DefaultRetention is how long a terminal session's handle remains
// queryable via Get/List before GC reclaims it.
const DefaultRetention = 10 * time.Minute

// Registry is the concurrency-safe session id -> SessionHandle map.
type Registry struct {
	idgen         collab.IDGenerator
	maxConcurrent int
	retention     time.Duration

	mu       sync.RWMutex
	sessions map[collab.SessionID]*entry
}

type entry struct {
	handle   *collab.SessionHandle
	finished time.Time // zero while live
}

// New constructs a Registry. maxConcurrent <= 0 uses DefaultMaxConcurrent;
// retention <= 0 uses DefaultRetention.
func New(idgen collab.IDGenerator, maxConcurrent int, retention time.Duration) *Registry {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{
		idgen:         idgen,
		maxConcurrent: maxConcurrent,
		retention:     retention,
		sessions:      make(map[collab.SessionID]*entry),
	}
}

// Create allocates a new session id and SessionHandle, rooted in parent
// for cancellation propagation. Returns collab.ErrBusy if the live
// session count is already at the configured cap.
func (r *Registry) Create(ctx context.Context, campaignID string, parent context.Context) (*collab.SessionHandle, context.Context, error) {
	r.mu.Lock()
	live := r.countLiveLocked()
	if live >= r.maxConcurrent {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %d/%d concurrent sessions", collab.ErrBusy, live, r.maxConcurrent)
	}
	r.mu.Unlock()

	id, err := r.idgen.NewSessionID(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: generate session id: %v", collab.ErrInternal, err)
	}

	handle, sessionCtx := collab.NewSessionHandle(id, campaignID, parent)

	r.mu.Lock()
	r.sessions[id] = &entry{handle: handle}
	r.mu.Unlock()

	return handle, sessionCtx, nil
}

func (r *Registry) countLiveLocked() int {
	live := 0
	for _, e := range r.sessions {
		if e.finished.IsZero() {
			live++
		}
	}
	return live
}

// Get returns the handle for id, if it is registered (live or still
// within its post-terminal retention window).
func (r *Registry) Get(id collab.SessionID) (*collab.SessionHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// Cancel signals cancellation on the session's handle, if it exists.
func (r *Registry) Cancel(id collab.SessionID) error {
	handle, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", collab.ErrSessionNotFound, id)
	}
	handle.Cancel()
	return nil
}

// MarkFinished records that id's session reached Done/Failed, starting
// its retention countdown toward GC. The /chat handler invokes this
// once the Engine's RunSession returns.
func (r *Registry) MarkFinished(id collab.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok && e.finished.IsZero() {
		e.finished = time.Now()
	}
}

// List returns every registered handle, optionally restricted to live
// (non-terminal) sessions.
func (r *Registry) List(activeOnly bool) []*collab.SessionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*collab.SessionHandle, 0, len(r.sessions))
	for _, e := range r.sessions {
		if activeOnly && !e.finished.IsZero() {
			continue
		}
		out = append(out, e.handle)
	}
	return out
}

// GC removes every session whose retention window has elapsed, returning
// the number reclaimed. Safe to call periodically from a background
// goroutine.
func (r *Registry) GC() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, e := range r.sessions {
		if e.finished.IsZero() {
			continue
		}
		if now.Sub(e.finished) >= r.retention {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
