// Package idgen provides SessionID generators for the collaboration runtime.
package idgen

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Gliksbot/gliksbot/collab"
	"github.com/google/uuid"
)

// UUIDGenerator produces globally unique session IDs, suitable for an
// orchestrator running as several server processes behind a load balancer.
type UUIDGenerator struct{}

var _ collab.IDGenerator = UUIDGenerator{}

// New returns the default generator.
func New() UUIDGenerator {
	return UUIDGenerator{}
}

func (UUIDGenerator) NewSessionID(_ context.Context) (collab.SessionID, error) {
	return collab.SessionID(uuid.NewString()), nil
}

// CounterGenerator provides deterministic in-process session IDs, useful
// for tests that assert on exact session identifiers.
type CounterGenerator struct {
	prefix  string
	counter atomic.Uint64
}

var _ collab.IDGenerator = (*CounterGenerator)(nil)

// NewCounter constructs a CounterGenerator with the given ID prefix.
func NewCounter(prefix string) *CounterGenerator {
	if prefix == "" {
		prefix = "session"
	}
	return &CounterGenerator{prefix: prefix}
}

func (g *CounterGenerator) NewSessionID(_ context.Context) (collab.SessionID, error) {
	next := g.counter.Add(1)
	return collab.SessionID(fmt.Sprintf("%s-%06d", g.prefix, next)), nil
}
