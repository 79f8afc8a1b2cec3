// Package skillstore holds candidate skills by id and carries out the
// draft -> active / discarded lifecycle, generalized from the
// name -> handler registry pattern used elsewhere in the corpus for
// tool handlers.
package skillstore

import (
	"fmt"
	"sync"

	"github.com/Gliksbot/gliksbot/collab"
)

var (
	ErrSkillNotFound  = fmt.Errorf("%w: skill not found", collab.ErrInternal)
	ErrSkillNameEmpty = fmt.Errorf("%w: skill name is empty", collab.ErrConfig)
)

// Store is the concurrency-safe id -> collab.Skill map.
type Store struct {
	mu     sync.RWMutex
	skills map[string]collab.Skill
}

func New() *Store {
	return &Store{skills: make(map[string]collab.Skill)}
}

// Put inserts or replaces a skill record.
func (s *Store) Put(skill collab.Skill) error {
	if skill.Name == "" {
		return ErrSkillNameEmpty
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills[skill.ID] = skill
	return nil
}

// Get returns the skill record for id.
func (s *Store) Get(id string) (collab.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	skill, ok := s.skills[id]
	if !ok {
		return collab.Skill{}, fmt.Errorf("%w: id=%s", ErrSkillNotFound, id)
	}
	return skill, nil
}

// List returns every registered skill, in no particular order.
func (s *Store) List() []collab.Skill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]collab.Skill, 0, len(s.skills))
	for _, skill := range s.skills {
		out = append(out, skill)
	}
	return out
}

// RecordTest updates a skill's last sandbox outcome.
func (s *Store) RecordTest(id string, ok bool) (collab.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	skill, found := s.skills[id]
	if !found {
		return collab.Skill{}, fmt.Errorf("%w: id=%s", ErrSkillNotFound, id)
	}
	skill.LastTestOK = ok
	s.skills[id] = skill
	return skill, nil
}

// Promote moves a skill from draft to active, iff CanPromote reports
// true. Otherwise it leaves the skill unchanged and reports false with a
// nil error; an unknown id yields ErrSkillNotFound.
func (s *Store) Promote(id string) (collab.Skill, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	skill, found := s.skills[id]
	if !found {
		return collab.Skill{}, false, fmt.Errorf("%w: id=%s", ErrSkillNotFound, id)
	}
	if !skill.CanPromote() {
		return skill, false, nil
	}
	skill.State = collab.SkillStateActive
	s.skills[id] = skill
	return skill, true, nil
}

// Discard marks a skill discarded, e.g. after a failed sandbox test.
func (s *Store) Discard(id string) (collab.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	skill, found := s.skills[id]
	if !found {
		return collab.Skill{}, fmt.Errorf("%w: id=%s", ErrSkillNotFound, id)
	}
	skill.State = collab.SkillStateDiscarded
	s.skills[id] = skill
	return skill, nil
}
