// Package projection holds the local view of ledger state that readers see.
package projection

import (
	"sync"

	"ledger-lists/domain"
)

// State is one version of the projected graph.
type State struct {
	Lists     []domain.List
	Assignees []domain.Assignee
	Owners    []domain.Owner
}

// Assignee looks up an assignee by id.
func (s State) Assignee(id domain.ID) (domain.Assignee, bool) {
	for _, a := range s.Assignees {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Assignee{}, false
}

// ListIndex returns the position of the list with the given id or -1.
func (s State) ListIndex(id domain.ID) int {
	for i := range s.Lists {
		if s.Lists[i].ID == id {
			return i
		}
	}
	return -1
}

// FindTask returns the positions of the list and task holding the task id.
func (s State) FindTask(id domain.ID) (int, int, bool) {
	for i := range s.Lists {
		if j := s.Lists[i].TaskIndex(id); j >= 0 {
			return i, j, true
		}
	}
	return -1, -1, false
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := State{}
	if s.Lists != nil {
		out.Lists = make([]domain.List, len(s.Lists))
		for i, l := range s.Lists {
			out.Lists[i] = l.Clone()
		}
	}
	if s.Assignees != nil {
		out.Assignees = append([]domain.Assignee(nil), s.Assignees...)
	}
	if s.Owners != nil {
		out.Owners = append([]domain.Owner(nil), s.Owners...)
	}
	return out
}

// Store is the single owner of the projected graph. Writes replace the whole
// state under the lock so readers never observe a half-applied change.
type Store struct {
	mu      sync.RWMutex
	state   State
	version uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Version increments on every successful write.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) SetLists(lists []domain.List) {
	_ = s.Update(func(st State) (State, error) {
		st.Lists = State{Lists: lists}.Clone().Lists
		return st, nil
	})
}

func (s *Store) SetAssignees(assignees []domain.Assignee) {
	_ = s.Update(func(st State) (State, error) {
		st.Assignees = append([]domain.Assignee(nil), assignees...)
		return st, nil
	})
}

func (s *Store) SetOwners(owners []domain.Owner) {
	_ = s.Update(func(st State) (State, error) {
		st.Owners = append([]domain.Owner(nil), owners...)
		return st, nil
	})
}

// Update applies fn to a copy of the current state and installs the result.
// When fn returns an error the store is left untouched.
func (s *Store) Update(fn func(State) (State, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.state.Clone())
	if err != nil {
		return err
	}
	s.state = next
	s.version++
	return nil
}
