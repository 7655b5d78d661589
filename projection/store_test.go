package projection

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ledger-lists/domain"
)

func seed() State {
	ann := domain.Assignee{ID: "87960930223082", Name: "Ann", Email: "ann@example.com"}
	return State{
		Lists: []domain.List{{
			ID:   "369435906932737",
			Name: "Groceries",
			Tasks: []domain.Task{
				{ID: "351843720888321", Name: "Milk", AssignedTo: domain.Resolved(ann)},
				{ID: "351843720888322", Name: "Eggs"},
			},
		}},
		Assignees: []domain.Assignee{ann},
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := NewStore()
	st := seed()
	s.SetLists(st.Lists)
	s.SetAssignees(st.Assignees)

	snap := s.Snapshot()
	snap.Lists[0].Name = "changed"
	snap.Lists[0].Tasks[0].AssignedTo.Assignee.Name = "changed"
	snap.Assignees[0].Email = "changed"

	if diff := cmp.Diff(st, s.Snapshot()); diff != "" {
		t.Fatalf("store mutated through snapshot (-want +got):\n%s", diff)
	}
}

func TestSetListsCopiesInput(t *testing.T) {
	s := NewStore()
	lists := seed().Lists
	s.SetLists(lists)
	lists[0].Tasks[0].Name = "changed"

	if got := s.Snapshot().Lists[0].Tasks[0].Name; got != "Milk" {
		t.Fatalf("store aliased caller slice, got %q", got)
	}
}

func TestUpdateErrorLeavesStateUntouched(t *testing.T) {
	s := NewStore()
	s.SetLists(seed().Lists)
	before := s.Snapshot()
	v := s.Version()

	boom := errors.New("boom")
	err := s.Update(func(st State) (State, error) {
		st.Lists = nil
		return st, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if diff := cmp.Diff(before, s.Snapshot()); diff != "" {
		t.Fatalf("state changed (-want +got):\n%s", diff)
	}
	if s.Version() != v {
		t.Fatalf("version bumped on failed update")
	}
}

func TestUpdateSeesLatestState(t *testing.T) {
	s := NewStore()
	s.SetLists([]domain.List{{ID: "1", Name: "L"}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Update(func(st State) (State, error) {
				st.Lists[0].Tasks = append(st.Lists[0].Tasks, domain.Task{ID: domain.ID(string(rune('a' + i%26))), Name: "t"})
				return st, nil
			})
		}(i)
	}
	wg.Wait()

	if got := len(s.Snapshot().Lists[0].Tasks); got != 50 {
		t.Fatalf("lost updates: got %d tasks, want 50", got)
	}
}

func TestStateLookups(t *testing.T) {
	st := seed()
	if a, ok := st.Assignee("87960930223082"); !ok || a.Name != "Ann" {
		t.Fatalf("assignee lookup failed: %+v %v", a, ok)
	}
	if _, ok := st.Assignee("1"); ok {
		t.Fatalf("unexpected assignee")
	}
	if i, j, ok := st.FindTask("351843720888322"); !ok || i != 0 || j != 1 {
		t.Fatalf("find task = %d %d %v", i, j, ok)
	}
	if st.ListIndex("nope") != -1 {
		t.Fatalf("expected -1 for missing list")
	}
}
