package domain

import (
	"bytes"

	"github.com/bytedance/sonic"
)

// Assignee is a person a task can be assigned to.
type Assignee struct {
	ID    ID     `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Owner is a user that owns at least one list.
type Owner struct {
	ID       ID     `json:"_id"`
	Username string `json:"username"`
}

// AssigneeRef points at an assignee. It is resolved when Assignee is set and
// bare when only ID is known.
type AssigneeRef struct {
	ID       ID
	Assignee *Assignee
}

// Ref builds a bare reference.
func Ref(id ID) AssigneeRef { return AssigneeRef{ID: id} }

// Resolved builds a reference carrying the full assignee record.
func Resolved(a Assignee) AssigneeRef {
	cp := a
	return AssigneeRef{ID: a.ID, Assignee: &cp}
}

// IsResolved reports whether the full record is attached.
func (r AssigneeRef) IsResolved() bool { return r.Assignee != nil }

// IsZero reports whether the reference is empty.
func (r AssigneeRef) IsZero() bool { return r.ID == "" && r.Assignee == nil }

// MarshalJSON writes the full record when resolved, the bare id otherwise.
func (r AssigneeRef) MarshalJSON() ([]byte, error) {
	if r.Assignee != nil {
		return sonic.Marshal(r.Assignee)
	}
	if r.ID == "" {
		return []byte("null"), nil
	}
	return r.ID.MarshalJSON()
}

// UnmarshalJSON accepts an embedded assignee object, a bare id or null.
func (r *AssigneeRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*r = AssigneeRef{}
		return nil
	case data[0] == '{':
		var a Assignee
		if err := sonic.Unmarshal(data, &a); err != nil {
			return err
		}
		*r = Resolved(a)
		return nil
	default:
		var id ID
		if err := id.UnmarshalJSON(data); err != nil {
			return err
		}
		*r = Ref(id)
		return nil
	}
}

// Task is a single entry of a list.
type Task struct {
	ID          ID          `json:"_id"`
	Name        string      `json:"name"`
	IsCompleted bool        `json:"isCompleted"`
	AssignedTo  AssigneeRef `json:"assignedTo"`
}

// List groups tasks under an owner.
type List struct {
	ID          ID     `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       ID     `json:"listOwner,omitempty"`
	Tasks       []Task `json:"tasks"`
}

// Clone returns a deep copy of the list.
func (l List) Clone() List {
	out := l
	if l.Tasks != nil {
		out.Tasks = make([]Task, len(l.Tasks))
		for i, t := range l.Tasks {
			out.Tasks[i] = t.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	out := t
	if t.AssignedTo.Assignee != nil {
		a := *t.AssignedTo.Assignee
		out.AssignedTo.Assignee = &a
	}
	return out
}

// TaskIndex returns the position of the task with the given id or -1.
func (l List) TaskIndex(id ID) int {
	for i := range l.Tasks {
		if l.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}
