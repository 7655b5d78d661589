package domain

import (
	"testing"

	"github.com/bytedance/sonic"
)

func TestIDRoundTripsNumericLedgerIDs(t *testing.T) {
	var task Task
	if err := sonic.Unmarshal([]byte(`{"_id":351843720888320,"name":"Buy milk","assignedTo":{"_id":87960930223081,"name":"Ann","email":"ann@example.com"}}`), &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if task.ID != "351843720888320" {
		t.Fatalf("unexpected id %q", task.ID)
	}
	if !task.AssignedTo.IsResolved() || task.AssignedTo.Assignee.Email != "ann@example.com" {
		t.Fatalf("expected resolved assignee, got %#v", task.AssignedTo)
	}

	payload, err := sonic.Marshal(struct {
		ID ID `json:"_id"`
	}{ID: task.ID})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"_id":351843720888320}` {
		t.Fatalf("expected numeric id, got %s", payload)
	}
}

func TestIDKeepsTemporaryIDsAsStrings(t *testing.T) {
	id := TempID("task", 0)
	if !id.IsTemp() {
		t.Fatalf("expected %q to be temporary", id)
	}
	payload, err := sonic.Marshal(id)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `"task$0"` {
		t.Fatalf("unexpected payload %s", payload)
	}
}

func TestIDAcceptsReferenceObjects(t *testing.T) {
	var l List
	if err := sonic.Unmarshal([]byte(`{"_id":"list/100","name":"Groceries","listOwner":{"_id":42},"tasks":[]}`), &l); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if l.Owner != "42" {
		t.Fatalf("expected owner 42, got %q", l.Owner)
	}
}

func TestAssigneeRefBareAndNull(t *testing.T) {
	var tasks []Task
	if err := sonic.Unmarshal([]byte(`[{"_id":"t1","assignedTo":"assignee/42"},{"_id":"t2","assignedTo":null}]`), &tasks); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tasks[0].AssignedTo.IsResolved() || tasks[0].AssignedTo.ID != "assignee/42" {
		t.Fatalf("expected bare ref, got %#v", tasks[0].AssignedTo)
	}
	if !tasks[1].AssignedTo.IsZero() {
		t.Fatalf("expected empty ref, got %#v", tasks[1].AssignedTo)
	}
}

func TestListCloneIsDeep(t *testing.T) {
	orig := List{ID: "1", Tasks: []Task{{ID: "2", AssignedTo: Resolved(Assignee{ID: "3", Name: "Ann"})}}}
	cp := orig.Clone()
	cp.Tasks[0].Name = "changed"
	cp.Tasks[0].AssignedTo.Assignee.Name = "Bob"
	if orig.Tasks[0].Name != "" || orig.Tasks[0].AssignedTo.Assignee.Name != "Ann" {
		t.Fatalf("clone shares state with original: %#v", orig)
	}
}
