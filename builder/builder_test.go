package builder

import (
	"errors"
	"testing"

	"github.com/bytedance/sonic"

	"ledger-lists/domain"
)

type assignees map[domain.ID]domain.Assignee

func (a assignees) Assignee(id domain.ID) (domain.Assignee, bool) {
	v, ok := a[id]
	return v, ok
}

func TestCreateListAssignsDeterministicTempIDs(t *testing.T) {
	snap := assignees{"assignee/42": {ID: "assignee/42", Name: "Ann", Email: "ann@example.com"}}
	in := domain.CreateListIntent{
		Name:  "Groceries",
		Tasks: []domain.TaskInput{{Task: "Buy milk", AssignedTo: "assignee/42"}, {Task: "Buy eggs", Completed: true}},
	}

	cmd, draft, err := CreateList(in, snap)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cmd.Kind != domain.CreateList || cmd.Target != "list$1" {
		t.Fatalf("unexpected command header: %#v", cmd)
	}
	if len(cmd.TempIDs) != 3 || cmd.TempIDs[1] != "task$0" || cmd.TempIDs[2] != "task$1" {
		t.Fatalf("unexpected temp ids: %v", cmd.TempIDs)
	}

	var docs []map[string]any
	if err := sonic.Unmarshal(cmd.Tx, &docs); err != nil {
		t.Fatalf("decode tx: %v", err)
	}
	if len(docs) != 1 || docs[0]["_id"] != "list$1" {
		t.Fatalf("unexpected tx: %s", cmd.Tx)
	}
	tasks := docs[0]["tasks"].([]any)
	first := tasks[0].(map[string]any)
	if first["_id"] != "task$0" || first["name"] != "Buy milk" || first["assignedTo"] != "assignee/42" {
		t.Fatalf("unexpected task doc: %#v", first)
	}
	if _, ok := tasks[1].(map[string]any)["assignedTo"]; ok {
		t.Fatalf("unassigned task must omit assignedTo: %s", cmd.Tx)
	}

	if draft.ID != "list$1" || len(draft.Tasks) != 2 {
		t.Fatalf("unexpected draft: %#v", draft)
	}
	if !draft.Tasks[0].AssignedTo.IsResolved() || draft.Tasks[0].AssignedTo.Assignee.Name != "Ann" {
		t.Fatalf("expected resolvable assignee to be resolved in draft: %#v", draft.Tasks[0].AssignedTo)
	}
	if !draft.Tasks[1].IsCompleted {
		t.Fatalf("completion flag not copied")
	}
}

func TestCreateListKeepsUnknownAssigneeBare(t *testing.T) {
	_, draft, err := CreateList(domain.CreateListIntent{
		Name:  "Chores",
		Tasks: []domain.TaskInput{{Task: "Vacuum", AssignedTo: "assignee/7"}},
	}, assignees{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ref := draft.Tasks[0].AssignedTo
	if ref.IsResolved() || ref.ID != "assignee/7" {
		t.Fatalf("expected bare ref, got %#v", ref)
	}
}

func TestCreateListRejectsMalformedInput(t *testing.T) {
	cases := []domain.CreateListIntent{
		{Name: "  "},
		{Name: "x", Tasks: []domain.TaskInput{{Task: ""}}},
		{Name: "x", Tasks: []domain.TaskInput{{Task: "t", AssignedTo: "assignee$3"}}},
		{Name: "x", Owner: "_user$1"},
	}
	for i, in := range cases {
		if _, _, err := CreateList(in, nil); !errors.Is(err, domain.ErrInvalidIntent) {
			t.Fatalf("case %d: expected ErrInvalidIntent, got %v", i, err)
		}
	}
}

func TestDeleteTaskCarriesAction(t *testing.T) {
	cmd, err := DeleteTask(domain.DeleteTaskIntent{TaskID: "task/55"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if string(cmd.Tx) != `[{"_id":"task/55","_action":"delete"}]` {
		t.Fatalf("unexpected tx %s", cmd.Tx)
	}
	if !cmd.Kind.Signed() {
		t.Fatalf("deletes must be signed")
	}
}

func TestEditTaskOmitsAction(t *testing.T) {
	cmd, edited, err := EditTask(domain.EditTaskIntent{TaskID: "351843720888320", Name: "Buy oat milk", Completed: true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if string(cmd.Tx) != `[{"_id":351843720888320,"name":"Buy oat milk","isCompleted":true}]` {
		t.Fatalf("unexpected tx %s", cmd.Tx)
	}
	if edited.Name != "Buy oat milk" || !edited.IsCompleted {
		t.Fatalf("unexpected edited fields %+v", edited)
	}
}

func TestEditTaskTrimsName(t *testing.T) {
	cmd, edited, err := EditTask(domain.EditTaskIntent{TaskID: "task/55", Name: "  Sweep porch  "})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if string(cmd.Tx) != `[{"_id":"task/55","name":"Sweep porch","isCompleted":false}]` {
		t.Fatalf("unexpected tx %s", cmd.Tx)
	}
	if edited.Name != "Sweep porch" {
		t.Fatalf("edited name %q does not match the tx", edited.Name)
	}
}

func TestDeleteAndEditRequireConfirmedIDs(t *testing.T) {
	if _, err := DeleteTask(domain.DeleteTaskIntent{}); !errors.Is(err, domain.ErrInvalidIntent) {
		t.Fatalf("expected ErrInvalidIntent, got %v", err)
	}
	if _, _, err := EditTask(domain.EditTaskIntent{TaskID: "task$0", Name: "x"}); !errors.Is(err, domain.ErrInvalidIntent) {
		t.Fatalf("expected ErrInvalidIntent, got %v", err)
	}
	if _, _, err := EditTask(domain.EditTaskIntent{TaskID: "task/1"}); !errors.Is(err, domain.ErrInvalidIntent) {
		t.Fatalf("expected ErrInvalidIntent for empty name, got %v", err)
	}
}

func TestCreateAssigneeValidatesEmail(t *testing.T) {
	if _, _, err := CreateAssignee(domain.CreateAssigneeIntent{Name: "Ann", Email: "nope"}); !errors.Is(err, domain.ErrInvalidIntent) {
		t.Fatalf("expected ErrInvalidIntent, got %v", err)
	}
	cmd, a, err := CreateAssignee(domain.CreateAssigneeIntent{Name: "Ann", Email: "ann@example.com"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if a.ID != "assignee$1" || cmd.TempIDs[0] != "assignee$1" {
		t.Fatalf("unexpected ids: %#v %#v", a, cmd)
	}
}
