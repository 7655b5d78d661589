// Package builder turns mutation intents into canonical ledger commands.
package builder

import (
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"ledger-lists/domain"
)

const (
	listCollection     = "list"
	taskCollection     = "task"
	assigneeCollection = "assignee"
)

// Snapshot is the read-only view of the local projection the builder needs to
// resolve assignee references.
type Snapshot interface {
	Assignee(id domain.ID) (domain.Assignee, bool)
}

type taskDoc struct {
	ID          domain.ID `json:"_id"`
	Name        string    `json:"name"`
	IsCompleted bool      `json:"isCompleted"`
	AssignedTo  domain.ID `json:"assignedTo,omitempty"`
}

type listDoc struct {
	ID          domain.ID `json:"_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ListOwner   domain.ID `json:"listOwner,omitempty"`
	Tasks       []taskDoc `json:"tasks"`
}

type assigneeDoc struct {
	ID    domain.ID `json:"_id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

type deleteDoc struct {
	ID     domain.ID `json:"_id"`
	Action string    `json:"_action"`
}

type editDoc struct {
	ID          domain.ID `json:"_id"`
	Name        string    `json:"name"`
	IsCompleted bool      `json:"isCompleted"`
}

// CreateList builds the transaction for a new list. The returned draft carries
// the temporary ids used in the command; they are replaced once the ledger
// confirms the write.
func CreateList(in domain.CreateListIntent, snap Snapshot) (domain.Command, domain.List, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Command{}, domain.List{}, domain.InvalidIntent("name", "is required")
	}
	if in.Owner.IsTemp() {
		return domain.Command{}, domain.List{}, domain.InvalidIntent("listOwner", "must be a confirmed id")
	}

	listID := domain.TempID(listCollection, 1)
	doc := listDoc{
		ID:          listID,
		Name:        name,
		Description: in.Description,
		ListOwner:   in.Owner,
		Tasks:       make([]taskDoc, 0, len(in.Tasks)),
	}
	draft := domain.List{
		ID:          listID,
		Name:        name,
		Description: in.Description,
		Owner:       in.Owner,
		Tasks:       make([]domain.Task, 0, len(in.Tasks)),
	}
	tempIDs := make([]domain.ID, 0, len(in.Tasks)+1)
	tempIDs = append(tempIDs, listID)

	for i, t := range in.Tasks {
		taskName := strings.TrimSpace(t.Task)
		if taskName == "" {
			return domain.Command{}, domain.List{}, domain.InvalidIntent("tasks["+strconv.Itoa(i)+"].task", "is required")
		}
		if t.AssignedTo.IsTemp() {
			return domain.Command{}, domain.List{}, domain.InvalidIntent("tasks["+strconv.Itoa(i)+"].assignedTo", "must be a confirmed id")
		}
		id := domain.TempID(taskCollection, i)
		tempIDs = append(tempIDs, id)
		doc.Tasks = append(doc.Tasks, taskDoc{
			ID:          id,
			Name:        taskName,
			IsCompleted: t.Completed,
			AssignedTo:  t.AssignedTo,
		})
		draft.Tasks = append(draft.Tasks, domain.Task{
			ID:          id,
			Name:        taskName,
			IsCompleted: t.Completed,
			AssignedTo:  resolve(t.AssignedTo, snap),
		})
	}

	tx, err := sonic.Marshal([]listDoc{doc})
	if err != nil {
		return domain.Command{}, domain.List{}, err
	}
	cmd := domain.Command{Kind: domain.CreateList, Target: listID, TempIDs: tempIDs, Tx: tx}
	return cmd, draft, nil
}

// CreateAssignee builds the transaction for a new assignee.
func CreateAssignee(in domain.CreateAssigneeIntent) (domain.Command, domain.Assignee, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" {
		return domain.Command{}, domain.Assignee{}, domain.InvalidIntent("name", "is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return domain.Command{}, domain.Assignee{}, domain.InvalidIntent("email", "must be an email address")
	}
	id := domain.TempID(assigneeCollection, 1)
	tx, err := sonic.Marshal([]assigneeDoc{{ID: id, Name: name, Email: email}})
	if err != nil {
		return domain.Command{}, domain.Assignee{}, err
	}
	cmd := domain.Command{Kind: domain.CreateAssignee, Target: id, TempIDs: []domain.ID{id}, Tx: tx}
	return cmd, domain.Assignee{ID: id, Name: name, Email: email}, nil
}

// DeleteTask builds the deletion of a confirmed task.
func DeleteTask(in domain.DeleteTaskIntent) (domain.Command, error) {
	if err := confirmedTarget(in.TaskID); err != nil {
		return domain.Command{}, err
	}
	tx, err := sonic.Marshal([]deleteDoc{{ID: in.TaskID, Action: "delete"}})
	if err != nil {
		return domain.Command{}, err
	}
	return domain.Command{Kind: domain.DeleteTask, Target: in.TaskID, Tx: tx}, nil
}

// EditTask builds the update of a confirmed task's name and completion flag
// and returns the fields as written. The action is implied by the transact
// semantics.
func EditTask(in domain.EditTaskIntent) (domain.Command, domain.Task, error) {
	if err := confirmedTarget(in.TaskID); err != nil {
		return domain.Command{}, domain.Task{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Command{}, domain.Task{}, domain.InvalidIntent("name", "is required")
	}
	tx, err := sonic.Marshal([]editDoc{{ID: in.TaskID, Name: name, IsCompleted: in.Completed}})
	if err != nil {
		return domain.Command{}, domain.Task{}, err
	}
	edited := domain.Task{ID: in.TaskID, Name: name, IsCompleted: in.Completed}
	return domain.Command{Kind: domain.EditTask, Target: in.TaskID, Tx: tx}, edited, nil
}

func confirmedTarget(id domain.ID) error {
	if id.IsZero() {
		return domain.InvalidIntent("taskId", "is required")
	}
	if id.IsTemp() {
		return domain.InvalidIntent("taskId", "must be a confirmed id")
	}
	return nil
}

func resolve(id domain.ID, snap Snapshot) domain.AssigneeRef {
	if id.IsZero() {
		return domain.AssigneeRef{}
	}
	if snap != nil {
		if a, ok := snap.Assignee(id); ok {
			return domain.Resolved(a)
		}
	}
	return domain.Ref(id)
}
