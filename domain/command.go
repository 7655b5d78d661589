package domain

import "github.com/bytedance/sonic"

// CommandKind names the mutation a command carries.
type CommandKind string

const (
	CreateList     CommandKind = "create-list"
	CreateAssignee CommandKind = "create-assignee"
	DeleteTask     CommandKind = "delete-task"
	EditTask       CommandKind = "edit-task"
)

// Signed reports whether commands of this kind travel as signed envelopes.
// Creations go through the unsigned transact endpoint.
func (k CommandKind) Signed() bool {
	return k == DeleteTask || k == EditTask
}

// Command is a serialized mutation statement ready to be signed or
// transacted. It is never modified after the builder returns it.
type Command struct {
	Kind    CommandKind            `json:"kind"`
	Target  ID                     `json:"target"`
	TempIDs []ID                   `json:"tempIds,omitempty"`
	Tx      sonic.NoCopyRawMessage `json:"tx"`
}

// TaskInput is the user supplied data for one task of a new list.
type TaskInput struct {
	Task       string `json:"task"`
	Completed  bool   `json:"completed"`
	AssignedTo ID     `json:"assignedTo,omitempty"`
}

// CreateListIntent asks for a new list with its tasks.
type CreateListIntent struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Owner       ID          `json:"listOwner,omitempty"`
	Tasks       []TaskInput `json:"tasks"`
}

// CreateAssigneeIntent asks for a new assignee.
type CreateAssigneeIntent struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DeleteTaskIntent asks for a confirmed task to be removed.
type DeleteTaskIntent struct {
	TaskID ID `json:"taskId"`
}

// EditTaskIntent replaces the mutable fields of a confirmed task.
type EditTaskIntent struct {
	TaskID    ID     `json:"taskId"`
	Name      string `json:"name"`
	Completed bool   `json:"isCompleted"`
}

// SignedEnvelope is the wire form accepted by the ledger command endpoint.
type SignedEnvelope struct {
	Auth      string `json:"auth"`
	DB        string `json:"db"`
	Expire    int64  `json:"expire"`
	Fuel      int64  `json:"fuel"`
	Nonce     int64  `json:"nonce"`
	Tx        string `json:"tx"`
	Signature string `json:"signature"`
}
