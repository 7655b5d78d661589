// Package reconcile folds terminal command outcomes into the local projection.
package reconcile

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"ledger-lists/domain"
	"ledger-lists/projection"
)

const appliedCapacity = 4096

// Change is what a command intended to do, captured when it was built.
// Only the fields for Kind are read.
type Change struct {
	Kind      domain.CommandKind
	Target    domain.ID
	List      domain.List
	Assignee  domain.Assignee
	Name      string
	Completed bool
}

// Reconciler applies outcomes to a projection.Store. It is the only writer of
// the store besides bulk loads.
type Reconciler struct {
	store  *projection.Store
	logger *log.Logger

	mu      sync.Mutex
	applied map[domain.TxHandle]struct{}
	order   []domain.TxHandle
}

func New(store *projection.Store, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Reconciler{store: store, logger: logger, applied: map[domain.TxHandle]struct{}{}}
}

// Apply folds out into the store. Rejected and TimedOut outcomes leave the
// store untouched and come back as *domain.RejectedError and
// *domain.TimedOutError; waited is reported in the latter. Applying the same
// confirmed handle twice is a no-op.
func (r *Reconciler) Apply(out domain.Outcome, ch Change, waited time.Duration) error {
	switch out.Status {
	case domain.Confirmed:
	case domain.Rejected:
		r.logger.WithFields(log.Fields{"tx": out.Handle, "kind": ch.Kind, "reason": out.Reason}).Info("reconcile.rejected")
		return &domain.RejectedError{Handle: out.Handle, Reason: out.Reason}
	case domain.TimedOut:
		r.logger.WithFields(log.Fields{"tx": out.Handle, "kind": ch.Kind, "waited": waited}).Warn("reconcile.timed_out")
		return &domain.TimedOutError{Handle: out.Handle, Waited: waited}
	default:
		return fmt.Errorf("reconcile %s: outcome %q is not terminal", out.Handle, out.Status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.applied[out.Handle]; ok && out.Handle != "" {
		r.logger.WithField("tx", out.Handle).Debug("reconcile.duplicate")
		return nil
	}

	var fn func(projection.State) (projection.State, error)
	switch ch.Kind {
	case domain.CreateList:
		fn = func(st projection.State) (projection.State, error) { return confirmList(st, ch.List, out) }
	case domain.CreateAssignee:
		fn = func(st projection.State) (projection.State, error) { return confirmAssignee(st, ch.Assignee, out) }
	case domain.DeleteTask:
		fn = func(st projection.State) (projection.State, error) { return confirmDelete(st, ch.Target), nil }
	case domain.EditTask:
		fn = func(st projection.State) (projection.State, error) {
			return confirmEdit(st, ch.Target, ch.Name, ch.Completed), nil
		}
	default:
		return fmt.Errorf("reconcile %s: unknown command kind %q", out.Handle, ch.Kind)
	}
	if err := r.store.Update(fn); err != nil {
		r.logger.WithError(err).WithFields(log.Fields{"tx": out.Handle, "kind": ch.Kind}).Error("reconcile.failed")
		return err
	}
	r.remember(out.Handle)
	r.logger.WithFields(log.Fields{"tx": out.Handle, "kind": ch.Kind, "target": ch.Target}).Info("reconcile.applied")
	return nil
}

// Applied reports whether a confirmed outcome for h has been folded in.
func (r *Reconciler) Applied(h domain.TxHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.applied[h]
	return ok
}

func (r *Reconciler) remember(h domain.TxHandle) {
	if h == "" {
		return
	}
	r.applied[h] = struct{}{}
	r.order = append(r.order, h)
	if len(r.order) > appliedCapacity {
		delete(r.applied, r.order[0])
		r.order = r.order[1:]
	}
}

func confirmList(st projection.State, draft domain.List, out domain.Outcome) (projection.State, error) {
	list := draft.Clone()
	id, err := permanent(out, draft.ID)
	if err != nil {
		return st, err
	}
	list.ID = id
	for i := range list.Tasks {
		t := &list.Tasks[i]
		if t.ID.IsTemp() {
			if t.ID, err = permanent(out, t.ID); err != nil {
				return st, err
			}
		}
		if !t.AssignedTo.IsZero() && !t.AssignedTo.IsResolved() {
			if a, ok := st.Assignee(t.AssignedTo.ID); ok {
				t.AssignedTo = domain.Resolved(a)
			}
		}
	}
	if list.Tasks == nil {
		list.Tasks = []domain.Task{}
	}
	if i := st.ListIndex(list.ID); i >= 0 {
		st.Lists[i] = list
	} else {
		st.Lists = append(st.Lists, list)
	}
	return st, nil
}

func confirmAssignee(st projection.State, draft domain.Assignee, out domain.Outcome) (projection.State, error) {
	a := draft
	if a.ID.IsTemp() {
		id, err := permanent(out, a.ID)
		if err != nil {
			return st, err
		}
		a.ID = id
	}
	replaced := false
	for i := range st.Assignees {
		if st.Assignees[i].ID == a.ID {
			st.Assignees[i] = a
			replaced = true
		}
	}
	if !replaced {
		st.Assignees = append(st.Assignees, a)
	}
	for i := range st.Lists {
		for j := range st.Lists[i].Tasks {
			ref := &st.Lists[i].Tasks[j].AssignedTo
			if ref.ID == a.ID {
				*ref = domain.Resolved(a)
			}
		}
	}
	return st, nil
}

func confirmDelete(st projection.State, task domain.ID) projection.State {
	i, j, ok := st.FindTask(task)
	if !ok {
		return st
	}
	tasks := st.Lists[i].Tasks
	st.Lists[i].Tasks = append(tasks[:j:j], tasks[j+1:]...)
	return st
}

func confirmEdit(st projection.State, task domain.ID, name string, completed bool) projection.State {
	i, j, ok := st.FindTask(task)
	if !ok {
		return st
	}
	st.Lists[i].Tasks[j].Name = name
	st.Lists[i].Tasks[j].IsCompleted = completed
	return st
}

func permanent(out domain.Outcome, temp domain.ID) (domain.ID, error) {
	id, ok := out.Permanent(temp)
	if !ok {
		return "", fmt.Errorf("%w: %s in transaction %s", domain.ErrUnresolvedTempID, temp, out.Handle)
	}
	return id, nil
}
