// Package engine runs mutation intents through their full lifecycle: build,
// sign, submit, await confirmation and reconcile into the local projection.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ledger-lists/builder"
	"ledger-lists/domain"
	"ledger-lists/ledger"
	"ledger-lists/projection"
	"ledger-lists/reconcile"
	"ledger-lists/storage"
)

// Signer produces signed envelopes for commands.
type Signer interface {
	Sign(ctx context.Context, id domain.Identity, cmd domain.Command) (domain.SignedEnvelope, error)
}

// Submitter hands submissions to the ledger.
type Submitter interface {
	Submit(ctx context.Context, s ledger.Submission) (ledger.Receipt, error)
}

// Awaiter resolves a pending handle to a terminal outcome.
type Awaiter interface {
	Await(ctx context.Context, h domain.TxHandle, submittedAt time.Time) (domain.Outcome, error)
}

// Loader runs the bulk-load queries.
type Loader interface {
	FetchLists(ctx context.Context) ([]domain.List, error)
	FetchAssignees(ctx context.Context) ([]domain.Assignee, error)
	FetchOwners(ctx context.Context) ([]domain.Owner, error)
}

// Journal records terminal outcomes.
type Journal interface {
	Record(ctx context.Context, e storage.Entry) error
}

// Evictor drops cached bulk-load results.
type Evictor interface {
	Evict(ctx context.Context)
}

// Deps are the collaborators of an Engine. Journal and Cache are optional.
type Deps struct {
	DB         string
	Store      *projection.Store
	Reconciler *reconcile.Reconciler
	Signer     Signer
	Submitter  Submitter
	Poller     Awaiter
	Loader     Loader
	Journal    Journal
	Cache      Evictor
	Logger     *log.Logger
	Tracer     trace.Tracer
	Now        func() time.Time
}

// Engine is safe for concurrent use. Concurrent edits of the same task are
// applied in confirmation order, so the last confirmed edit wins.
type Engine struct {
	db         string
	store      *projection.Store
	reconciler *reconcile.Reconciler
	signer     Signer
	submitter  Submitter
	poller     Awaiter
	loader     Loader
	journal    Journal
	cache      Evictor
	logger     *log.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func New(d Deps) *Engine {
	if d.Store == nil {
		panic("engine.New: store is nil")
	}
	e := &Engine{
		db:         d.DB,
		store:      d.Store,
		reconciler: d.Reconciler,
		signer:     d.Signer,
		submitter:  d.Submitter,
		poller:     d.Poller,
		loader:     d.Loader,
		journal:    d.Journal,
		cache:      d.Cache,
		logger:     d.Logger,
		tracer:     d.Tracer,
		now:        d.Now,
	}
	if e.logger == nil {
		e.logger = log.StandardLogger()
	}
	if e.reconciler == nil {
		e.reconciler = reconcile.New(e.store, e.logger)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("ledger-lists/engine")
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Load replaces the projection with the ledger's current lists, assignees
// and owners.
func (e *Engine) Load(ctx context.Context) (err error) {
	ctx, span := e.tracer.Start(ctx, "engine.load", trace.WithAttributes(attribute.String("ledger.db", e.db)))
	defer func() { endSpan(span, err) }()

	assignees, err := e.loader.FetchAssignees(ctx)
	if err != nil {
		return fmt.Errorf("load assignees: %w", err)
	}
	lists, err := e.loader.FetchLists(ctx)
	if err != nil {
		return fmt.Errorf("load lists: %w", err)
	}
	owners, err := e.loader.FetchOwners(ctx)
	if err != nil {
		return fmt.Errorf("load owners: %w", err)
	}
	e.store.SetAssignees(assignees)
	e.store.SetLists(lists)
	e.store.SetOwners(owners)
	span.SetAttributes(attribute.Int("lists", len(lists)), attribute.Int("assignees", len(assignees)))
	e.logger.WithFields(log.Fields{"lists": len(lists), "assignees": len(assignees), "owners": len(owners)}).Info("engine.loaded")
	return nil
}

func (e *Engine) reloadLists(ctx context.Context) error {
	if e.cache != nil {
		e.cache.Evict(ctx)
	}
	lists, err := e.loader.FetchLists(ctx)
	if err != nil {
		return err
	}
	e.store.SetLists(lists)
	return nil
}

func (e *Engine) Lists() []domain.List         { return e.store.Snapshot().Lists }
func (e *Engine) Assignees() []domain.Assignee { return e.store.Snapshot().Assignees }
func (e *Engine) Owners() []domain.Owner       { return e.store.Snapshot().Owners }

// CreateList transacts a new list and returns it with permanent ids once the
// ledger has confirmed it.
func (e *Engine) CreateList(ctx context.Context, id domain.Identity, in domain.CreateListIntent) (domain.List, error) {
	m := newLifecycleMetrics(e.logger, domain.CreateList)
	start := time.Now()
	cmd, draft, err := builder.CreateList(in, e.store.Snapshot())
	m.ObserveBuild(time.Since(start))
	if err != nil {
		m.SetErrorStage("build")
		m.Log(err)
		return domain.List{}, err
	}
	out, err := e.run(ctx, m, id, cmd, reconcile.Change{Kind: cmd.Kind, Target: cmd.Target, List: draft})
	if err != nil {
		return domain.List{}, err
	}
	listID, ok := out.Permanent(draft.ID)
	if !ok {
		return domain.List{}, fmt.Errorf("%w: %s in transaction %s", domain.ErrUnresolvedTempID, draft.ID, out.Handle)
	}
	st := e.store.Snapshot()
	if i := st.ListIndex(listID); i >= 0 {
		return st.Lists[i], nil
	}
	return domain.List{}, fmt.Errorf("list %s confirmed but not visible after reload", listID)
}

// CreateAssignee transacts a new assignee.
func (e *Engine) CreateAssignee(ctx context.Context, id domain.Identity, in domain.CreateAssigneeIntent) (domain.Assignee, error) {
	m := newLifecycleMetrics(e.logger, domain.CreateAssignee)
	start := time.Now()
	cmd, draft, err := builder.CreateAssignee(in)
	m.ObserveBuild(time.Since(start))
	if err != nil {
		m.SetErrorStage("build")
		m.Log(err)
		return domain.Assignee{}, err
	}
	out, err := e.run(ctx, m, id, cmd, reconcile.Change{Kind: cmd.Kind, Target: cmd.Target, Assignee: draft})
	if err != nil {
		return domain.Assignee{}, err
	}
	permID, ok := out.Permanent(draft.ID)
	if !ok {
		return domain.Assignee{}, fmt.Errorf("%w: %s in transaction %s", domain.ErrUnresolvedTempID, draft.ID, out.Handle)
	}
	a, _ := e.store.Snapshot().Assignee(permID)
	return a, nil
}

// DeleteTask signs and submits the removal of a task and waits for the
// ledger's verdict. The task stays in the projection until confirmed.
func (e *Engine) DeleteTask(ctx context.Context, id domain.Identity, in domain.DeleteTaskIntent) error {
	m := newLifecycleMetrics(e.logger, domain.DeleteTask)
	start := time.Now()
	cmd, err := builder.DeleteTask(in)
	m.ObserveBuild(time.Since(start))
	if err != nil {
		m.SetErrorStage("build")
		m.Log(err)
		return err
	}
	_, err = e.run(ctx, m, id, cmd, reconcile.Change{Kind: cmd.Kind, Target: cmd.Target})
	return err
}

// EditTask signs and submits a new name and completion flag for a task and
// returns the task as projected after confirmation.
func (e *Engine) EditTask(ctx context.Context, id domain.Identity, in domain.EditTaskIntent) (domain.Task, error) {
	m := newLifecycleMetrics(e.logger, domain.EditTask)
	start := time.Now()
	cmd, edited, err := builder.EditTask(in)
	m.ObserveBuild(time.Since(start))
	if err != nil {
		m.SetErrorStage("build")
		m.Log(err)
		return domain.Task{}, err
	}
	ch := reconcile.Change{Kind: cmd.Kind, Target: cmd.Target, Name: edited.Name, Completed: edited.IsCompleted}
	if _, err := e.run(ctx, m, id, cmd, ch); err != nil {
		return domain.Task{}, err
	}
	st := e.store.Snapshot()
	if i, j, ok := st.FindTask(in.TaskID); ok {
		return st.Lists[i].Tasks[j], nil
	}
	return edited, nil
}

func (e *Engine) run(ctx context.Context, m *lifecycleMetrics, id domain.Identity, cmd domain.Command, ch reconcile.Change) (out domain.Outcome, err error) {
	ctx, span := e.tracer.Start(ctx, "command."+string(cmd.Kind), trace.WithAttributes(
		attribute.String("command.kind", string(cmd.Kind)),
		attribute.String("command.target", cmd.Target.String()),
		attribute.String("ledger.db", e.db),
		attribute.Bool("command.signed", cmd.Kind.Signed()),
	))
	defer func() {
		span.SetAttributes(attribute.String("tx.handle", string(out.Handle)), attribute.String("tx.status", string(out.Status)))
		endSpan(span, err)
		m.SetOutcome(out.Handle, out.Status)
		m.Log(err)
	}()

	sub := ledger.Submission{Command: cmd}
	if cmd.Kind.Signed() {
		start := time.Now()
		env, err := e.signer.Sign(ctx, id, cmd)
		m.ObserveSign(time.Since(start))
		if err != nil {
			m.SetErrorStage("sign")
			return domain.Outcome{}, err
		}
		sub.Envelope = &env
	}

	submittedAt := e.now()
	start := time.Now()
	rcpt, err := e.submitter.Submit(ctx, sub)
	m.ObserveSubmit(time.Since(start))
	if err != nil {
		m.SetErrorStage("submit")
		var rej *domain.RejectedError
		if errors.As(err, &rej) {
			out = domain.Outcome{Handle: rcpt.Handle, Status: domain.Rejected, Reason: rej.Reason}
			e.record(ctx, id, cmd, out, 0)
		}
		return out, err
	}
	out = rcpt.Outcome
	span.AddEvent("submitted", trace.WithAttributes(attribute.String("tx.handle", string(rcpt.Handle))))

	if out.Status == domain.Pending {
		start = time.Now()
		out, err = e.poller.Await(ctx, rcpt.Handle, submittedAt)
		m.ObserveAwait(time.Since(start))
		if err != nil {
			m.SetErrorStage("await")
			return domain.Outcome{Handle: rcpt.Handle}, err
		}
	}
	waited := e.now().Sub(submittedAt)

	start = time.Now()
	err = e.reconciler.Apply(out, ch, waited)
	m.ObserveReconcile(time.Since(start))
	if errors.Is(err, domain.ErrUnresolvedTempID) {
		e.logger.WithError(err).WithField("tx", out.Handle).Warn("engine.reload_after_unmapped_create")
		if rerr := e.reloadLists(ctx); rerr != nil {
			m.SetErrorStage("reconcile")
			return out, errors.Join(err, fmt.Errorf("reload lists: %w", rerr))
		}
		err = nil
	}
	e.record(ctx, id, cmd, out, waited)
	if err != nil {
		if !errors.As(err, new(*domain.RejectedError)) && !errors.As(err, new(*domain.TimedOutError)) {
			m.SetErrorStage("reconcile")
		}
		return out, err
	}
	if e.cache != nil {
		e.cache.Evict(ctx)
	}
	return out, nil
}

func (e *Engine) record(ctx context.Context, id domain.Identity, cmd domain.Command, out domain.Outcome, waited time.Duration) {
	if e.journal == nil {
		return
	}
	entry := storage.Entry{
		DB:        e.db,
		Handle:    out.Handle,
		Kind:      cmd.Kind,
		Target:    cmd.Target,
		Identity:  id.Name,
		Status:    out.Status,
		Reason:    out.Reason,
		TempIDs:   out.TempIDs,
		Waited:    waited,
		Completed: e.now(),
	}
	if err := e.journal.Record(ctx, entry); err != nil {
		e.logger.WithError(err).WithField("tx", out.Handle).Warn("engine.journal_failed")
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
