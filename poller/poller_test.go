package poller

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"ledger-lists/domain"
)

type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

type scriptedSource struct {
	clock   *fakeClock
	calls   []time.Time
	replies []func() (domain.Outcome, error)
}

func (s *scriptedSource) TxStatus(_ context.Context, h domain.TxHandle) (domain.Outcome, error) {
	s.calls = append(s.calls, s.clock.t)
	i := len(s.calls) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	out, err := s.replies[i]()
	out.Handle = h
	return out, err
}

func pending() (domain.Outcome, error) { return domain.Outcome{Status: domain.Pending}, nil }

func newTestPoller(src StatusSource, clock *fakeClock, cfg Config) *Poller {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return New(src, cfg, logger, WithClock(clock.now, clock.sleep))
}

func TestAwaitWaitsSettleDelayBeforeFirstQuery(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{t: start}
	src := &scriptedSource{clock: clock, replies: []func() (domain.Outcome, error){
		func() (domain.Outcome, error) { return domain.Outcome{Status: domain.Confirmed}, nil },
	}}
	p := newTestPoller(src, clock, DefaultConfig())

	out, err := p.Await(context.Background(), "f1a2", start)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if out.Status != domain.Confirmed || out.Handle != "f1a2" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(src.calls) != 1 {
		t.Fatalf("expected one status query, got %d", len(src.calls))
	}
	if got := src.calls[0].Sub(start); got < DefaultSettleDelay {
		t.Fatalf("first query issued %v after submission, want at least %v", got, DefaultSettleDelay)
	}
}

func TestAwaitRaisesShortSettleDelayToFloor(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{t: start}
	src := &scriptedSource{clock: clock, replies: []func() (domain.Outcome, error){
		func() (domain.Outcome, error) { return domain.Outcome{Status: domain.Confirmed}, nil },
	}}
	p := newTestPoller(src, clock, Config{SettleDelay: 100 * time.Millisecond, Deadline: 100 * time.Millisecond})

	out, err := p.Await(context.Background(), "f1a2", start)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if out.Status != domain.Confirmed {
		t.Fatalf("expected confirmed, got %s", out.Status)
	}
	if got := src.calls[0].Sub(start); got < MinSettleDelay {
		t.Fatalf("first query issued %v after submission, want at least %v", got, MinSettleDelay)
	}
}

func TestAwaitSkipsSettleDelayAlreadyElapsed(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{t: start.Add(3 * time.Second)}
	src := &scriptedSource{clock: clock, replies: []func() (domain.Outcome, error){
		func() (domain.Outcome, error) { return domain.Outcome{Status: domain.Confirmed}, nil },
	}}
	p := newTestPoller(src, clock, DefaultConfig())

	if _, err := p.Await(context.Background(), "f1a2", start); err != nil {
		t.Fatalf("await: %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Fatalf("expected no sleep, got %v", clock.sleeps)
	}
}

func TestAwaitPollsUntilConfirmed(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{t: start}
	src := &scriptedSource{clock: clock, replies: []func() (domain.Outcome, error){
		pending,
		pending,
		func() (domain.Outcome, error) { return domain.Outcome{Status: domain.Confirmed}, nil },
	}}
	p := newTestPoller(src, clock, DefaultConfig())

	out, err := p.Await(context.Background(), "f1a2", start)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if out.Status != domain.Confirmed {
		t.Fatalf("expected confirmed, got %s", out.Status)
	}
	if len(src.calls) != 3 {
		t.Fatalf("expected three status queries, got %d", len(src.calls))
	}
	for i := 1; i < len(src.calls); i++ {
		if !src.calls[i].After(src.calls[i-1]) {
			t.Fatalf("query %d not spaced from previous", i)
		}
	}
}

func TestAwaitReturnsRejectedOutcome(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{t: start}
	src := &scriptedSource{clock: clock, replies: []func() (domain.Outcome, error){
		func() (domain.Outcome, error) {
			return domain.Outcome{Status: domain.Rejected, Reason: "insufficient permissions"}, nil
		},
	}}
	p := newTestPoller(src, clock, DefaultConfig())

	out, err := p.Await(context.Background(), "f1a2", start)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if out.Status != domain.Rejected || out.Reason != "insufficient permissions" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestAwaitTimesOutWhilePending(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{t: start}
	src := &scriptedSource{clock: clock, replies: []func() (domain.Outcome, error){pending}}
	p := newTestPoller(src, clock, DefaultConfig())

	out, err := p.Await(context.Background(), "f1a2", start)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if out.Status != domain.TimedOut {
		t.Fatalf("expected timed-out, got %s", out.Status)
	}
	if waited := clock.t.Sub(start); waited != DefaultDeadline {
		t.Fatalf("expected to stop at the deadline, waited %v", waited)
	}
	if len(src.calls) < 3 {
		t.Fatalf("expected several polls, got %d", len(src.calls))
	}
}

func TestAwaitSingleShotWindow(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{t: start}
	src := &scriptedSource{clock: clock, replies: []func() (domain.Outcome, error){pending}}
	p := newTestPoller(src, clock, Config{SettleDelay: time.Second, Deadline: time.Second})

	out, err := p.Await(context.Background(), "f1a2", start)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if out.Status != domain.TimedOut || len(src.calls) != 1 {
		t.Fatalf("expected one poll then timed-out, got %s after %d polls", out.Status, len(src.calls))
	}
}

func TestAwaitUnreachableLedgerIsSubmissionError(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{t: start}
	down := &domain.SubmissionError{Op: "tx-status", StatusCode: 503, Recoverable: true, Err: errors.New("unavailable")}
	src := &scriptedSource{clock: clock, replies: []func() (domain.Outcome, error){
		func() (domain.Outcome, error) { return domain.Outcome{}, down },
	}}
	p := newTestPoller(src, clock, DefaultConfig())

	_, err := p.Await(context.Background(), "f1a2", start)
	var subErr *domain.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected submission error, got %v", err)
	}
	if !domain.Unknown(err) {
		t.Fatalf("expected unknown-fate error")
	}
}

func TestAwaitTransientFailureThenConfirmed(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{t: start}
	src := &scriptedSource{clock: clock, replies: []func() (domain.Outcome, error){
		func() (domain.Outcome, error) {
			return domain.Outcome{}, &domain.SubmissionError{Op: "tx-status", Recoverable: true, Err: errors.New("reset")}
		},
		func() (domain.Outcome, error) { return domain.Outcome{Status: domain.Confirmed}, nil },
	}}
	p := newTestPoller(src, clock, DefaultConfig())

	out, err := p.Await(context.Background(), "f1a2", start)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if out.Status != domain.Confirmed {
		t.Fatalf("expected confirmed, got %s", out.Status)
	}
}

func TestAwaitPermanentQueryFailureStops(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{t: start}
	src := &scriptedSource{clock: clock, replies: []func() (domain.Outcome, error){
		func() (domain.Outcome, error) {
			return domain.Outcome{}, &domain.SubmissionError{Op: "tx-status", StatusCode: 500, Err: errors.New("boom")}
		},
	}}
	p := newTestPoller(src, clock, DefaultConfig())

	if _, err := p.Await(context.Background(), "f1a2", start); err == nil {
		t.Fatalf("expected error")
	}
	if len(src.calls) != 1 {
		t.Fatalf("expected polling to stop after a permanent failure, got %d calls", len(src.calls))
	}
}

func TestAwaitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &scriptedSource{clock: &fakeClock{}, replies: []func() (domain.Outcome, error){pending}}
	p := New(src, DefaultConfig(), nil)

	_, err := p.Await(ctx, "f1a2", time.Now())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if domain.Classify(err) != domain.ClassSubmission {
		t.Fatalf("expected submission class, got %s", domain.Classify(err))
	}
}

func TestBackoffStaysWithinJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoff(attempt, 250*time.Millisecond, 2*time.Second)
		if d < 200*time.Millisecond || d > 2400*time.Millisecond {
			t.Fatalf("attempt %d: backoff %v out of bounds", attempt, d)
		}
	}
}
