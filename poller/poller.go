// Package poller waits for the ledger to reach a terminal decision on a
// signed command.
package poller

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"ledger-lists/domain"
)

const (
	// DefaultSettleDelay is how long the query peer needs to see a write
	// accepted by the command peer. Polling earlier reads stale state.
	DefaultSettleDelay    = time.Second
	MinSettleDelay        = time.Second
	DefaultDeadline       = 10 * time.Second
	DefaultBackoffInitial = 250 * time.Millisecond
	DefaultBackoffMax     = 2 * time.Second
)

// StatusSource reports the state of a transaction.
type StatusSource interface {
	TxStatus(ctx context.Context, h domain.TxHandle) (domain.Outcome, error)
}

// Config bounds the polling window. A Deadline not longer than SettleDelay
// yields exactly one status query.
type Config struct {
	SettleDelay    time.Duration
	Deadline       time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// DefaultConfig returns the stock polling window.
func DefaultConfig() Config {
	return Config{
		SettleDelay:    DefaultSettleDelay,
		Deadline:       DefaultDeadline,
		BackoffInitial: DefaultBackoffInitial,
		BackoffMax:     DefaultBackoffMax,
	}
}

// Poller drives Pending transactions to Confirmed, Rejected or TimedOut.
type Poller struct {
	src    StatusSource
	cfg    Config
	logger *log.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option customises a Poller.
type Option func(*Poller)

// WithClock replaces the wall clock and the sleep function.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// New creates a Poller. Zero durations in cfg fall back to the defaults and
// a SettleDelay below MinSettleDelay is raised to it.
func New(src StatusSource, cfg Config, logger *log.Logger, opts ...Option) *Poller {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.SettleDelay < MinSettleDelay {
		cfg.SettleDelay = MinSettleDelay
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.Deadline < cfg.SettleDelay {
		cfg.Deadline = cfg.SettleDelay
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = DefaultBackoffInitial
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	p := &Poller{src: src, cfg: cfg, logger: logger, now: time.Now, sleep: sleepCtx}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Await polls the status of h, submitted at submittedAt, until a terminal
// outcome is observed or the deadline passes. Rejected and TimedOut are
// returned as outcomes; an error means the ledger could not be reached at
// all and the command's fate is unknown.
func (p *Poller) Await(ctx context.Context, h domain.TxHandle, submittedAt time.Time) (domain.Outcome, error) {
	deadline := submittedAt.Add(p.cfg.Deadline)
	if wait := submittedAt.Add(p.cfg.SettleDelay).Sub(p.now()); wait > 0 {
		if err := p.sleep(ctx, wait); err != nil {
			return domain.Outcome{}, &domain.SubmissionError{Op: "tx-status", Err: err}
		}
	}

	var (
		lastErr error
		reached bool
	)
	for attempt := 1; ; attempt++ {
		out, err := p.src.TxStatus(ctx, h)
		switch {
		case err == nil:
			reached = true
			if out.Status.Terminal() {
				p.logger.WithFields(log.Fields{"tx": h, "status": out.Status, "attempts": attempt}).Debug("poller.terminal")
				return out, nil
			}
		case ctx.Err() != nil:
			return domain.Outcome{}, &domain.SubmissionError{Op: "tx-status", Err: ctx.Err()}
		default:
			var subErr *domain.SubmissionError
			if errors.As(err, &subErr) && !subErr.Recoverable {
				return domain.Outcome{}, err
			}
			if !errors.As(err, &subErr) {
				return domain.Outcome{}, &domain.SubmissionError{Op: "tx-status", Err: err}
			}
			lastErr = err
			p.logger.WithError(err).WithFields(log.Fields{"tx": h, "attempt": attempt}).Warn("poller.retry")
		}

		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			break
		}
		d := backoff(attempt, p.cfg.BackoffInitial, p.cfg.BackoffMax)
		if d > remaining {
			d = remaining
		}
		if err := p.sleep(ctx, d); err != nil {
			return domain.Outcome{}, &domain.SubmissionError{Op: "tx-status", Err: err}
		}
	}

	if !reached {
		return domain.Outcome{}, &domain.SubmissionError{Op: "tx-status", Recoverable: true, Err: lastErr}
	}
	return domain.Outcome{Handle: h, Status: domain.TimedOut, Reason: "no terminal status before deadline"}, nil
}

func backoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		return initial
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if d > float64(max) {
		d = float64(max)
	}
	jitter := 0.2 * d
	return time.Duration(d + (rand.Float64()-0.5)*2*jitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
