package engine

import (
	"time"

	log "github.com/sirupsen/logrus"

	"ledger-lists/domain"
)

type lifecycleMetrics struct {
	logger     *log.Logger
	kind       domain.CommandKind
	start      time.Time
	build      time.Duration
	sign       time.Duration
	submit     time.Duration
	await      time.Duration
	reconcile  time.Duration
	handle     domain.TxHandle
	status     domain.Status
	errorStage string
}

func newLifecycleMetrics(logger *log.Logger, kind domain.CommandKind) *lifecycleMetrics {
	return &lifecycleMetrics{logger: logger, kind: kind, start: time.Now()}
}

func (m *lifecycleMetrics) ObserveBuild(d time.Duration)     { m.build = d }
func (m *lifecycleMetrics) ObserveSign(d time.Duration)      { m.sign = d }
func (m *lifecycleMetrics) ObserveSubmit(d time.Duration)    { m.submit = d }
func (m *lifecycleMetrics) ObserveAwait(d time.Duration)     { m.await = d }
func (m *lifecycleMetrics) ObserveReconcile(d time.Duration) { m.reconcile = d }

func (m *lifecycleMetrics) SetOutcome(h domain.TxHandle, s domain.Status) {
	if h != "" {
		m.handle = h
	}
	if s != "" {
		m.status = s
	}
}

func (m *lifecycleMetrics) SetErrorStage(stage string) {
	if stage == "" || m.errorStage != "" {
		return
	}
	m.errorStage = stage
}

func (m *lifecycleMetrics) Log(err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"kind":     m.kind,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.handle != "" {
		fields["tx"] = m.handle
	}
	if m.status != "" {
		fields["status"] = m.status
	}
	for name, d := range map[string]time.Duration{
		"build_ms":     m.build,
		"sign_ms":      m.sign,
		"submit_ms":    m.submit,
		"await_ms":     m.await,
		"reconcile_ms": m.reconcile,
	} {
		if d > 0 {
			fields[name] = durationToMillis(d)
		}
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["error_class"] = domain.Classify(err)
	}

	m.logger.WithFields(fields).Info("command.lifecycle.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
