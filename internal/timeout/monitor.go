// Package timeout watches in-flight executions against two configured
// deadlines. Deadline callbacks run on timer goroutines, concurrently with
// the kernel's execution thread; everything else in the sentinel is
// single-threaded. Per execution the monitor guarantees at most one warning,
// at most one escalation and zero or one interrupt request.
//
// Interruption is cooperative and best-effort: the monitor asks the host to
// raise a cancellation condition at the running code's next interruptible
// point. Code that masks or never reaches such a point cannot be preempted.
package timeout

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"kernel-sentinel/internal/monitor"
	"kernel-sentinel/pkg/lifecycle"
)

// Interrupter delivers a best-effort cancellation condition to whatever code
// the kernel is currently running.
type Interrupter interface {
	InterruptCurrentExecution() error
}

// NoticeSink receives warning/timeout notices. Implementations swallow their
// own failures.
type NoticeSink interface {
	PublishNotice(n lifecycle.ExecutionNotice)
}

// Config is the monitor's slice of the configuration snapshot. A threshold
// of zero or below skips that phase.
type Config struct {
	Enabled          bool
	WarningThreshold time.Duration
	TimeoutThreshold time.Duration
	AutoInterrupt    bool
}

// Monitor arms a TimerState per execution and disarms it on completion.
// Arm and Disarm are called from the execution thread only; the deadline
// callbacks run on timer goroutines.
type Monitor struct {
	cfg     Config
	log     zerolog.Logger
	sink    NoticeSink
	intr    Interrupter
	metrics *monitor.Metrics

	// Sequence number of the in-flight execution, 0 when idle. Read by
	// timer goroutines to suppress interrupts aimed at a stale target.
	active atomic.Uint64

	// Current timer state; touched only on the execution thread.
	state *TimerState
}

// New creates a Monitor. Sink, interrupter and metrics may be nil.
func New(cfg Config, logger zerolog.Logger, sink NoticeSink, intr Interrupter, metrics *monitor.Metrics) *Monitor {
	return &Monitor{
		cfg:     cfg,
		log:     logger,
		sink:    sink,
		intr:    intr,
		metrics: metrics,
	}
}

// Enabled reports whether the monitor arms timers at all.
func (m *Monitor) Enabled() bool {
	return m.cfg.Enabled
}

// Arm creates the TimerState for an execution and schedules its deadline
// callbacks. Scheduling faults fail open: the execution proceeds unmonitored.
func (m *Monitor) Arm(seq uint64, preview string) {
	if !m.cfg.Enabled {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn().Interface("panic", r).Uint64("count", seq).
				Msg("timer scheduling failed, execution proceeds unmonitored")
		}
	}()

	if m.state != nil {
		// A new pre-execute cannot arrive before the prior post-execute by
		// host construction; recover anyway rather than leak a live timer.
		m.log.Warn().Uint64("stale_count", m.state.seq).Msg("arming over live timer state, disarming previous")
		m.Disarm()
	}

	st := &TimerState{
		seq:     seq,
		start:   time.Now(),
		preview: preview,
		phase:   PhaseArmed,
	}
	m.state = st
	m.active.Store(seq)

	if m.cfg.WarningThreshold > 0 {
		st.warnTimer = time.AfterFunc(m.cfg.WarningThreshold, func() { m.onWarning(st) })
	}
	if m.cfg.TimeoutThreshold > 0 {
		st.killTimer = time.AfterFunc(m.cfg.TimeoutThreshold, func() { m.onTimeout(st) })
	}

	m.log.Debug().
		Uint64("count", seq).
		Dur("warning_threshold", m.cfg.WarningThreshold).
		Dur("timeout_threshold", m.cfg.TimeoutThreshold).
		Bool("auto_interrupt", m.cfg.AutoInterrupt).
		Msg("timeout monitoring armed")
}

// Disarm unconditionally retires the current TimerState. Idempotent, safe
// while a deadline callback is mid-flight, and never blocks on one: the only
// wait is the state mutex, which callbacks hold for a bounded transition.
func (m *Monitor) Disarm() {
	st := m.state
	if st == nil {
		return
	}
	m.state = nil

	// Clear the active target first so an interrupt that races past the
	// phase check is still suppressed at delivery time.
	m.active.Store(0)

	st.mu.Lock()
	if st.warnTimer != nil {
		st.warnTimer.Stop()
	}
	if st.killTimer != nil {
		st.killTimer.Stop()
	}
	prev := st.phase
	st.phase = PhaseDisarmed
	st.mu.Unlock()

	m.log.Debug().Uint64("count", st.seq).Str("phase", prev.String()).Msg("timeout monitoring disarmed")
}

// onWarning is the warning deadline callback: ARMED -> WARNED.
func (m *Monitor) onWarning(st *TimerState) {
	st.mu.Lock()
	if st.phase != PhaseArmed {
		st.mu.Unlock()
		return
	}
	st.phase = PhaseWarned
	elapsed := time.Since(st.start)
	m.log.Warn().Msgf("LONG_EXECUTION | count=%d | elapsed=%.1fs | threshold=%gs",
		st.seq, elapsed.Seconds(), m.cfg.WarningThreshold.Seconds())
	st.mu.Unlock()

	if m.metrics != nil {
		m.metrics.LongExecutionsTotal.Inc()
	}
	if m.sink != nil {
		m.sink.PublishNotice(lifecycle.ExecutionNotice{
			ExecutionCount:   st.seq,
			Kind:             lifecycle.NoticeWarning,
			ElapsedSeconds:   elapsed.Seconds(),
			ThresholdSeconds: m.cfg.WarningThreshold.Seconds(),
			Preview:          st.preview,
		})
	}
}

// onTimeout is the timeout deadline callback: ARMED|WARNED -> TIMED_OUT,
// then TIMED_OUT -> INTERRUPTED when auto-interrupt is enabled and the
// execution is still the current one.
func (m *Monitor) onTimeout(st *TimerState) {
	st.mu.Lock()
	if st.phase != PhaseArmed && st.phase != PhaseWarned {
		st.mu.Unlock()
		return
	}
	st.phase = PhaseTimedOut
	elapsed := time.Since(st.start)
	m.log.Error().Msgf("TIMEOUT_INTERRUPT | count=%d | elapsed=%.1fs", st.seq, elapsed.Seconds())

	interrupt := false
	if m.cfg.AutoInterrupt {
		if m.active.Load() == st.seq {
			st.phase = PhaseInterrupted
			interrupt = true
		} else {
			m.log.Warn().Uint64("count", st.seq).Msg("interrupt suppressed, execution no longer current")
			if m.metrics != nil {
				m.metrics.RecordInterrupt("suppressed")
			}
		}
	}
	st.mu.Unlock()

	if m.metrics != nil {
		m.metrics.TimeoutsTotal.Inc()
	}
	if m.sink != nil {
		m.sink.PublishNotice(lifecycle.ExecutionNotice{
			ExecutionCount:   st.seq,
			Kind:             lifecycle.NoticeTimeout,
			ElapsedSeconds:   elapsed.Seconds(),
			ThresholdSeconds: m.cfg.TimeoutThreshold.Seconds(),
			Preview:          st.preview,
			Interrupted:      interrupt,
		})
	}

	if !interrupt {
		return
	}
	m.deliverInterrupt(st.seq)
}

// deliverInterrupt signals the host. The target is re-verified immediately
// before signaling: an interrupt must never be delivered for a sequence
// number that is not the currently executing one. Delivery failures are
// logged and never retried.
func (m *Monitor) deliverInterrupt(seq uint64) {
	if m.active.Load() != seq {
		m.log.Warn().Uint64("count", seq).Msg("interrupt suppressed at delivery, execution completed")
		if m.metrics != nil {
			m.metrics.RecordInterrupt("suppressed")
		}
		return
	}
	if m.intr == nil {
		m.log.Error().Uint64("count", seq).Msg("interrupt requested but no interrupter configured")
		if m.metrics != nil {
			m.metrics.RecordInterrupt("failed")
		}
		return
	}
	if err := m.intr.InterruptCurrentExecution(); err != nil {
		m.log.Error().Err(err).Uint64("count", seq).Msg("interrupt delivery failed")
		if m.metrics != nil {
			m.metrics.RecordInterrupt("failed")
		}
		return
	}
	m.log.Info().Uint64("count", seq).Msg("interrupt delivered to kernel")
	if m.metrics != nil {
		m.metrics.RecordInterrupt("delivered")
	}
}
