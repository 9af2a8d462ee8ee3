package timeout

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"kernel-sentinel/pkg/lifecycle"
)

// syncBuffer makes a bytes.Buffer safe for concurrent timer goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type noticeCapture struct {
	mu      sync.Mutex
	notices []lifecycle.ExecutionNotice
}

func (c *noticeCapture) PublishNotice(n lifecycle.ExecutionNotice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, n)
}

func (c *noticeCapture) all() []lifecycle.ExecutionNotice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]lifecycle.ExecutionNotice(nil), c.notices...)
}

type fakeInterrupter struct {
	calls atomic.Int64
	err   error
}

func (f *fakeInterrupter) InterruptCurrentExecution() error {
	f.calls.Add(1)
	return f.err
}

func newTestMonitor(cfg Config) (*Monitor, *noticeCapture, *fakeInterrupter, *syncBuffer) {
	buf := &syncBuffer{}
	sink := &noticeCapture{}
	intr := &fakeInterrupter{}
	m := New(cfg, zerolog.New(buf), sink, intr, nil)
	return m, sink, intr, buf
}

func TestWarningThenTimeoutWithoutInterrupt(t *testing.T) {
	m, sink, intr, buf := newTestMonitor(Config{
		Enabled:          true,
		WarningThreshold: 30 * time.Millisecond,
		TimeoutThreshold: 60 * time.Millisecond,
		AutoInterrupt:    false,
	})

	m.Arm(1, "time.sleep(12)")
	time.Sleep(150 * time.Millisecond)

	out := buf.String()
	if got := strings.Count(out, "LONG_EXECUTION | count=1"); got != 1 {
		t.Errorf("LONG_EXECUTION logged %d times, want 1:\n%s", got, out)
	}
	if got := strings.Count(out, "TIMEOUT_INTERRUPT | count=1"); got != 1 {
		t.Errorf("TIMEOUT_INTERRUPT logged %d times, want 1:\n%s", got, out)
	}
	if intr.calls.Load() != 0 {
		t.Errorf("interrupter called %d times with auto_interrupt disabled", intr.calls.Load())
	}

	notices := sink.all()
	if len(notices) != 2 {
		t.Fatalf("got %d notices, want 2 (warning + timeout): %+v", len(notices), notices)
	}
	if notices[0].Kind != lifecycle.NoticeWarning || notices[1].Kind != lifecycle.NoticeTimeout {
		t.Errorf("notice kinds = %s, %s; want warning, timeout", notices[0].Kind, notices[1].Kind)
	}
	if notices[1].Interrupted {
		t.Error("timeout notice marked interrupted with auto_interrupt disabled")
	}

	if got := m.state.PhaseLocked(); got != PhaseTimedOut {
		t.Errorf("phase = %s, want TIMED_OUT", got)
	}
	m.Disarm()
}

func TestAutoInterruptDeliveredOnce(t *testing.T) {
	m, sink, intr, _ := newTestMonitor(Config{
		Enabled:          true,
		WarningThreshold: 20 * time.Millisecond,
		TimeoutThreshold: 40 * time.Millisecond,
		AutoInterrupt:    true,
	})

	m.Arm(1, "while True: pass")
	time.Sleep(120 * time.Millisecond)

	if got := intr.calls.Load(); got != 1 {
		t.Errorf("interrupter called %d times, want exactly 1", got)
	}
	if got := m.state.PhaseLocked(); got != PhaseInterrupted {
		t.Errorf("phase = %s, want INTERRUPTED", got)
	}

	notices := sink.all()
	var timeoutNotice *lifecycle.ExecutionNotice
	for i := range notices {
		if notices[i].Kind == lifecycle.NoticeTimeout {
			timeoutNotice = &notices[i]
		}
	}
	if timeoutNotice == nil {
		t.Fatal("no timeout notice published")
	}
	if !timeoutNotice.Interrupted {
		t.Error("timeout notice not marked interrupted")
	}
	m.Disarm()
}

func TestFastCompletionFiresNothing(t *testing.T) {
	m, sink, intr, buf := newTestMonitor(Config{
		Enabled:          true,
		WarningThreshold: 50 * time.Millisecond,
		TimeoutThreshold: 100 * time.Millisecond,
		AutoInterrupt:    true,
	})

	m.Arm(1, "1 + 1")
	time.Sleep(5 * time.Millisecond)
	m.Disarm()

	// Wait well past both deadlines: nothing may fire after disarm.
	time.Sleep(200 * time.Millisecond)

	out := buf.String()
	if strings.Contains(out, "LONG_EXECUTION") || strings.Contains(out, "TIMEOUT_INTERRUPT") {
		t.Errorf("deadline callback fired after disarm:\n%s", out)
	}
	if intr.calls.Load() != 0 {
		t.Errorf("interrupter called %d times after fast completion", intr.calls.Load())
	}
	if len(sink.all()) != 0 {
		t.Errorf("notices published after fast completion: %+v", sink.all())
	}
}

func TestDisabledCreatesNoTimerState(t *testing.T) {
	m, _, _, _ := newTestMonitor(Config{Enabled: false, TimeoutThreshold: time.Millisecond})

	m.Arm(1, "anything")
	if m.state != nil {
		t.Error("TimerState created while monitoring disabled")
	}
	m.Disarm() // no-op, must not panic
}

func TestZeroWarningSkipsWarningPhase(t *testing.T) {
	m, sink, _, buf := newTestMonitor(Config{
		Enabled:          true,
		WarningThreshold: 0,
		TimeoutThreshold: 30 * time.Millisecond,
	})

	m.Arm(1, "slow()")
	time.Sleep(90 * time.Millisecond)

	out := buf.String()
	if strings.Contains(out, "LONG_EXECUTION") {
		t.Errorf("warning fired despite zero threshold:\n%s", out)
	}
	if !strings.Contains(out, "TIMEOUT_INTERRUPT | count=1") {
		t.Errorf("timeout did not fire from ARMED:\n%s", out)
	}
	for _, n := range sink.all() {
		if n.Kind == lifecycle.NoticeWarning {
			t.Errorf("warning notice published despite zero threshold: %+v", n)
		}
	}
	m.Disarm()
}

func TestCallbackLosesRaceToDisarm(t *testing.T) {
	m, sink, intr, buf := newTestMonitor(Config{
		Enabled:          true,
		WarningThreshold: time.Hour,
		TimeoutThreshold: 2 * time.Hour,
		AutoInterrupt:    true,
	})

	m.Arm(1, "fast")
	st := m.state
	m.Disarm()

	// Simulate timers firing after completion won the race.
	m.onWarning(st)
	m.onTimeout(st)

	out := buf.String()
	if strings.Contains(out, "LONG_EXECUTION") || strings.Contains(out, "TIMEOUT_INTERRUPT") {
		t.Errorf("late callback acted after DISARMED:\n%s", out)
	}
	if intr.calls.Load() != 0 || len(sink.all()) != 0 {
		t.Error("late callback produced side effects after DISARMED")
	}
	if got := st.PhaseLocked(); got != PhaseDisarmed {
		t.Errorf("phase = %s, want DISARMED", got)
	}
}

func TestStaleTargetInterruptSuppressed(t *testing.T) {
	m, _, intr, buf := newTestMonitor(Config{
		Enabled:          true,
		TimeoutThreshold: time.Hour,
		AutoInterrupt:    true,
	})

	// Execution 1's timer fires while execution 2 is already running.
	stale := &TimerState{seq: 1, start: time.Now().Add(-time.Hour), phase: PhaseArmed}
	m.active.Store(2)

	m.onTimeout(stale)

	if intr.calls.Load() != 0 {
		t.Errorf("interrupt delivered to stale target %d times", intr.calls.Load())
	}
	out := buf.String()
	if !strings.Contains(out, "TIMEOUT_INTERRUPT | count=1") {
		t.Errorf("escalation log missing for timed-out execution:\n%s", out)
	}
	if !strings.Contains(out, "interrupt suppressed") {
		t.Errorf("suppression not logged:\n%s", out)
	}
	if got := stale.PhaseLocked(); got != PhaseTimedOut {
		t.Errorf("phase = %s, want TIMED_OUT (not INTERRUPTED)", got)
	}
}

func TestAtMostOneWarningAndEscalation(t *testing.T) {
	m, _, _, buf := newTestMonitor(Config{
		Enabled:          true,
		WarningThreshold: time.Hour,
		TimeoutThreshold: 2 * time.Hour,
	})

	m.Arm(7, "x")
	st := m.state

	m.onWarning(st)
	m.onWarning(st)
	m.onTimeout(st)
	m.onTimeout(st)

	out := buf.String()
	if got := strings.Count(out, "LONG_EXECUTION | count=7"); got != 1 {
		t.Errorf("LONG_EXECUTION logged %d times, want 1", got)
	}
	if got := strings.Count(out, "TIMEOUT_INTERRUPT | count=7"); got != 1 {
		t.Errorf("TIMEOUT_INTERRUPT logged %d times, want 1", got)
	}
	m.Disarm()
}

func TestInterruptDeliveryFailureNotRetried(t *testing.T) {
	m, _, intr, buf := newTestMonitor(Config{
		Enabled:          true,
		TimeoutThreshold: 20 * time.Millisecond,
		AutoInterrupt:    true,
	})
	intr.err = errors.New("kernel gone")

	m.Arm(1, "x")
	time.Sleep(80 * time.Millisecond)

	if got := intr.calls.Load(); got != 1 {
		t.Errorf("interrupter called %d times, want 1 (no retry)", got)
	}
	if !strings.Contains(buf.String(), "interrupt delivery failed") {
		t.Errorf("delivery failure not logged:\n%s", buf.String())
	}
	m.Disarm()
}

func TestDisarmIdempotent(t *testing.T) {
	m, _, _, _ := newTestMonitor(Config{Enabled: true, TimeoutThreshold: time.Hour})

	m.Arm(1, "x")
	m.Disarm()
	m.Disarm()

	if m.active.Load() != 0 {
		t.Errorf("active = %d after disarm, want 0", m.active.Load())
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseArmed, "ARMED"},
		{PhaseWarned, "WARNED"},
		{PhaseTimedOut, "TIMED_OUT"},
		{PhaseInterrupted, "INTERRUPTED"},
		{PhaseDisarmed, "DISARMED"},
		{Phase(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.phase.String(); got != tt.want {
				t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
			}
		})
	}
}
