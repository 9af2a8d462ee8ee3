package timeout

import (
	"sync"
	"time"
)

// Phase is the lifecycle state of one execution's timer guard.
type Phase int32

const (
	PhaseArmed Phase = iota
	PhaseWarned
	PhaseTimedOut
	PhaseInterrupted
	PhaseDisarmed // terminal
)

func (p Phase) String() string {
	switch p {
	case PhaseArmed:
		return "ARMED"
	case PhaseWarned:
		return "WARNED"
	case PhaseTimedOut:
		return "TIMED_OUT"
	case PhaseInterrupted:
		return "INTERRUPTED"
	case PhaseDisarmed:
		return "DISARMED"
	default:
		return "UNKNOWN"
	}
}

// TimerState guards one in-flight execution. Exactly one exists per
// execution; it is created at arm time and never outlives its disarm.
//
// The mutex is the single point of synchronization between the execution
// thread (Disarm) and the timer goroutines (deadline callbacks). Phase
// transitions and their log lines happen inside the critical section so a
// callback that loses the race to DISARMED performs no action and no
// escalation log can postdate the execution's completion.
type TimerState struct {
	mu      sync.Mutex
	seq     uint64
	start   time.Time
	preview string
	phase   Phase

	warnTimer *time.Timer
	killTimer *time.Timer
}

// PhaseLocked returns the current phase for inspection.
func (s *TimerState) PhaseLocked() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}
