package kernel

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Sentinel errors for interrupt delivery.
var (
	ErrNoKernel        = errors.New("no kernel process configured")
	ErrInterruptFailed = errors.New("interrupt delivery failed")
)

// SignalInterrupter delivers SIGINT to the kernel process, semantically the
// same as a user pressing "interrupt kernel": the running code sees a
// cooperative cancellation at its next interruptible point. Best-effort only;
// code that masks the signal or never reaches a checkpoint is untouched.
type SignalInterrupter struct {
	pid int
	log zerolog.Logger
}

// NewSignalInterrupter creates an interrupter targeting the given PID.
func NewSignalInterrupter(logger zerolog.Logger, pid int) *SignalInterrupter {
	return &SignalInterrupter{pid: pid, log: logger}
}

// InterruptCurrentExecution sends SIGINT to the kernel process.
func (s *SignalInterrupter) InterruptCurrentExecution() error {
	if s.pid <= 0 {
		return ErrNoKernel
	}

	proc, err := os.FindProcess(s.pid)
	if err != nil {
		return fmt.Errorf("%w: finding pid %d: %v", ErrInterruptFailed, s.pid, err)
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("%w: signaling pid %d: %v", ErrInterruptFailed, s.pid, err)
	}

	s.log.Info().Int("pid", s.pid).Msg("sent SIGINT to kernel process")
	return nil
}

// NopInterrupter logs and discards interrupt requests. Used when no kernel
// PID is configured so escalation still surfaces in logs and metrics.
type NopInterrupter struct {
	log zerolog.Logger
}

func NewNopInterrupter(logger zerolog.Logger) *NopInterrupter {
	return &NopInterrupter{log: logger}
}

func (n *NopInterrupter) InterruptCurrentExecution() error {
	n.log.Warn().Msg("interrupt requested but signaling is disabled (kernel.pid not set)")
	return nil
}
