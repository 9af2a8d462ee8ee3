// Package kernel adapts the execution host's lifecycle hooks to the
// sentinel's tracker and timeout monitor, and provides the interrupt
// capability used on escalation.
package kernel

import (
	"sync"

	"github.com/rs/zerolog"

	"kernel-sentinel/internal/timeout"
	"kernel-sentinel/internal/track"
	"kernel-sentinel/pkg/lifecycle"
)

// Hooks dispatches host lifecycle callbacks. The host delivers hooks
// strictly paired, one execution at a time, but the HTTP transport hands
// them to us on per-connection goroutines, so a mutex restores the
// single-thread ordering the tracker and monitor rely on.
//
// Dispatch order matters: on post-execute the monitor is disarmed before the
// tracker logs EXEC_END, so no escalation log can bear a timestamp after its
// execution's completion line.
type Hooks struct {
	mu      sync.Mutex
	log     zerolog.Logger
	tracker *track.Tracker
	monitor *timeout.Monitor
	verbose bool
}

// NewHooks wires the dispatcher. Verbose enables debug logging of every raw
// hook message received from the host transport.
func NewHooks(logger zerolog.Logger, tracker *track.Tracker, monitor *timeout.Monitor, verbose bool) *Hooks {
	return &Hooks{
		log:     logger,
		tracker: tracker,
		monitor: monitor,
		verbose: verbose,
	}
}

// PreExecute handles the host's pre-execute callback and returns the
// sequence number assigned to the execution.
func (h *Hooks) PreExecute(ev lifecycle.PreExecuteEvent) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.verbose {
		h.log.Debug().
			Str("cell_id", ev.CellID).
			Int("source_bytes", len(ev.Source)).
			Msg("pre-execute hook received")
	}

	seq := h.tracker.OnPreExecute(ev)
	h.monitor.Arm(seq, track.Preview(ev.Source))
	return seq
}

// PostExecute handles the host's post-execute callback.
func (h *Hooks) PostExecute(ev lifecycle.PostExecuteEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.verbose {
		h.log.Debug().
			Bool("success", ev.Success).
			Str("error_kind", ev.ErrorKind).
			Msg("post-execute hook received")
	}

	h.monitor.Disarm()
	h.tracker.OnPostExecute(ev)
}
