// Package track observes the execution lifecycle of a single kernel: it
// builds a record per execution unit, logs start/end with stable grep-able
// lines, and hands sealed records to the metadata publisher.
//
// Hook methods are called from the kernel's single execution thread, one
// execution at a time; they are synchronous, bounded and never panic outward.
// Observation must never block or fail the observed execution.
package track

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"kernel-sentinel/internal/monitor"
	"kernel-sentinel/pkg/lifecycle"
)

// MetadataSink receives sealed execution metadata. Implementations swallow
// their own failures; the tracker does not see them.
type MetadataSink interface {
	PublishMetadata(md lifecycle.ExecutionMetadata)
}

// Tracker assigns sequence numbers and tracks the in-flight execution.
// Metrics and tracer may be nil.
type Tracker struct {
	log     zerolog.Logger
	sink    MetadataSink
	metrics *monitor.Metrics
	tracer  *monitor.Tracer

	seq     uint64
	current *ExecutionRecord
	span    trace.Span
}

// New creates a Tracker with explicit, injected dependencies.
func New(logger zerolog.Logger, sink MetadataSink, metrics *monitor.Metrics, tracer *monitor.Tracer) *Tracker {
	return &Tracker{
		log:     logger,
		sink:    sink,
		metrics: metrics,
		tracer:  tracer,
	}
}

// Count returns the number of sequence numbers allocated so far.
func (t *Tracker) Count() uint64 {
	return t.seq
}

// OnPreExecute allocates the next sequence number, opens the execution
// record and logs EXEC_START. Returns the allocated sequence number.
func (t *Tracker) OnPreExecute(ev lifecycle.PreExecuteEvent) (seq uint64) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Interface("panic", r).Msg("pre-execute tracking failed, execution proceeds unobserved")
		}
	}()

	t.seq++
	seq = t.seq

	rec := &ExecutionRecord{
		Seq:           seq,
		CellID:        ev.CellID,
		SourcePreview: Preview(ev.Source),
		Start:         time.Now(),
	}
	t.current = rec

	if t.metrics != nil {
		t.metrics.ActiveExecutions.Inc()
		t.metrics.SourceSizeBytes.Observe(float64(len(ev.Source)))
	}
	if t.tracer != nil {
		_, t.span = t.tracer.StartSpan(context.Background(), "execution",
			monitor.AttrExecutionCount.Int64(int64(seq)), // #nosec G115 -- process-lifetime counter
			monitor.AttrCellID.String(ev.CellID),
		)
	}

	t.log.Info().Msgf("EXEC_START | count=%d | cell_id=%s | preview=%s",
		seq, cellIDLabel(ev.CellID), escapeNewlines(truncateRunes(rec.SourcePreview, 50)))
	return seq
}

// OnPostExecute seals the current record, logs EXEC_END and publishes the
// sealed metadata. Safe to call without a matching OnPreExecute: it warns and
// synthesizes a best-effort record instead of crashing.
func (t *Tracker) OnPostExecute(ev lifecycle.PostExecuteEvent) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Interface("panic", r).Msg("post-execute tracking failed")
		}
	}()

	rec := t.current
	t.current = nil
	if rec == nil {
		t.log.Warn().Msg("EXEC_END called without matching EXEC_START")
		t.seq++
		rec = &ExecutionRecord{
			Seq:           t.seq,
			SourcePreview: "<unknown>",
			Start:         time.Now(),
		}
	}

	rec.End = time.Now()
	rec.Duration = rec.End.Sub(rec.Start)
	if rec.Duration < 0 {
		rec.Duration = 0
	}
	rec.Success = ev.Success
	rec.ErrorKind = ev.ErrorKind
	// Keep success ⇔ no error kind consistent whatever the host sent.
	if rec.Success {
		rec.ErrorKind = ""
	} else if rec.ErrorKind == "" {
		rec.ErrorKind = "Error"
	}

	errSuffix := ""
	if rec.ErrorKind != "" {
		errSuffix = " | error=" + rec.ErrorKind
	}
	t.log.Info().Msgf("EXEC_END | count=%d | duration=%.2fs | success=%t%s",
		rec.Seq, rec.Duration.Seconds(), rec.Success, errSuffix)

	if t.metrics != nil {
		t.metrics.ActiveExecutions.Dec()
		status := "success"
		if !rec.Success {
			status = "error"
		}
		t.metrics.RecordExecution(status, rec.Duration.Seconds())
	}
	if t.span != nil {
		t.span.SetAttributes(
			monitor.AttrSuccess.Bool(rec.Success),
			monitor.AttrDurationMS.Int64(rec.Duration.Milliseconds()),
		)
		if rec.ErrorKind != "" {
			t.span.SetAttributes(monitor.AttrErrorKind.String(rec.ErrorKind))
		}
		t.span.End()
		t.span = nil
	}

	if t.sink != nil {
		t.sink.PublishMetadata(lifecycle.ExecutionMetadata{
			ExecutionCount:  rec.Seq,
			DurationSeconds: rec.Duration.Seconds(),
			Success:         rec.Success,
			ErrorKind:       rec.ErrorKind,
		})
	}
}

func cellIDLabel(id string) string {
	if id == "" {
		return "-"
	}
	return id
}
