package track

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"kernel-sentinel/pkg/lifecycle"
)

type captureSink struct {
	published []lifecycle.ExecutionMetadata
}

func (c *captureSink) PublishMetadata(md lifecycle.ExecutionMetadata) {
	c.published = append(c.published, md)
}

type panicSink struct{}

func (panicSink) PublishMetadata(lifecycle.ExecutionMetadata) {
	panic("sink exploded")
}

func newTestTracker() (*Tracker, *captureSink, *bytes.Buffer) {
	var buf bytes.Buffer
	sink := &captureSink{}
	logger := zerolog.New(&buf)
	return New(logger, sink, nil, nil), sink, &buf
}

func TestPreExecuteAssignsSequence(t *testing.T) {
	tr, _, buf := newTestTracker()

	if got := tr.OnPreExecute(lifecycle.PreExecuteEvent{CellID: "c1", Source: "print(1)"}); got != 1 {
		t.Errorf("first seq = %d, want 1", got)
	}
	tr.OnPostExecute(lifecycle.PostExecuteEvent{Success: true})

	if got := tr.OnPreExecute(lifecycle.PreExecuteEvent{CellID: "c2", Source: "print(2)"}); got != 2 {
		t.Errorf("second seq = %d, want 2", got)
	}
	tr.OnPostExecute(lifecycle.PostExecuteEvent{Success: true})

	out := buf.String()
	for _, want := range []string{
		"EXEC_START | count=1 | cell_id=c1",
		"EXEC_END | count=1 |",
		"EXEC_START | count=2 | cell_id=c2",
		"EXEC_END | count=2 |",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "EXEC_START") != 2 || strings.Count(out, "EXEC_END") != 2 {
		t.Errorf("expected exactly 2 paired start/end lines:\n%s", out)
	}
}

func TestPostExecutePublishesSealedRecord(t *testing.T) {
	tr, sink, _ := newTestTracker()

	tr.OnPreExecute(lifecycle.PreExecuteEvent{Source: "x = 1"})
	tr.OnPostExecute(lifecycle.PostExecuteEvent{Success: true})

	if len(sink.published) != 1 {
		t.Fatalf("published %d records, want 1", len(sink.published))
	}
	md := sink.published[0]
	if md.ExecutionCount != 1 {
		t.Errorf("ExecutionCount = %d, want 1", md.ExecutionCount)
	}
	if md.DurationSeconds < 0 {
		t.Errorf("DurationSeconds = %f, want >= 0", md.DurationSeconds)
	}
	if !md.Success || md.ErrorKind != "" {
		t.Errorf("got success=%t error_kind=%q, want success with no error", md.Success, md.ErrorKind)
	}
}

func TestOutcomeErrorConsistency(t *testing.T) {
	tests := []struct {
		name      string
		outcome   lifecycle.PostExecuteEvent
		wantError string
	}{
		{"failure with kind", lifecycle.PostExecuteEvent{Success: false, ErrorKind: "ZeroDivisionError"}, "ZeroDivisionError"},
		{"failure without kind gets placeholder", lifecycle.PostExecuteEvent{Success: false}, "Error"},
		{"success drops stray kind", lifecycle.PostExecuteEvent{Success: true, ErrorKind: "Bogus"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, sink, buf := newTestTracker()
			tr.OnPreExecute(lifecycle.PreExecuteEvent{Source: "boom"})
			tr.OnPostExecute(tt.outcome)

			md := sink.published[0]
			if md.ErrorKind != tt.wantError {
				t.Errorf("ErrorKind = %q, want %q", md.ErrorKind, tt.wantError)
			}
			if md.Success != (md.ErrorKind == "") {
				t.Errorf("success=%t inconsistent with error_kind=%q", md.Success, md.ErrorKind)
			}
			if tt.wantError != "" && !strings.Contains(buf.String(), "error="+tt.wantError) {
				t.Errorf("EXEC_END missing error=%s:\n%s", tt.wantError, buf.String())
			}
		})
	}
}

func TestPostExecuteWithoutPreExecute(t *testing.T) {
	tr, sink, buf := newTestTracker()

	tr.OnPostExecute(lifecycle.PostExecuteEvent{Success: true})

	if !strings.Contains(buf.String(), "EXEC_END called without matching EXEC_START") {
		t.Errorf("missing defensive warning:\n%s", buf.String())
	}
	// A best-effort record is still sealed and published.
	if len(sink.published) != 1 {
		t.Fatalf("published %d records, want 1", len(sink.published))
	}
	if sink.published[0].ExecutionCount != 1 {
		t.Errorf("synthesized seq = %d, want 1", sink.published[0].ExecutionCount)
	}
}

func TestSinkPanicDoesNotEscape(t *testing.T) {
	var buf bytes.Buffer
	tr := New(zerolog.New(&buf), panicSink{}, nil, nil)

	tr.OnPreExecute(lifecycle.PreExecuteEvent{Source: "ok"})
	tr.OnPostExecute(lifecycle.PostExecuteEvent{Success: true}) // must not panic

	if !strings.Contains(buf.String(), "post-execute tracking failed") {
		t.Errorf("expected recovered-panic log:\n%s", buf.String())
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"empty", "", "<empty>"},
		{"short", "print(1)", "print(1)"},
		{"exactly 100 runes", strings.Repeat("a", 100), strings.Repeat("a", 100)},
		{"truncated", strings.Repeat("b", 150), strings.Repeat("b", 100)},
		{"multibyte safe", strings.Repeat("é", 150), strings.Repeat("é", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.source); got != tt.want {
				t.Errorf("Preview() = %q (len %d), want %q", got, len(got), tt.want)
			}
		})
	}
}

func TestPreviewNewlinesEscapedInLog(t *testing.T) {
	tr, _, buf := newTestTracker()

	tr.OnPreExecute(lifecycle.PreExecuteEvent{Source: "line1\nline2"})

	// The logged message holds a literal backslash-n, which zerolog's JSON
	// encoder escapes once more.
	if !strings.Contains(buf.String(), `line1\\nline2`) {
		t.Errorf("newline not escaped in EXEC_START preview:\n%s", buf.String())
	}
}
