package track

import (
	"strings"
	"time"
)

// previewLimit bounds the stored source preview. The preview is for log
// readability only and is never executed or parsed.
const previewLimit = 100

// ExecutionRecord describes one unit of execution. It is created at
// pre-execute, sealed at post-execute and immutable afterwards.
type ExecutionRecord struct {
	Seq           uint64
	CellID        string
	SourcePreview string
	Start         time.Time
	End           time.Time
	Duration      time.Duration
	Success       bool
	ErrorKind     string
}

// Preview truncates source text into a bounded snippet suitable for records
// and log lines.
func Preview(source string) string {
	if source == "" {
		return "<empty>"
	}
	return truncateRunes(source, previewLimit)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// escapeNewlines keeps multi-line previews on a single log line.
func escapeNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", `\n`)
}
