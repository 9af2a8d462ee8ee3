// Package lifecycle defines the event and payload types exchanged between an
// execution host (kernel) and the sentinel monitor. The host delivers a
// PreExecuteEvent immediately before a unit of code runs and a
// PostExecuteEvent immediately after it finishes; the monitor publishes tagged
// metadata and notice payloads on its presentation channel in return.
package lifecycle

// Presentation-channel topic and metadata keys.
const (
	Topic = "sentinel.executions"

	ContentTypeMetadataKey = "content_type"
	ExecutionCountKey      = "execution_count"
)

// Content-type tags for presentation-channel payloads. A downstream viewer
// uses these to render monitor output distinctly from ordinary program output.
const (
	MetadataContentType = "application/vnd.sentinel.execution-metadata+json"
	NoticeContentType   = "application/vnd.sentinel.execution-notice+json"
)

// PreExecuteEvent is delivered by the host immediately before a unit of code
// begins running. CellID is an opaque external identifier and may be empty.
type PreExecuteEvent struct {
	CellID string `json:"cell_id,omitempty"`
	Source string `json:"source"`
}

// PostExecuteEvent is delivered by the host immediately after a unit of code
// finishes. ErrorKind is set if and only if Success is false.
type PostExecuteEvent struct {
	Success   bool   `json:"success"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// ExecutionMetadata is the payload published once per completed execution.
type ExecutionMetadata struct {
	ExecutionCount  uint64  `json:"execution_count"`
	DurationSeconds float64 `json:"duration_seconds"`
	Success         bool    `json:"success"`
	ErrorKind       string  `json:"error_kind,omitempty"`
}

// NoticeKind distinguishes the two escalation notices.
type NoticeKind string

const (
	NoticeWarning NoticeKind = "warning"
	NoticeTimeout NoticeKind = "timeout"
)

// ExecutionNotice is published when an in-flight execution crosses the
// warning or timeout threshold. It is best-effort and non-fatal.
type ExecutionNotice struct {
	ExecutionCount   uint64     `json:"execution_count"`
	Kind             NoticeKind `json:"kind"`
	ElapsedSeconds   float64    `json:"elapsed_seconds"`
	ThresholdSeconds float64    `json:"threshold_seconds"`
	Preview          string     `json:"preview,omitempty"`
	Interrupted      bool       `json:"interrupted,omitempty"`
}
