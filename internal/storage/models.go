package storage

import "time"

// Execution is one stored history row, assembled from the presentation
// channel's metadata and notice payloads. History is strictly downstream of
// the monitor core: the tracker never waits on it.
type Execution struct {
	Seq         uint64    `json:"execution_count" db:"seq"`
	Preview     string    `json:"preview,omitempty" db:"preview"`
	DurationMS  int64     `json:"duration_ms" db:"duration_ms"`
	Success     bool      `json:"success" db:"success"`
	ErrorKind   string    `json:"error_kind,omitempty" db:"error_kind"`
	Warned      bool      `json:"warned" db:"warned"`
	Interrupted bool      `json:"interrupted" db:"interrupted"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// ExecutionFilter provides criteria for querying history.
type ExecutionFilter struct {
	Outcome string // "", "success" or "error"
	Limit   int
	Offset  int
}
