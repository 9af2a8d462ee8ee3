package api

// HookAck acknowledges a lifecycle hook delivery. ExecutionCount is only
// meaningful for pre-execute, where it reports the sequence number assigned
// to the execution that just started.
type HookAck struct {
	Status         string `json:"status"`
	ExecutionCount uint64 `json:"execution_count,omitempty"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status         string `json:"status"`
	Database       bool   `json:"database"`
	MonitorEnabled bool   `json:"monitor_enabled"`
	ExecutionCount uint64 `json:"execution_count"`
	Uptime         string `json:"uptime"`
}
