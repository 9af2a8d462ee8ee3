package publish

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"kernel-sentinel/pkg/lifecycle"
)

// WebappReporter posts warning/timeout notices to the webapp's userpod API so
// the notebook UI can surface them. Best-effort: failures are logged and the
// notice is dropped, never retried.
type WebappReporter struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewWebappReporter creates a reporter for the given base URL, e.g.
// "https://app.example.com/userpod-api/<project>". The timeout bounds each
// report POST so a slow webapp cannot stall a timer goroutine.
func NewWebappReporter(logger zerolog.Logger, baseURL string, timeout time.Duration) *WebappReporter {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &WebappReporter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     logger,
	}
}

type reportPayload struct {
	Duration    float64 `json:"duration"`
	CodePreview string  `json:"code_preview"`
	Threshold   float64 `json:"threshold"`
}

// Report forwards one notice. The endpoint path distinguishes warnings from
// timeouts.
func (r *WebappReporter) Report(n lifecycle.ExecutionNotice) {
	endpoint := "warning"
	if n.Kind == lifecycle.NoticeTimeout {
		endpoint = "timeout"
	}
	url := fmt.Sprintf("%s/execution/%s", r.baseURL, endpoint)

	body, err := json.Marshal(reportPayload{
		Duration:    n.ElapsedSeconds,
		CodePreview: n.Preview,
		Threshold:   n.ThresholdSeconds,
	})
	if err != nil {
		r.log.Error().Err(err).Msg("failed to encode webapp report")
		return
	}

	resp, err := r.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		r.log.Error().Err(err).Str("endpoint", endpoint).Msg("failed to report to webapp")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		r.log.Error().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("webapp rejected report")
		return
	}
	r.log.Debug().Str("endpoint", endpoint).Uint64("count", n.ExecutionCount).Msg("reported to webapp")
}
