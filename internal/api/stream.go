package api

import (
	"fmt"
	"net/http"
	"strings"

	"kernel-sentinel/pkg/lifecycle"
)

// writeSSEEvent sends one Server-Sent Event and flushes it immediately.
// SSE requires each line of a multi-line payload to have its own "data:"
// prefix; without this, a newline in the payload breaks the event boundary
// and could inject fake events.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(w, "\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// sseEventName maps a presentation-channel content type to the SSE event
// type seen by stream consumers.
func sseEventName(contentType string) string {
	switch contentType {
	case lifecycle.MetadataContentType:
		return "metadata"
	case lifecycle.NoticeContentType:
		return "notice"
	default:
		return "message"
	}
}
