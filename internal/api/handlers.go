package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"kernel-sentinel/internal/bus"
	"kernel-sentinel/internal/kernel"
	"kernel-sentinel/internal/storage"
	"kernel-sentinel/internal/timeout"
	"kernel-sentinel/internal/track"
	"kernel-sentinel/pkg/lifecycle"
)

type Handlers struct {
	hooks   *kernel.Hooks
	tracker *track.Tracker
	mon     *timeout.Monitor
	db      *storage.DB
	events  *bus.Bus
}

func NewHandlers(hooks *kernel.Hooks, tracker *track.Tracker, mon *timeout.Monitor, db *storage.DB, events *bus.Bus) *Handlers {
	return &Handlers{
		hooks:   hooks,
		tracker: tracker,
		mon:     mon,
		db:      db,
		events:  events,
	}
}

// HandlePreExecute receives the host's pre-execute callback. An empty source
// is legal: the host may run an empty cell, and the preview logic renders it
// as a placeholder.
func (h *Handlers) HandlePreExecute(w http.ResponseWriter, r *http.Request) {
	var ev lifecycle.PreExecuteEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	seq := h.hooks.PreExecute(ev)

	writeJSON(w, http.StatusAccepted, HookAck{Status: "tracking", ExecutionCount: seq})
}

// HandlePostExecute receives the host's post-execute callback.
func (h *Handlers) HandlePostExecute(w http.ResponseWriter, r *http.Request) {
	var ev lifecycle.PostExecuteEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	h.hooks.PostExecute(ev)

	writeJSON(w, http.StatusAccepted, HookAck{Status: "recorded"})
}

func (h *Handlers) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, "history storage not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	seq, err := strconv.ParseUint(r.PathValue("seq"), 10, 64)
	if err != nil {
		writeError(w, "execution count must be a positive integer", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	exec, err := h.db.GetExecution(r.Context(), seq)
	if err != nil {
		writeError(w, "execution not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}

	writeJSON(w, http.StatusOK, exec)
}

func (h *Handlers) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := storage.ExecutionFilter{
		Outcome: r.URL.Query().Get("outcome"),
		Limit:   100,
	}
	if filter.Outcome != "" && filter.Outcome != "success" && filter.Outcome != "error" {
		writeError(w, "outcome must be 'success' or 'error'", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, "limit must be a positive integer", "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}
		filter.Limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "offset must be a non-negative integer", "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}
		filter.Offset = n
	}

	if h.db == nil {
		writeError(w, "history storage not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	execs, err := h.db.ListExecutions(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("history query failed")
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}
	if execs == nil {
		execs = []storage.Execution{}
	}

	writeJSON(w, http.StatusOK, execs)
}

// HandleEvents streams presentation-channel payloads as Server-Sent Events.
// The subscription lives as long as the request context; a departing client
// just closes its channel without disturbing other subscribers.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "streaming not supported", "STREAMING_UNSUPPORTED", http.StatusInternalServerError, r)
		return
	}

	msgs, err := h.events.Subscribe(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("event stream subscription failed")
		writeError(w, "subscription failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for msg := range msgs {
		if err := writeSSEEvent(w, flusher, sseEventName(bus.ContentType(msg)), msg.Payload); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
