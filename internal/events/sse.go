package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Handler serves GET /supervisor/events as a Server-Sent Events stream:
// replaying buffered events newer than Last-Event-Id before following the
// live subscription, with periodic ":ping" keep-alives.
type Handler struct {
	handle *Handle
	logger *slog.Logger
}

// NewHandler builds an SSE handler around handle.
func NewHandler(handle *Handle, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{handle: handle, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.handle.config.Enabled {
		http.Error(w, "events channel disabled", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientIP := clientIPFromHeaders(r.Header)
	connectedAt := time.Now()
	h.logger.Info("events/sse client connected", "ip", clientIP)
	defer func() {
		h.logger.Info("events/sse client disconnected", "ip", clientIP, "duration_s", int(time.Since(connectedAt).Seconds()))
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var backlog []StampedEvent
	if lastID, ok := parseLastEventID(r.Header); ok {
		backlog = h.handle.ReplaySince(lastID)
	}
	for _, stamped := range backlog {
		if err := writeEvent(w, stamped); err != nil {
			return
		}
	}
	flusher.Flush()

	live, unsubscribe := h.handle.Subscribe()
	defer unsubscribe()

	heartbeat := time.NewTicker(time.Duration(h.handle.config.HeartbeatInterval) * time.Second)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case stamped, ok := <-live:
			if !ok {
				return
			}
			if err := writeEvent(w, stamped); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, stamped StampedEvent) error {
	payload, err := json.Marshal(stamped)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", stamped.ID, payload)
	return err
}

func parseLastEventID(header http.Header) (EventID, bool) {
	raw := header.Get("Last-Event-Id")
	if raw == "" {
		raw = header.Get("Last-Event-ID")
	}
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func clientIPFromHeaders(header http.Header) string {
	for _, key := range []string{"X-Forwarded-For", "X-Real-Ip"} {
		if v := header.Get(key); v != "" {
			first, _, _ := strings.Cut(v, ",")
			return strings.TrimSpace(first)
		}
	}
	return "unknown"
}
