package broadcast

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/codedeck/workbench/logging"
)

// SSEHandler serves the live-update stream over Server-Sent Events. Each
// connection gets its own subscription; client disconnect releases it.
type SSEHandler struct {
	b      *Broadcaster
	logger *logging.Logger
}

// NewSSEHandler creates an SSE handler over the broadcaster.
// Mount it at your events endpoint (e.g., /api/workspaces/events).
func NewSSEHandler(b *Broadcaster, logger *logging.Logger) *SSEHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SSEHandler{
		b:      b,
		logger: logger.WithComponent("sse"),
	}
}

// ServeHTTP implements http.Handler.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	sub, err := h.b.Subscribe()
	if err != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Flush headers immediately to establish connection
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if evt.Type == EventHeartbeat {
				// SSE comment keeps the connection alive without waking
				// client-side event listeners.
				fmt.Fprintf(w, ": heartbeat %s\n\n", evt.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"))
				flusher.Flush()
				continue
			}
			data, err := json.Marshal(evt)
			if err != nil {
				h.logger.Error("could not encode event", map[string]interface{}{
					"type":  string(evt.Type),
					"error": err,
				})
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()
		}
	}
}
