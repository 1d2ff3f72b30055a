package broadcast

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codedeck/workbench/logging"
)

const wsWriteTimeout = 10 * time.Second

// WSHandler serves the live-update stream over WebSocket. One subscription
// per connection; events go out as JSON text frames, heartbeats double as
// keepalive pings.
type WSHandler struct {
	b        *Broadcaster
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewWSHandler creates a WebSocket handler over the broadcaster.
func NewWSHandler(b *Broadcaster, logger *logging.Logger) *WSHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &WSHandler{
		b: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // Override in production
		},
		logger: logger.WithComponent("websocket"),
	}
}

// ServeHTTP implements http.Handler.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	sub, err := h.b.Subscribe()
	if err != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second),
		)
		return
	}
	defer sub.Close()

	// The stream is one-way. The read loop exists only to notice the client
	// going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second),
				)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if evt.Type == EventHeartbeat {
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					return
				}
				continue
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}
