// internal/handlers/ws.go
package handlers

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/xoduel/xoduel/internal/hub"
)

// WSHandler upgrades /ws requests and hands the connection to the hub. The
// handler blocks until the client disconnects.
func WSHandler(logger *logrus.Logger, h *hub.Hub, heartbeat time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}

		logger.WithField("remote", r.RemoteAddr).Info("WebSocket connected")

		c := hub.NewConn(r.Context(), ws, logger, r.RemoteAddr, heartbeat)
		h.HandleConnection(r.Context(), c)

		logger.WithField("remote", r.RemoteAddr).Info("WebSocket disconnected")
	}
}
