package realtime

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			return true
		}
		for _, allowed := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
			if allowed != "" && origin == strings.TrimSpace(allowed) {
				return true
			}
		}
		return false
	},
}

// ServeWS upgrades the request and hands the connection to the hub.
// tokenUserID is the identity the upgrade token carried ("" when the
// endpoint is mounted without auth middleware); the in-band handshake
// still has to run before the connection can do anything.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, tokenUserID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	conn := newConn(hub, ws, tokenUserID)
	slog.Info("New WebSocket connection established", "connID", conn.id, "tokenUserID", tokenUserID)

	select {
	case hub.register <- conn:
	case <-time.After(5 * time.Second):
		slog.Error("Timeout sending registration request", "connID", conn.id)
		ws.Close()
		return
	case <-hub.ctx.Done():
		ws.Close()
		return
	}

	go conn.writePump()
	go conn.readPump()
}
