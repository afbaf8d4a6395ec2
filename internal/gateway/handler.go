// Package gateway owns the client-facing WebSocket. Each connection is
// multiplexed onto at most one live session: incoming messages become state
// machine calls, and session events are relayed back over the socket.
package gateway

import (
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voicebridge/voice-gateway/internal/config"
	"github.com/voicebridge/voice-gateway/internal/observability"
	"github.com/voicebridge/voice-gateway/internal/session"
)

// Handler upgrades client sockets and tracks open connections
type Handler struct {
	cfg     *config.Config
	manager *session.Manager

	upgrader websocket.Upgrader
	logger   zerolog.Logger
	sockets  atomic.Int64
}

// NewHandler creates the WebSocket handler
func NewHandler(cfg *config.Config, manager *session.Manager) *Handler {
	return &Handler{
		cfg:     cfg,
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary dev origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: observability.GetLogger().With().Str("component", "gateway").Logger(),
	}
}

// SocketConnections returns the number of open client sockets
func (h *Handler) SocketConnections() int {
	return int(h.sockets.Load())
}

// ServeWS upgrades the request and runs the connection until disconnect
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	h.sockets.Add(1)
	observability.RecordSocketOpen()
	defer func() {
		ws.Close()
		h.sockets.Add(-1)
		observability.RecordSocketClose()
	}()

	c := newConnection(h, ws)
	c.run()
}
