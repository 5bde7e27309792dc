// Package network owns the WebSocket edge: upgrading connections, framing
// messages and pumping them between clients and the session manager.
package network

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"igo/internal/session"
	"igo/pkg/config"
	"igo/pkg/logger"
	"igo/pkg/protocol"
)

// Router is the request surface the frontend dispatches into. The session
// manager implements it.
type Router interface {
	NewGame(ctx context.Context, c session.Conn, req protocol.NewGameRequest)
	JoinGame(ctx context.Context, c session.Conn, req protocol.JoinGameRequest)
	RouteAction(ctx context.Context, c session.Conn, req protocol.GameActionRequest)
	Chat(ctx context.Context, c session.Conn, req protocol.ChatRequest)
	Unsubscribe(ctx context.Context, c session.Conn)
}

// Frontend upgrades HTTP requests to WebSocket sessions
type Frontend struct {
	router   Router
	cfg      config.WebSocketConfig
	log      *logger.ColoredLogger
	upgrader websocket.Upgrader
}

// NewFrontend creates a frontend dispatching into router
func NewFrontend(router Router, cfg config.WebSocketConfig, log *logger.ColoredLogger) *Frontend {
	return &Frontend{
		router: router,
		cfg:    cfg,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP makes the frontend mountable as a plain handler
func (f *Frontend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.HandleWebSocket(w, r)
}

// HandleWebSocket upgrades the request and runs the session until the
// client disconnects.
func (f *Frontend) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Error("Failed to upgrade connection from %s: %v", r.RemoteAddr, err)
		return
	}

	s := newSession(conn, f.router, f.cfg, f.log)
	f.log.Info("Session %s connected from %s", s.id, r.RemoteAddr)
	s.run(r.Context())
	f.log.Info("Session %s disconnected", s.id)
}
