package network

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"igo/pkg/config"
	"igo/pkg/logger"
	"igo/pkg/protocol"
)

// Session wraps one WebSocket connection. All writes funnel through the
// sendQueue so that exactly one goroutine touches the socket for writing.
type Session struct {
	id     string
	conn   *websocket.Conn
	router Router
	cfg    config.WebSocketConfig
	log    *logger.ColoredLogger

	sendQueue chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, router Router, cfg config.WebSocketConfig, log *logger.ColoredLogger) *Session {
	return &Session{
		id:        uuid.New().String(),
		conn:      conn,
		router:    router,
		cfg:       cfg,
		log:       log,
		sendQueue: make(chan []byte, cfg.SendQueueSize),
		done:      make(chan struct{}),
	}
}

// Send serializes an outbound message and enqueues it for the write pump.
// A full queue means the client has stopped draining; the frame is dropped
// and the error logged rather than stalling the caller.
func (s *Session) Send(msgType protocol.OutgoingType, data interface{}) error {
	payload, err := protocol.SerializeEnvelope(msgType, data)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return websocket.ErrCloseSent
	case s.sendQueue <- payload:
		return nil
	default:
		s.log.Warn("Send queue full for session %s; dropping %s frame", s.id, msgType)
		return nil
	}
}

// Close shuts the session down. The write pump flushes already queued
// frames before the socket is torn down, so an error frame enqueued right
// before Close still reaches the client. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// run drives both pumps and blocks until the connection is gone
func (s *Session) run(ctx context.Context) {
	go s.writePump()
	s.readPump(ctx)
}

func (s *Session) readPump(ctx context.Context) {
	defer func() {
		s.Close()
		// releasing the player key round-trips to the database; keep it
		// off the pump teardown path
		go s.router.Unsubscribe(context.Background(), s)
	}()

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Session %s closed unexpectedly: %v", s.id, err)
			}
			return
		}

		req, err := protocol.ParseRequest(data)
		if err != nil {
			s.log.Warn("Session %s sent a malformed request: %v", s.id, err)
			s.Send(protocol.MsgError, protocol.ErrorPayload{Explanation: err.Error()})
			return
		}

		switch r := req.(type) {
		case protocol.NewGameRequest:
			s.router.NewGame(ctx, s, r)
		case protocol.JoinGameRequest:
			s.router.JoinGame(ctx, s, r)
		case protocol.GameActionRequest:
			s.router.RouteAction(ctx, s, r)
		case protocol.ChatRequest:
			s.router.Chat(ctx, s, r)
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.Close()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.flush()
			return
		case payload := <-s.sendQueue:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.log.Warn("Session %s write failed: %v", s.id, err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is already queued, then says goodbye
func (s *Session) flush() {
	for {
		select {
		case payload := <-s.sendQueue:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		default:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
