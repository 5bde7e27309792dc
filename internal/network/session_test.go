package network

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igo/internal/session"
	"igo/pkg/config"
	"igo/pkg/logger"
	"igo/pkg/protocol"
)

type fakeRouter struct {
	actions chan string
	unsub   chan struct{}
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		actions: make(chan string, 8),
		unsub:   make(chan struct{}, 8),
	}
}

func (r *fakeRouter) NewGame(ctx context.Context, c session.Conn, req protocol.NewGameRequest) {
	c.Send(protocol.MsgNewGameResponse, protocol.GameResponse{Success: true, YourColor: req.Color})
}

func (r *fakeRouter) JoinGame(ctx context.Context, c session.Conn, req protocol.JoinGameRequest) {
	c.Send(protocol.MsgJoinGameResponse, protocol.GameResponse{Success: false, Explanation: "nope"})
}

func (r *fakeRouter) RouteAction(ctx context.Context, c session.Conn, req protocol.GameActionRequest) {
	r.actions <- req.ActionType
}

func (r *fakeRouter) Chat(ctx context.Context, c session.Conn, req protocol.ChatRequest) {
	r.actions <- "chat:" + req.Text
}

func (r *fakeRouter) Unsubscribe(ctx context.Context, c session.Conn) {
	r.unsub <- struct{}{}
}

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		ReadTimeout:    time.Minute,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 8192,
		SendQueueSize:  16,
	}
}

func dialFrontend(t *testing.T, router Router) (*websocket.Conn, func()) {
	t.Helper()
	f := NewFrontend(router, testConfig(), logger.TestLogger)
	srv := httptest.NewServer(f)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestRequestDispatchAndResponse(t *testing.T) {
	router := newFakeRouter()
	conn, cleanup := dialFrontend(t, router)
	defer cleanup()

	err := conn.WriteJSON(map[string]interface{}{
		"type": "new_game", "vs": "human", "color": "white", "size": 9, "komi": 6.5,
	})
	require.NoError(t, err)

	var env struct {
		MessageType string                `json:"message_type"`
		Data        protocol.GameResponse `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "new_game_response", env.MessageType)
	assert.True(t, env.Data.Success)
	assert.Equal(t, "white", env.Data.YourColor)
}

func TestActionAndChatReachRouter(t *testing.T) {
	router := newFakeRouter()
	conn, cleanup := dialFrontend(t, router)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "game_action", "key": "AbCdEfGhIj", "action_type": "pass_turn",
	}))
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "chat_message", "key": "AbCdEfGhIj", "text": "hi", "timestamp": 1.0,
	}))

	for _, want := range []string{"pass_turn", "chat:hi"} {
		select {
		case got := <-router.actions:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("router never received %q", want)
		}
	}
}

func TestMalformedRequestGetsErrorAndClose(t *testing.T) {
	router := newFakeRouter()
	conn, cleanup := dialFrontend(t, router)
	defer cleanup()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"new_game"}`)))

	var env struct {
		MessageType string                `json:"message_type"`
		Data        protocol.ErrorPayload `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "error", env.MessageType)
	assert.NotEmpty(t, env.Data.Explanation)

	// the server closes the socket after a protocol error
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestDisconnectTriggersUnsubscribe(t *testing.T) {
	router := newFakeRouter()
	conn, cleanup := dialFrontend(t, router)
	defer cleanup()

	conn.Close()

	select {
	case <-router.unsub:
	case <-time.After(2 * time.Second):
		t.Fatal("router was never told about the disconnect")
	}
}
