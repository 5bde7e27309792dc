package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"igo/internal/game"
	"igo/internal/store"
	"igo/pkg/logger"
	"igo/pkg/protocol"
)

// Conn is the session manager's view of a client socket. Sends are
// serialized per socket by the implementation.
type Conn interface {
	Send(msgType protocol.OutgoingType, data interface{}) error
	Close()
}

// Store is the slice of the store adapter the session manager needs.
// *store.Store satisfies it; tests substitute a fake.
type Store interface {
	NewGame(ctx context.Context, blob []byte, keyW, keyB, requestedColor, aiSecret, aiColor string) error
	JoinGame(ctx context.Context, key, aiSecret string) (store.JoinResult, string, string, error)
	WriteGame(ctx context.Context, key string, blob []byte, newVersion int) (bool, error)
	WriteChat(ctx context.Context, key string, timestamp float64, text string) (bool, error)
	TriggerUpdateAll(ctx context.Context, key string) error
	Unsubscribe(ctx context.Context, key string) (bool, error)
	Subscribe(ctx context.Context, key string) error
	Unlisten(key string)
	FetchGame(ctx context.Context, key string) ([]byte, int, error)
	FetchChat(ctx context.Context, key string, afterID int64) ([]store.ChatMessage, error)
	OpponentConnected(ctx context.Context, key string) (bool, error)
	Updates() *store.UpdateQueue
}

// AITrigger starts an AI opponent for a freshly created game
type AITrigger interface {
	StartGame(ctx context.Context, playerKey, aiSecret string) error
}

// clientRecord is everything one connected client is concerned with. The
// cached fields (game, lastChatID, chatPrimed, opponentConnected) are
// written only by the update consumer; request handlers read them and
// mutate state exclusively through the store round trip.
type clientRecord struct {
	conn     Conn
	key      string
	color    game.Color
	aiSecret string // set when an AI client joined through this server

	game              *game.Game
	lastChatID        int64
	chatPrimed        bool
	opponentConnected *bool
}

// Manager owns the in-memory map of connected clients on this server. It
// routes inbound requests to the store and runs the update consumer that
// pushes notifications back out. No attempt is made to share game state
// between two local clients of the same game: both round-trip through the
// store for uniform ordering.
type Manager struct {
	mu      sync.Mutex
	clients map[Conn]*clientRecord
	keys    map[string]*clientRecord

	store Store
	ai    AITrigger
	log   *logger.ColoredLogger
}

// NewManager creates a session manager. ai may be nil when AI games are
// disabled.
func NewManager(st Store, ai AITrigger, log *logger.ColoredLogger) *Manager {
	m := &Manager{
		clients: make(map[Conn]*clientRecord),
		keys:    make(map[string]*clientRecord),
		store:   st,
		ai:      ai,
		log:     log,
	}
	return m
}

func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// generateKeys produces the two player keys of a new game
func generateKeys() (string, string, error) {
	keyW, err := store.NewPlayerKey()
	if err != nil {
		return "", "", err
	}
	keyB, err := store.NewPlayerKey()
	if err != nil {
		return "", "", err
	}
	return keyW, keyB, nil
}

// NewGame creates a fresh game for the client, binds it to the requesting
// color's key and, for vs=computer, triggers an AI opponent.
func (m *Manager) NewGame(ctx context.Context, c Conn, req protocol.NewGameRequest) {
	m.mu.Lock()
	_, bound := m.clients[c]
	m.mu.Unlock()
	if bound {
		m.log.Info("Client requesting new game is already subscribed; unsubscribing first")
		m.Unsubscribe(ctx, c)
	}

	g := game.New(req.Size, req.Komi)
	blob, err := g.Encode()
	if err != nil {
		m.respond(c, protocol.MsgNewGameResponse, failure(fmt.Sprintf("could not create game: %v", err)))
		return
	}

	requested := game.Color(req.Color)
	aiSecret, aiColor := "", ""
	if req.Vs == "computer" {
		aiColor = string(requested.Inverse())
		aiSecret, err = store.NewPlayerKey()
		if err != nil {
			m.respond(c, protocol.MsgNewGameResponse, failure(fmt.Sprintf("could not create game: %v", err)))
			return
		}
	}

	var keyW, keyB string
	// a key collision is effectively unreachable; retry once and fail
	for attempt := 0; ; attempt++ {
		keyW, keyB, err = generateKeys()
		if err == nil {
			err = m.store.NewGame(ctx, blob, keyW, keyB, req.Color, aiSecret, aiColor)
		}
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrKeyConflict) && attempt == 0 {
			m.log.Error("Player key collision on create; retrying once")
			continue
		}
		m.log.Error("Failed to write new game: %v", err)
		m.respond(c, protocol.MsgNewGameResponse, failure("could not create the game; please try again"))
		return
	}

	key := keyB
	if requested == game.White {
		key = keyW
	}

	rec := &clientRecord{conn: c, key: key, color: requested}
	m.mu.Lock()
	m.clients[c] = rec
	m.keys[key] = rec
	m.mu.Unlock()

	if err := m.store.Subscribe(ctx, key); err != nil {
		m.log.Error("Failed to subscribe to channels for key %s: %v", key, err)
		m.teardown(ctx, rec)
		m.respond(c, protocol.MsgNewGameResponse, failure("could not create the game; please try again"))
		return
	}

	m.respond(c, protocol.MsgNewGameResponse, protocol.GameResponse{
		Success: true,
		Explanation: fmt.Sprintf(
			"Successfully created new game. Give the %s key to your opponent so they can join; your key is %s. Write it down to pause and resume the game later.",
			requested.Inverse(), key),
		Keys:      &protocol.KeyPair{White: keyW, Black: keyB},
		YourColor: string(requested),
	})

	if err := m.store.TriggerUpdateAll(ctx, key); err != nil {
		m.log.Error("Failed to trigger initial updates for key %s: %v", key, err)
	}

	if req.Vs == "computer" && m.ai != nil {
		opponentKey := keyW
		if requested == game.White {
			opponentKey = keyB
		}
		go func() {
			if err := m.ai.StartGame(context.Background(), opponentKey, aiSecret); err != nil {
				m.log.Error("Failed to start AI opponent for key %s: %v", opponentKey, err)
			}
		}()
	}
}

// JoinGame claims an existing player key for the client
func (m *Manager) JoinGame(ctx context.Context, c Conn, req protocol.JoinGameRequest) {
	m.mu.Lock()
	_, bound := m.clients[c]
	m.mu.Unlock()
	if bound {
		m.respond(c, protocol.MsgJoinGameResponse, failure("already playing a game"))
		return
	}

	res, keyW, keyB, err := m.store.JoinGame(ctx, req.Key, req.AISecret)
	if err != nil {
		m.log.Error("Failed to join game with key %s: %v", req.Key, err)
		m.respond(c, protocol.MsgJoinGameResponse, failure("could not join the game; please try again"))
		return
	}

	switch res {
	case store.JoinDNE:
		m.respond(c, protocol.MsgJoinGameResponse, failure(fmt.Sprintf("A game with key %s was not found", req.Key)))
		return
	case store.JoinInUse:
		m.respond(c, protocol.MsgJoinGameResponse, failure("Someone is already connected to that key"))
		return
	}

	color := game.Black
	if req.Key == keyW {
		color = game.White
	}

	rec := &clientRecord{conn: c, key: req.Key, color: color, aiSecret: req.AISecret}
	m.mu.Lock()
	m.clients[c] = rec
	m.keys[req.Key] = rec
	m.mu.Unlock()

	if err := m.store.Subscribe(ctx, req.Key); err != nil {
		m.log.Error("Failed to subscribe to channels for key %s: %v", req.Key, err)
		m.teardown(ctx, rec)
		m.respond(c, protocol.MsgJoinGameResponse, failure("could not join the game; please try again"))
		return
	}

	m.respond(c, protocol.MsgJoinGameResponse, protocol.GameResponse{
		Success:     true,
		Explanation: fmt.Sprintf("Successfully joined the game as %s", color),
		Keys:        &protocol.KeyPair{White: keyW, Black: keyB},
		YourColor:   string(color),
	})

	// initial game, chat and opponent state arrive via the consumer so
	// that joins share the live-update code path
	if err := m.store.TriggerUpdateAll(ctx, req.Key); err != nil {
		m.log.Error("Failed to trigger initial updates for key %s: %v", req.Key, err)
	}
}

// RouteAction validates a game action against the cached game and submits
// the CAS write. Preemption by the opposing server is reported to the
// client and the cache refreshed through the consumer.
func (m *Manager) RouteAction(ctx context.Context, c Conn, req protocol.GameActionRequest) {
	m.mu.Lock()
	rec := m.clients[c]
	var cached *game.Game
	var key string
	var color game.Color
	if rec != nil {
		cached = rec.game
		key = rec.key
		color = rec.color
	}
	m.mu.Unlock()

	if rec == nil || req.Key != key {
		m.respond(c, protocol.MsgGameActionResponse, protocol.ActionResponse{Success: false, Explanation: "no active game"})
		return
	}
	if cached == nil {
		m.respond(c, protocol.MsgGameActionResponse, protocol.ActionResponse{Success: false, Explanation: "game state not yet loaded; try again"})
		return
	}

	trial := cached.Clone()
	action := game.Action{
		Type:      game.ActionType(req.ActionType),
		Color:     color,
		Coords:    req.Coords,
		Timestamp: now(),
	}
	ok, reason := trial.Apply(action)
	if !ok {
		m.respond(c, protocol.MsgGameActionResponse, protocol.ActionResponse{Success: false, Explanation: reason})
		return
	}

	blob, err := trial.Encode()
	if err != nil {
		m.log.Error("Failed to encode game for key %s: %v", key, err)
		m.respond(c, protocol.MsgGameActionResponse, protocol.ActionResponse{Success: false, Explanation: "internal error"})
		return
	}

	wrote, err := m.store.WriteGame(ctx, key, blob, trial.Version())
	if err != nil {
		m.log.Error("Failed to write game for key %s: %v", key, err)
		m.respond(c, protocol.MsgGameActionResponse, protocol.ActionResponse{Success: false, Explanation: "could not reach the game store; please try again"})
		return
	}
	if !wrote {
		// the winning write already queued a game_status for us, but a
		// synthetic update guarantees the refresh even if that
		// notification raced ahead of our subscription
		m.store.Updates().Put(store.Update{Kind: store.KindGameStatus, Key: key})
		m.respond(c, protocol.MsgGameActionResponse, protocol.ActionResponse{Success: false, Explanation: "preempted; state refreshed"})
		return
	}

	m.respond(c, protocol.MsgGameActionResponse, protocol.ActionResponse{Success: true, Explanation: "move accepted"})
}

// Chat persists a chat message; delivery to both clients happens via the
// chat notification.
func (m *Manager) Chat(ctx context.Context, c Conn, req protocol.ChatRequest) {
	m.mu.Lock()
	rec := m.clients[c]
	m.mu.Unlock()

	if rec == nil || rec.key != req.Key {
		m.respond(c, protocol.MsgError, protocol.ErrorPayload{Explanation: "no active game"})
		return
	}

	ok, err := m.store.WriteChat(ctx, rec.key, req.Timestamp, req.Text)
	if err != nil {
		m.log.Error("Failed to write chat for key %s: %v", rec.key, err)
		m.respond(c, protocol.MsgError, protocol.ErrorPayload{Explanation: "could not send the message; please try again"})
		return
	}
	if !ok {
		m.log.Warn("Chat write for unknown key %s", rec.key)
	}
}

// Unsubscribe releases the client's key if it is bound. Idempotent: unbound
// sockets are a no-op.
func (m *Manager) Unsubscribe(ctx context.Context, c Conn) {
	m.mu.Lock()
	rec := m.clients[c]
	if rec != nil {
		delete(m.clients, c)
		delete(m.keys, rec.key)
	}
	m.mu.Unlock()

	if rec == nil {
		return
	}

	m.store.Unlisten(rec.key)
	if _, err := m.store.Unsubscribe(ctx, rec.key); err != nil {
		m.log.Error("Failed to unsubscribe key %s: %v", rec.key, err)
	}
}

// teardown reverses a partially completed bind
func (m *Manager) teardown(ctx context.Context, rec *clientRecord) {
	m.mu.Lock()
	delete(m.clients, rec.conn)
	delete(m.keys, rec.key)
	m.mu.Unlock()

	m.store.Unlisten(rec.key)
	if _, err := m.store.Unsubscribe(ctx, rec.key); err != nil {
		m.log.Error("Failed to release key %s during teardown: %v", rec.key, err)
	}
}

// RecoverOwnership re-acquires every locally bound key after a database
// reconnect. Keys that can no longer be claimed are detached and their
// clients told to rejoin.
func (m *Manager) RecoverOwnership(ctx context.Context) error {
	m.mu.Lock()
	recs := make([]*clientRecord, 0, len(m.keys))
	for _, rec := range m.keys {
		recs = append(recs, rec)
	}
	m.mu.Unlock()

	for _, rec := range recs {
		res, _, _, err := m.store.JoinGame(ctx, rec.key, rec.aiSecret)
		if err != nil {
			return fmt.Errorf("re-acquiring key %s: %w", rec.key, err)
		}
		if res != store.JoinSuccess {
			m.log.Warn("Lost ownership of key %s during outage (%s); detaching client", rec.key, res)
			m.mu.Lock()
			delete(m.clients, rec.conn)
			delete(m.keys, rec.key)
			m.mu.Unlock()
			m.store.Unlisten(rec.key)
			rec.conn.Send(protocol.MsgError, protocol.ErrorPayload{Explanation: "connection to the game was lost; please rejoin"})
			rec.conn.Close()
			continue
		}
		// anything written during the outage produced notifications we
		// never saw; a synthetic update heals the cache
		if err := m.store.TriggerUpdateAll(ctx, rec.key); err != nil {
			m.log.Error("Failed to refresh state for recovered key %s: %v", rec.key, err)
		}
	}
	return nil
}

// Shutdown drains the update queue until ctx expires, then releases every
// active key best-effort.
func (m *Manager) Shutdown(ctx context.Context) {
	queue := m.store.Updates()
	for queue.Len() > 0 {
		u, err := queue.Get(ctx)
		if err != nil {
			break
		}
		m.dispatch(ctx, u)
	}

	m.mu.Lock()
	recs := make([]*clientRecord, 0, len(m.keys))
	for _, rec := range m.keys {
		recs = append(recs, rec)
	}
	m.clients = make(map[Conn]*clientRecord)
	m.keys = make(map[string]*clientRecord)
	m.mu.Unlock()

	for _, rec := range recs {
		m.store.Unlisten(rec.key)
		if _, err := m.store.Unsubscribe(ctx, rec.key); err != nil {
			m.log.Error("Failed to unsubscribe key %s during shutdown: %v", rec.key, err)
		}
	}
}

func (m *Manager) respond(c Conn, msgType protocol.OutgoingType, data interface{}) {
	if err := c.Send(msgType, data); err != nil {
		m.log.Error("Failed to send %s: %v", msgType, err)
	}
}

func failure(explanation string) protocol.GameResponse {
	return protocol.GameResponse{Success: false, Explanation: explanation}
}
