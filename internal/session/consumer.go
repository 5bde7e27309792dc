package session

import (
	"context"

	"igo/internal/game"
	"igo/internal/store"
	"igo/pkg/protocol"
)

// Run is the update consumer: the single goroutine that dequeues
// notifications, re-reads authoritative state from the store and pushes
// frames to clients. It is the only writer of the per-client caches, which
// is what makes the stale-version and duplicate checks race free.
func (m *Manager) Run(ctx context.Context) error {
	for {
		u, err := m.store.Updates().Get(ctx)
		if err != nil {
			return err
		}
		m.dispatch(ctx, u)
	}
}

func (m *Manager) dispatch(ctx context.Context, u store.Update) {
	m.mu.Lock()
	rec := m.keys[u.Key]
	m.mu.Unlock()
	if rec == nil {
		// the key was released between notification and dispatch
		m.log.Debug("Dropping %s update for unbound key %s", u.Kind, u.Key)
		return
	}

	switch u.Kind {
	case store.KindGameStatus:
		m.dispatchGameStatus(ctx, u.Key, rec)
	case store.KindChat:
		m.dispatchChat(ctx, u.Key, rec)
	case store.KindOpponentConnected:
		m.dispatchOpponentConnected(ctx, u, rec)
	}
}

// stillBound reports whether rec is still the record bound to key. The
// store fetches above run unlocked, so the client may have unsubscribed or
// been replaced in the meantime; no frame may be sent then.
func (m *Manager) stillBound(key string, rec *clientRecord) bool {
	return m.keys[key] == rec
}

func (m *Manager) dispatchGameStatus(ctx context.Context, key string, rec *clientRecord) {
	blob, version, err := m.store.FetchGame(ctx, key)
	if err != nil {
		m.log.Error("Failed to fetch game for key %s: %v", key, err)
		return
	}
	g, err := game.Decode(blob)
	if err != nil {
		m.log.Error("Failed to decode game for key %s: %v", key, err)
		return
	}

	m.mu.Lock()
	if !m.stillBound(key, rec) {
		m.mu.Unlock()
		return
	}
	if rec.game != nil && version <= rec.game.Version() {
		m.mu.Unlock()
		m.log.Debug("Dropping stale game update for key %s (version %d)", key, version)
		return
	}
	rec.game = g
	conn := rec.conn
	m.mu.Unlock()

	payload := protocol.GameStatusPayload{
		Board:  g.Board.Wire(),
		Status: string(g.Status),
		Komi:   g.Komi,
		Prisoners: protocol.Prisoners{
			White: g.Prisoners[game.White],
			Black: g.Prisoners[game.Black],
		},
		Turn:       string(g.Turn),
		TimePlayed: g.TimePlayed(),
	}
	m.respond(conn, protocol.MsgGameStatus, payload)
}

func (m *Manager) dispatchChat(ctx context.Context, key string, rec *clientRecord) {
	m.mu.Lock()
	afterID := rec.lastChatID
	m.mu.Unlock()

	msgs, err := m.store.FetchChat(ctx, key, afterID)
	if err != nil {
		m.log.Error("Failed to fetch chat for key %s: %v", key, err)
		return
	}

	m.mu.Lock()
	if !m.stillBound(key, rec) {
		m.mu.Unlock()
		return
	}
	if len(msgs) == 0 && rec.chatPrimed {
		// duplicate notification; both players' channels fire per message
		m.mu.Unlock()
		return
	}
	rec.chatPrimed = true
	if len(msgs) > 0 {
		rec.lastChatID = msgs[len(msgs)-1].ID
	}
	conn := rec.conn
	m.mu.Unlock()

	items := make([]protocol.ChatItem, 0, len(msgs))
	for _, msg := range msgs {
		items = append(items, protocol.ChatItem{
			ID:        msg.ID,
			Timestamp: msg.Timestamp,
			Color:     msg.Color,
			Text:      msg.Text,
		})
	}
	m.respond(conn, protocol.MsgChat, items)
}

func (m *Manager) dispatchOpponentConnected(ctx context.Context, u store.Update, rec *clientRecord) {
	var connected bool
	switch u.Payload {
	case "1":
		connected = true
	case "0":
		connected = false
	default:
		// synthetic update with no payload; ask the store
		c, err := m.store.OpponentConnected(ctx, u.Key)
		if err != nil {
			m.log.Error("Failed to fetch opponent status for key %s: %v", u.Key, err)
			return
		}
		connected = c
	}

	m.mu.Lock()
	if !m.stillBound(u.Key, rec) {
		m.mu.Unlock()
		return
	}
	if rec.opponentConnected != nil && *rec.opponentConnected == connected {
		m.mu.Unlock()
		return
	}
	rec.opponentConnected = &connected
	conn := rec.conn
	m.mu.Unlock()

	m.respond(conn, protocol.MsgOpponentConnected, protocol.OpponentConnectedPayload{OpponentConnected: connected})
}
