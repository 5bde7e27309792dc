package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"igo/internal/game"
	"igo/pkg/logger"
	"igo/pkg/protocol"
)

// outboundAction is the wire shape of a game_action frame
type outboundAction struct {
	Type       string  `json:"type"`
	Key        string  `json:"key"`
	ActionType string  `json:"action_type"`
	Coords     *[2]int `json:"coords,omitempty"`
}

// Client plays one game over the public WebSocket protocol, exactly like a
// human client would. It acts whenever a game_status shows it is to move,
// accepts whatever the opponent proposes during the endgame, and requests
// the tally itself when nothing is pending.
type Client struct {
	serverURL  string
	playerKey  string
	aiSecret   string
	policy     Policy
	store      *PolicyStore
	errorSleep time.Duration
	log        *logger.ColoredLogger

	conn  *websocket.Conn
	color game.Color

	// lastAction is resent after a rejected write; triedTally stops the
	// endgame negotiation from looping when neither accept nor tally land
	lastAction *outboundAction
	triedTally bool
}

// NewClient creates a client for one game. store may be nil when resume
// persistence is disabled.
func NewClient(serverURL, playerKey, aiSecret string, policy Policy, store *PolicyStore, errorSleep time.Duration, log *logger.ColoredLogger) *Client {
	return &Client{
		serverURL:  serverURL,
		playerKey:  playerKey,
		aiSecret:   aiSecret,
		policy:     policy,
		store:      store,
		errorSleep: errorSleep,
		log:        log,
	}
}

// Run dials the game server and plays until the game completes, the
// opponent disconnects or ctx is canceled.
func (c *Client) Run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		return fmt.Errorf("dialing game server: %w", err)
	}
	c.conn = conn
	defer conn.Close()

	// unblock the read loop when ctx is canceled
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	if err := c.persist(); err != nil {
		c.log.Warn("Could not persist policy state for key %s: %v", c.playerKey, err)
	}

	join := map[string]interface{}{
		"type":      "join_game",
		"key":       c.playerKey,
		"ai_secret": c.aiSecret,
	}
	if err := conn.WriteJSON(join); err != nil {
		return fmt.Errorf("sending join_game: %w", err)
	}

	for {
		var env struct {
			MessageType protocol.OutgoingType `json:"message_type"`
			Data        json.RawMessage       `json:"data"`
		}
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading from game server: %w", err)
		}

		done, err := c.handle(ctx, env.MessageType, env.Data)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (c *Client) handle(ctx context.Context, msgType protocol.OutgoingType, data json.RawMessage) (bool, error) {
	switch msgType {
	case protocol.MsgJoinGameResponse:
		var resp protocol.GameResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return false, fmt.Errorf("decoding join response: %w", err)
		}
		if !resp.Success {
			return false, fmt.Errorf("join rejected: %s", resp.Explanation)
		}
		c.color = game.Color(resp.YourColor)
		c.log.Info("Joined game with key %s as %s", c.playerKey, c.color)

	case protocol.MsgGameStatus:
		var status protocol.GameStatusPayload
		if err := json.Unmarshal(data, &status); err != nil {
			return false, fmt.Errorf("decoding game status: %w", err)
		}
		return c.act(status)

	case protocol.MsgGameActionResponse:
		var resp protocol.ActionResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return false, fmt.Errorf("decoding action response: %w", err)
		}
		if !resp.Success {
			return false, c.retry(ctx, resp.Explanation)
		}
		c.lastAction = nil
		if err := c.persist(); err != nil {
			c.log.Warn("Could not persist policy state for key %s: %v", c.playerKey, err)
		}

	case protocol.MsgOpponentConnected:
		var p protocol.OpponentConnectedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return false, fmt.Errorf("decoding opponent status: %w", err)
		}
		if !p.OpponentConnected {
			c.log.Info("Opponent for key %s disconnected; leaving", c.playerKey)
			return true, nil
		}

	case protocol.MsgChat:
		var items []protocol.ChatItem
		if err := json.Unmarshal(data, &items); err == nil {
			for _, item := range items {
				c.log.Debug("Chat from %s: %s", item.Color, item.Text)
			}
		}

	case protocol.MsgError:
		var p protocol.ErrorPayload
		if err := json.Unmarshal(data, &p); err == nil {
			c.log.Warn("Server error for key %s: %s", c.playerKey, p.Explanation)
		}
	}
	return false, nil
}

// act decides what to do with a fresh game state
func (c *Client) act(status protocol.GameStatusPayload) (bool, error) {
	g := game.FromWire(status.Board, status.Status, status.Turn,
		status.Komi, status.Prisoners.White, status.Prisoners.Black)

	switch g.Status {
	case game.StatusComplete:
		c.log.Info("Game for key %s is complete", c.playerKey)
		if c.store != nil {
			if err := c.store.Delete(c.playerKey); err != nil {
				c.log.Warn("Could not drop policy state for key %s: %v", c.playerKey, err)
			}
		}
		return true, nil

	case game.StatusPlay:
		c.triedTally = false
		if g.Turn != c.color {
			return false, nil
		}
		coords := c.policy.SelectMove(g, c.color)
		actionType := string(game.PlaceStone)
		if coords == nil {
			actionType = string(game.PassTurn)
		}
		return false, c.send(&outboundAction{
			Type:       "game_action",
			Key:        c.playerKey,
			ActionType: actionType,
			Coords:     coords,
		})

	case game.StatusEndgame:
		// accept whatever the opponent has proposed; if nothing is
		// pending the accept bounces and retry() asks for the tally
		return false, c.send(&outboundAction{
			Type:       "game_action",
			Key:        c.playerKey,
			ActionType: string(game.Accept),
		})
	}
	return false, nil
}

// retry runs after a rejected action: wait out the error period, then try
// again. A rejected endgame accept is downgraded to a tally request; a
// rejected tally request means it is the opponent's move, so we idle.
func (c *Client) retry(ctx context.Context, explanation string) error {
	if c.lastAction == nil {
		return nil
	}
	c.log.Debug("Action %s for key %s rejected (%s)", c.lastAction.ActionType, c.playerKey, explanation)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.errorSleep):
	}

	last := c.lastAction
	switch {
	case last.ActionType == string(game.Accept):
		if c.triedTally {
			c.lastAction = nil
			return nil
		}
		c.triedTally = true
		return c.send(&outboundAction{
			Type:       "game_action",
			Key:        c.playerKey,
			ActionType: string(game.RequestTally),
		})
	case last.ActionType == string(game.RequestTally):
		c.lastAction = nil
		return nil
	default:
		return c.send(last)
	}
}

func (c *Client) send(a *outboundAction) error {
	c.lastAction = a
	if err := c.conn.WriteJSON(a); err != nil {
		return fmt.Errorf("sending %s: %w", a.ActionType, err)
	}
	return nil
}

func (c *Client) persist() error {
	if c.store == nil {
		return nil
	}
	state, err := c.policy.Encode()
	if err != nil {
		return err
	}
	return c.store.Save(c.playerKey, c.aiSecret, c.policy.Name(), state)
}
