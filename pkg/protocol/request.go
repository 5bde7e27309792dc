package protocol

import (
	"encoding/json"
	"fmt"
)

// Request is the tagged union of validated inbound messages. The frontend
// parses raw frames into one of the concrete request types below before
// anything else sees them.
type Request interface {
	isRequest()
}

// NewGameRequest asks for a fresh game
type NewGameRequest struct {
	Vs    string
	Color string
	Size  int
	Komi  float64
}

// JoinGameRequest asks to join an existing game by player key. AISecret is
// only present when the joiner is an AI client.
type JoinGameRequest struct {
	Key      string
	AISecret string
}

// GameActionRequest carries one game action
type GameActionRequest struct {
	Key        string
	ActionType string
	Coords     *[2]int
}

// ChatRequest carries one chat message
type ChatRequest struct {
	Key       string
	Text      string
	Timestamp float64
}

func (NewGameRequest) isRequest()    {}
func (JoinGameRequest) isRequest()   {}
func (GameActionRequest) isRequest() {}
func (ChatRequest) isRequest()       {}

// rawRequest uses pointer fields so that absent and zero-valued fields can
// be told apart during validation.
type rawRequest struct {
	Type       *string  `json:"type"`
	Vs         *string  `json:"vs"`
	Color      *string  `json:"color"`
	Size       *int     `json:"size"`
	Komi       *float64 `json:"komi"`
	Key        *string  `json:"key"`
	AISecret   *string  `json:"ai_secret"`
	ActionType *string  `json:"action_type"`
	Coords     *[2]int  `json:"coords"`
	Text       *string  `json:"text"`
	Timestamp  *float64 `json:"timestamp"`
}

// ParseRequest deserializes an inbound frame and validates the required
// fields for its type. Any failure is a protocol error: the caller should
// report it and close the socket.
func ParseRequest(data []byte) (Request, error) {
	var raw rawRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if raw.Type == nil {
		return nil, fmt.Errorf("message missing required field 'type'")
	}

	switch IncomingType(*raw.Type) {
	case MsgNewGame:
		if raw.Vs == nil || raw.Color == nil || raw.Size == nil || raw.Komi == nil {
			return nil, fmt.Errorf("new_game requires vs, color, size and komi")
		}
		if *raw.Vs != "human" && *raw.Vs != "computer" {
			return nil, fmt.Errorf("vs must be 'human' or 'computer', got %q", *raw.Vs)
		}
		if *raw.Color != "white" && *raw.Color != "black" {
			return nil, fmt.Errorf("color must be 'white' or 'black', got %q", *raw.Color)
		}
		if *raw.Size < 1 {
			return nil, fmt.Errorf("size must be at least 1, got %d", *raw.Size)
		}
		return NewGameRequest{Vs: *raw.Vs, Color: *raw.Color, Size: *raw.Size, Komi: *raw.Komi}, nil

	case MsgJoinGame:
		if raw.Key == nil {
			return nil, fmt.Errorf("join_game requires key")
		}
		req := JoinGameRequest{Key: *raw.Key}
		if raw.AISecret != nil {
			req.AISecret = *raw.AISecret
		}
		return req, nil

	case MsgGameAction:
		if raw.Key == nil || raw.ActionType == nil {
			return nil, fmt.Errorf("game_action requires key and action_type")
		}
		return GameActionRequest{Key: *raw.Key, ActionType: *raw.ActionType, Coords: raw.Coords}, nil

	case MsgChatMessage:
		if raw.Key == nil || raw.Text == nil || raw.Timestamp == nil {
			return nil, fmt.Errorf("chat_message requires key, text and timestamp")
		}
		return ChatRequest{Key: *raw.Key, Text: *raw.Text, Timestamp: *raw.Timestamp}, nil

	default:
		return nil, fmt.Errorf("unknown message type %q", *raw.Type)
	}
}
