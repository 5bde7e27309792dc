package protocol

import "encoding/json"

// IncomingType discriminates client-to-server messages
type IncomingType string

const (
	MsgNewGame     IncomingType = "new_game"
	MsgJoinGame    IncomingType = "join_game"
	MsgGameAction  IncomingType = "game_action"
	MsgChatMessage IncomingType = "chat_message"
)

// OutgoingType discriminates server-to-client messages
type OutgoingType string

const (
	MsgNewGameResponse    OutgoingType = "new_game_response"
	MsgJoinGameResponse   OutgoingType = "join_game_response"
	MsgGameActionResponse OutgoingType = "game_action_response"
	MsgGameStatus         OutgoingType = "game_status"
	MsgChat               OutgoingType = "chat"
	MsgOpponentConnected  OutgoingType = "opponent_connected"
	MsgError              OutgoingType = "error"
)

// Envelope is the outbound frame shape
type Envelope struct {
	MessageType OutgoingType `json:"message_type"`
	Data        interface{}  `json:"data"`
}

// SerializeEnvelope converts an outbound message to JSON bytes
func SerializeEnvelope(msgType OutgoingType, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{MessageType: msgType, Data: data})
}

// KeyPair carries both player keys of a game, by color
type KeyPair struct {
	White string `json:"white"`
	Black string `json:"black"`
}

// GameResponse answers new_game and join_game requests
type GameResponse struct {
	Success     bool     `json:"success"`
	Explanation string   `json:"explanation"`
	Keys        *KeyPair `json:"keys,omitempty"`
	YourColor   string   `json:"your_color,omitempty"`
}

// ActionResponse answers game_action requests
type ActionResponse struct {
	Success     bool   `json:"success"`
	Explanation string `json:"explanation"`
}

// Prisoners counts captures per color
type Prisoners struct {
	White int `json:"white"`
	Black int `json:"black"`
}

// GameStatusPayload is the data shape of a game_status message
type GameStatusPayload struct {
	Board      [][]string `json:"board"`
	Status     string     `json:"status"`
	Komi       float64    `json:"komi"`
	Prisoners  Prisoners  `json:"prisoners"`
	Turn       string     `json:"turn"`
	TimePlayed float64    `json:"timePlayed"`
}

// ChatItem is one entry of a chat message payload
type ChatItem struct {
	ID        int64   `json:"id"`
	Timestamp float64 `json:"timestamp"`
	Color     string  `json:"color"`
	Text      string  `json:"text"`
}

// OpponentConnectedPayload is the data shape of an opponent_connected message
type OpponentConnectedPayload struct {
	OpponentConnected bool `json:"opponentConnected"`
}

// ErrorPayload is the data shape of an error message
type ErrorPayload struct {
	Explanation string `json:"explanation"`
}
