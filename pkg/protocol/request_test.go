package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNewGame(t *testing.T) {
	req, err := ParseRequest([]byte(`{"type":"new_game","vs":"human","color":"white","size":19,"komi":6.5}`))
	require.NoError(t, err)

	ng, ok := req.(NewGameRequest)
	require.True(t, ok)
	assert.Equal(t, "human", ng.Vs)
	assert.Equal(t, "white", ng.Color)
	assert.Equal(t, 19, ng.Size)
	assert.Equal(t, 6.5, ng.Komi)
}

func TestParseNewGameValidation(t *testing.T) {
	cases := map[string]string{
		"missing fields": `{"type":"new_game","vs":"human"}`,
		"bad vs":         `{"type":"new_game","vs":"alien","color":"white","size":19,"komi":0}`,
		"bad color":      `{"type":"new_game","vs":"human","color":"red","size":19,"komi":0}`,
		"bad size":       `{"type":"new_game","vs":"human","color":"white","size":0,"komi":0}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRequest([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestParseJoinGame(t *testing.T) {
	req, err := ParseRequest([]byte(`{"type":"join_game","key":"AbCdEfGhIj"}`))
	require.NoError(t, err)
	jg := req.(JoinGameRequest)
	assert.Equal(t, "AbCdEfGhIj", jg.Key)
	assert.Empty(t, jg.AISecret)

	req, err = ParseRequest([]byte(`{"type":"join_game","key":"AbCdEfGhIj","ai_secret":"s3cret"}`))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", req.(JoinGameRequest).AISecret)

	_, err = ParseRequest([]byte(`{"type":"join_game"}`))
	assert.Error(t, err)
}

func TestParseGameAction(t *testing.T) {
	req, err := ParseRequest([]byte(`{"type":"game_action","key":"AbCdEfGhIj","action_type":"place_stone","coords":[3,4]}`))
	require.NoError(t, err)
	ga := req.(GameActionRequest)
	assert.Equal(t, "place_stone", ga.ActionType)
	require.NotNil(t, ga.Coords)
	assert.Equal(t, [2]int{3, 4}, *ga.Coords)

	// coords are optional; pass_turn has none
	req, err = ParseRequest([]byte(`{"type":"game_action","key":"AbCdEfGhIj","action_type":"pass_turn"}`))
	require.NoError(t, err)
	assert.Nil(t, req.(GameActionRequest).Coords)
}

func TestParseChatMessage(t *testing.T) {
	req, err := ParseRequest([]byte(`{"type":"chat_message","key":"AbCdEfGhIj","text":"hello","timestamp":1700000000.5}`))
	require.NoError(t, err)
	cm := req.(ChatRequest)
	assert.Equal(t, "hello", cm.Text)
	assert.Equal(t, 1700000000.5, cm.Timestamp)

	_, err = ParseRequest([]byte(`{"type":"chat_message","key":"AbCdEfGhIj","text":"hello"}`))
	assert.Error(t, err, "timestamp is required")
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := ParseRequest([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseRequest([]byte(`{"vs":"human"}`))
	assert.Error(t, err, "type is required")

	_, err = ParseRequest([]byte(`{"type":"launch_missiles"}`))
	assert.Error(t, err)
}

func TestSerializeEnvelope(t *testing.T) {
	data, err := SerializeEnvelope(MsgOpponentConnected, OpponentConnectedPayload{OpponentConnected: true})
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.JSONEq(t, `"opponent_connected"`, string(decoded["message_type"]))
	assert.JSONEq(t, `{"opponentConnected":true}`, string(decoded["data"]))
}
