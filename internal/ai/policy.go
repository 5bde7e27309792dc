// Package ai implements the computer opponent: play policies, the
// WebSocket client that drives a game through the public protocol, and the
// local store that lets a restarted AI server resume its games.
package ai

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"igo/internal/game"
)

// Policy selects a placement during the play phase. SelectMove returns nil
// coordinates to pass. Endgame negotiation is handled by the client, not
// the policy.
type Policy interface {
	Name() string
	SelectMove(g *game.Game, color game.Color) *[2]int
	Encode() ([]byte, error)
}

// NewPolicy creates a fresh policy by name
func NewPolicy(name string) (Policy, error) {
	switch name {
	case "random":
		return NewRandomPolicy(time.Now().UnixNano()), nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

// DecodePolicy restores a policy from its persisted state
func DecodePolicy(name string, state []byte) (Policy, error) {
	switch name {
	case "random":
		var s randomState
		if err := json.Unmarshal(state, &s); err != nil {
			return nil, fmt.Errorf("decoding random policy state: %w", err)
		}
		return NewRandomPolicy(s.Seed), nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

type randomState struct {
	Seed int64 `json:"seed"`
}

// RandomPolicy plays a uniformly random legal stone and passes when no
// legal placement remains.
type RandomPolicy struct {
	seed int64
	rng  *rand.Rand
}

// NewRandomPolicy creates a random policy with a fixed seed
func NewRandomPolicy(seed int64) *RandomPolicy {
	return &RandomPolicy{seed: seed, rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomPolicy) Name() string {
	return "random"
}

func (p *RandomPolicy) Encode() ([]byte, error) {
	return json.Marshal(randomState{Seed: p.seed})
}

// SelectMove tries empty points in random order and returns the first one
// the rules accept. Legality is checked by applying the move to a clone;
// ko context is absent from wire-rebuilt games, so a rare ko retake may
// still be rejected by the server and retried by the client.
func (p *RandomPolicy) SelectMove(g *game.Game, color game.Color) *[2]int {
	size := g.Board.Size
	coords := make([][2]int, 0, size*size)
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			if g.Board.Points[x][y].Color == "" {
				coords = append(coords, [2]int{x, y})
			}
		}
	}
	p.rng.Shuffle(len(coords), func(i, j int) {
		coords[i], coords[j] = coords[j], coords[i]
	})

	for _, c := range coords {
		trial := g.Clone()
		trial.Turn = color
		cc := c
		if ok, _ := trial.Apply(game.Action{
			Type:   game.PlaceStone,
			Color:  color,
			Coords: &cc,
		}); ok {
			return &cc
		}
	}
	return nil
}
