package game

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType enumerates the moves a player can submit
type ActionType string

const (
	PlaceStone   ActionType = "place_stone"
	PassTurn     ActionType = "pass_turn"
	MarkDead     ActionType = "mark_dead"
	RequestDraw  ActionType = "request_draw"
	RequestTally ActionType = "request_tally"
	Accept       ActionType = "accept"
	Reject       ActionType = "reject"
)

// GameStatus indicates where in its lifecycle a game is
type GameStatus string

const (
	StatusPlay     GameStatus = "play"
	StatusEndgame  GameStatus = "endgame"
	StatusComplete GameStatus = "complete"
)

// Action is one attempted move
type Action struct {
	Type      ActionType `json:"action_type"`
	Color     Color      `json:"color"`
	Coords    *[2]int    `json:"coords,omitempty"`
	Timestamp float64    `json:"timestamp"`
}

// Result records the outcome of a complete game. Winner is empty on a draw.
type Result struct {
	Winner     Color   `json:"winner,omitempty"`
	WhiteScore float64 `json:"white_score"`
	BlackScore float64 `json:"black_score"`
}

// Game holds the full state and rule logic of one go game. It knows nothing
// about players beyond their colors; keys and connectivity live in the store.
type Game struct {
	Komi      float64          `json:"komi"`
	Status    GameStatus       `json:"status"`
	Turn      Color            `json:"turn"`
	Board     *Board           `json:"board"`
	Prisoners map[Color]int    `json:"prisoners"`
	Actions   []Action         `json:"actions"`
	// Pending is an outstanding mark_dead/request_draw/request_tally that
	// the opponent has yet to accept or reject.
	Pending *Action `json:"pending,omitempty"`
	// KoBoard is the position immediately before the last placement; the
	// next placement may not recreate it.
	KoBoard   *Board  `json:"ko_board,omitempty"`
	Result    *Result `json:"result,omitempty"`
	CreatedAt float64 `json:"created_at"`
}

// New creates a fresh game. White moves first.
func New(size int, komi float64) *Game {
	return &Game{
		Komi:      komi,
		Status:    StatusPlay,
		Turn:      White,
		Board:     NewBoard(size),
		Prisoners: map[Color]int{White: 0, Black: 0},
		CreatedAt: float64(time.Now().UnixNano()) / 1e9,
	}
}

// Version is the monotonic state counter persisted alongside the game blob.
// A new game is version 0 and every applied action increments it.
func (g *Game) Version() int {
	return len(g.Actions)
}

// TimePlayed returns seconds elapsed since the game was created
func (g *Game) TimePlayed() float64 {
	return float64(time.Now().UnixNano())/1e9 - g.CreatedAt
}

// Encode serializes the game to its storage blob
func (g *Game) Encode() ([]byte, error) {
	return json.Marshal(g)
}

// Decode deserializes a storage blob
func Decode(data []byte) (*Game, error) {
	var g Game
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decoding game blob: %w", err)
	}
	if g.Prisoners == nil {
		g.Prisoners = map[Color]int{White: 0, Black: 0}
	}
	return &g, nil
}

// Clone returns a deep copy, used to validate actions without touching the
// cached state.
func (g *Game) Clone() *Game {
	data, err := g.Encode()
	if err != nil {
		// Game state is always encodable; an error here is programmer error.
		panic(fmt.Sprintf("cloning game: %v", err))
	}
	ng, err := Decode(data)
	if err != nil {
		panic(fmt.Sprintf("cloning game: %v", err))
	}
	return ng
}

// FromWire rebuilds a minimal game from the game_status payload fields. The
// result carries enough state for a client to select legal moves; action
// history and ko context are not transmitted.
func FromWire(board [][]string, status, turn string, komi float64, prisonersWhite, prisonersBlack int) *Game {
	return &Game{
		Komi:      komi,
		Status:    GameStatus(status),
		Turn:      Color(turn),
		Board:     boardFromWire(board),
		Prisoners: map[Color]int{White: prisonersWhite, Black: prisonersBlack},
	}
}

// Apply attempts to take an action. It returns whether the action was legal
// and, when it was not, an explanation suitable for the client. On success
// the action is appended to the history, so Version increases by one.
func (g *Game) Apply(a Action) (bool, string) {
	if !a.Color.Valid() {
		return false, fmt.Sprintf("invalid color %q", a.Color)
	}

	switch a.Type {
	case PlaceStone:
		return g.applyPlacement(a)
	case PassTurn:
		return g.applyPass(a)
	case MarkDead:
		return g.applyMarkDead(a)
	case RequestDraw:
		return g.applyRequest(a, StatusPlay)
	case RequestTally:
		return g.applyRequest(a, StatusEndgame)
	case Accept, Reject:
		return g.applyResolution(a)
	default:
		return false, fmt.Sprintf("unknown action type %q", a.Type)
	}
}

func (g *Game) applyPlacement(a Action) (bool, string) {
	if g.Status != StatusPlay {
		return false, "the game is not in play"
	}
	if g.Pending != nil {
		return false, "a request is awaiting response"
	}
	if a.Color != g.Turn {
		return false, "it isn't your turn"
	}
	if a.Coords == nil {
		return false, "placement requires coordinates"
	}
	row, col := a.Coords[0], a.Coords[1]
	if !g.Board.InRange(row, col) {
		return false, "coordinates are off the board"
	}
	if g.Board.Points[row][col].Color != "" {
		return false, "that point is occupied"
	}

	next := g.Board.Clone()
	next.Points[row][col] = Point{Color: a.Color}

	// Capture any adjacent opponent groups left without liberties
	captured := 0
	opponent := a.Color.Inverse()
	for _, d := range neighborOffsets {
		r, c := row+d[0], col+d[1]
		if !next.InRange(r, c) || next.Points[r][c].Color != opponent {
			continue
		}
		group := next.Group(r, c)
		if group != nil && !next.HasLiberty(group) {
			captured += next.removeGroup(group)
		}
	}

	// Suicide check after captures are resolved
	own := next.Group(row, col)
	if !next.HasLiberty(own) {
		return false, "self-capture is not allowed"
	}

	// Simple ko: the move may not recreate the position that stood before
	// the previous placement
	if g.KoBoard != nil && next.EqualPositions(g.KoBoard) {
		return false, "ko: that move would repeat the previous position"
	}

	g.KoBoard = g.Board
	g.Board = next
	g.Prisoners[a.Color] += captured
	g.Turn = a.Color.Inverse()
	g.Actions = append(g.Actions, a)
	return true, ""
}

func (g *Game) applyPass(a Action) (bool, string) {
	if g.Status != StatusPlay {
		return false, "the game is not in play"
	}
	if g.Pending != nil {
		return false, "a request is awaiting response"
	}
	if a.Color != g.Turn {
		return false, "it isn't your turn"
	}

	// Two consecutive passes end play
	if n := len(g.Actions); n > 0 && g.Actions[n-1].Type == PassTurn {
		g.Status = StatusEndgame
	}
	g.Turn = a.Color.Inverse()
	g.Actions = append(g.Actions, a)
	return true, ""
}

func (g *Game) applyMarkDead(a Action) (bool, string) {
	if g.Status != StatusEndgame {
		return false, "dead stones can only be marked during the endgame"
	}
	if g.Pending != nil {
		return false, "a request is awaiting response"
	}
	if a.Coords == nil {
		return false, "mark_dead requires coordinates"
	}
	row, col := a.Coords[0], a.Coords[1]
	if !g.Board.InRange(row, col) {
		return false, "coordinates are off the board"
	}
	if g.Board.Points[row][col].Color == "" {
		return false, "there is no stone at that point"
	}

	pending := a
	g.Pending = &pending
	g.Actions = append(g.Actions, a)
	return true, ""
}

// applyRequest handles request_draw (during play) and request_tally (during
// the endgame). Both suspend the game until the opponent responds.
func (g *Game) applyRequest(a Action, required GameStatus) (bool, string) {
	if g.Status != required {
		return false, fmt.Sprintf("%s is only allowed while the game status is %s", a.Type, required)
	}
	if g.Pending != nil {
		return false, "a request is already awaiting response"
	}

	pending := a
	g.Pending = &pending
	g.Actions = append(g.Actions, a)
	return true, ""
}

func (g *Game) applyResolution(a Action) (bool, string) {
	if g.Pending == nil {
		return false, "there is no request to respond to"
	}
	if a.Color != g.Pending.Color.Inverse() {
		return false, "only your opponent's requests can be answered"
	}

	pending := *g.Pending
	g.Pending = nil
	g.Actions = append(g.Actions, a)

	if a.Type == Reject {
		return true, ""
	}

	switch pending.Type {
	case MarkDead:
		group := g.Board.Group(pending.Coords[0], pending.Coords[1])
		for _, p := range group {
			g.Board.Points[p[0]][p[1]].MarkedDead = !g.Board.Points[p[0]][p[1]].MarkedDead
		}
	case RequestDraw:
		g.Status = StatusComplete
		g.Result = &Result{WhiteScore: 0, BlackScore: 0}
	case RequestTally:
		g.tally()
	}
	return true, ""
}

// tally removes marked-dead stones as prisoners, scores territory plus
// prisoners with komi for white, and completes the game.
func (g *Game) tally() {
	for i := range g.Board.Points {
		for j := range g.Board.Points[i] {
			p := g.Board.Points[i][j]
			if p.Color != "" && p.MarkedDead {
				g.Prisoners[p.Color.Inverse()]++
				g.Board.Points[i][j] = Point{}
			}
		}
	}

	territory := g.countTerritory()
	white := float64(territory[White]+g.Prisoners[White]) + g.Komi
	black := float64(territory[Black] + g.Prisoners[Black])

	result := &Result{WhiteScore: white, BlackScore: black}
	if white > black {
		result.Winner = White
	} else if black > white {
		result.Winner = Black
	}
	g.Result = result
	g.Status = StatusComplete
}

// countTerritory flood-fills empty regions; a region bordered exclusively by
// one color counts toward that color.
func (g *Game) countTerritory() map[Color]int {
	territory := map[Color]int{White: 0, Black: 0}
	seen := make(map[[2]int]bool)

	for i := range g.Board.Points {
		for j := range g.Board.Points[i] {
			start := [2]int{i, j}
			if g.Board.Points[i][j].Color != "" || seen[start] {
				continue
			}

			var region [][2]int
			borders := map[Color]bool{}
			stack := [][2]int{start}
			seen[start] = true

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				region = append(region, p)

				for _, d := range neighborOffsets {
					n := [2]int{p[0] + d[0], p[1] + d[1]}
					if !g.Board.InRange(n[0], n[1]) {
						continue
					}
					if c := g.Board.Points[n[0]][n[1]].Color; c != "" {
						borders[c] = true
					} else if !seen[n] {
						seen[n] = true
						stack = append(stack, n)
					}
				}
			}

			if len(borders) == 1 {
				for c := range borders {
					territory[c] += len(region)
				}
			}
		}
	}
	return territory
}
