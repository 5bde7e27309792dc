package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func place(t *testing.T, g *Game, c Color, row, col int) {
	t.Helper()
	coords := [2]int{row, col}
	ok, reason := g.Apply(Action{Type: PlaceStone, Color: c, Coords: &coords})
	require.True(t, ok, "placing %s at (%d,%d): %s", c, row, col, reason)
}

func tryPlace(g *Game, c Color, row, col int) (bool, string) {
	coords := [2]int{row, col}
	return g.Apply(Action{Type: PlaceStone, Color: c, Coords: &coords})
}

func TestNewGame(t *testing.T) {
	g := New(9, 6.5)

	assert.Equal(t, StatusPlay, g.Status)
	assert.Equal(t, White, g.Turn, "white moves first")
	assert.Equal(t, 0, g.Version())
	assert.Equal(t, 9, g.Board.Size)
	assert.Equal(t, 6.5, g.Komi)
}

func TestTurnEnforcement(t *testing.T) {
	g := New(3, 0)

	ok, reason := tryPlace(g, Black, 0, 0)
	require.False(t, ok)
	assert.Equal(t, "it isn't your turn", reason)

	place(t, g, White, 0, 0)
	assert.Equal(t, Black, g.Turn)

	ok, _ = tryPlace(g, White, 1, 1)
	assert.False(t, ok, "white may not move twice")
}

func TestPlacementRejections(t *testing.T) {
	g := New(3, 0)
	place(t, g, White, 1, 1)

	ok, reason := tryPlace(g, Black, 1, 1)
	require.False(t, ok)
	assert.Equal(t, "that point is occupied", reason)

	ok, reason = tryPlace(g, Black, 3, 0)
	require.False(t, ok)
	assert.Equal(t, "coordinates are off the board", reason)

	ok, reason = g.Apply(Action{Type: PlaceStone, Color: Black})
	require.False(t, ok)
	assert.Equal(t, "placement requires coordinates", reason)

	ok, _ = g.Apply(Action{Type: PlaceStone, Color: "green"})
	assert.False(t, ok)

	ok, _ = g.Apply(Action{Type: "explode", Color: Black})
	assert.False(t, ok)
}

func TestCapture(t *testing.T) {
	g := New(3, 0)
	g.Board.Points[1][1] = Point{Color: White}
	g.Board.Points[0][1] = Point{Color: Black}
	g.Board.Points[1][0] = Point{Color: Black}
	g.Board.Points[1][2] = Point{Color: Black}
	g.Turn = Black

	place(t, g, Black, 2, 1)

	assert.Equal(t, Color(""), g.Board.Points[1][1].Color, "white stone captured")
	assert.Equal(t, 1, g.Prisoners[Black])
	assert.Equal(t, White, g.Turn)
	assert.Equal(t, 1, g.Version())
}

func TestSuicideForbidden(t *testing.T) {
	g := New(3, 0)
	g.Board.Points[0][1] = Point{Color: White}
	g.Board.Points[1][0] = Point{Color: White}
	g.Board.Points[1][2] = Point{Color: White}
	g.Board.Points[2][1] = Point{Color: White}
	g.Turn = Black

	ok, reason := tryPlace(g, Black, 1, 1)
	require.False(t, ok)
	assert.Equal(t, "self-capture is not allowed", reason)
	assert.Equal(t, 0, g.Version())
}

func TestCapturingMoveIsNotSuicide(t *testing.T) {
	// white plays into a point with no liberties, but the placement
	// captures first
	g := New(3, 0)
	g.Board.Points[0][1] = Point{Color: Black}
	g.Board.Points[0][2] = Point{Color: White}
	g.Board.Points[1][1] = Point{Color: White}
	g.Board.Points[1][0] = Point{Color: White}

	place(t, g, White, 0, 0)

	assert.Equal(t, Color(""), g.Board.Points[0][1].Color)
	assert.Equal(t, 1, g.Prisoners[White])
}

func TestSimpleKo(t *testing.T) {
	g := New(4, 0)
	g.Board.Points[0][1] = Point{Color: Black}
	g.Board.Points[1][0] = Point{Color: Black}
	g.Board.Points[2][1] = Point{Color: Black}
	g.Board.Points[0][2] = Point{Color: White}
	g.Board.Points[1][3] = Point{Color: White}
	g.Board.Points[2][2] = Point{Color: White}
	g.Board.Points[1][1] = Point{Color: White}
	g.Turn = Black

	// black captures the ko stone
	place(t, g, Black, 1, 2)
	assert.Equal(t, Color(""), g.Board.Points[1][1].Color)
	assert.Equal(t, 1, g.Prisoners[Black])

	// white may not retake immediately
	ok, reason := tryPlace(g, White, 1, 1)
	require.False(t, ok)
	assert.Contains(t, reason, "ko")

	// after an exchange elsewhere the retake is legal again
	place(t, g, White, 3, 3)
	place(t, g, Black, 3, 0)
	place(t, g, White, 1, 1)
	assert.Equal(t, Color(""), g.Board.Points[1][2].Color)
	assert.Equal(t, 1, g.Prisoners[White])
}

func TestTwoPassesEndPlay(t *testing.T) {
	g := New(3, 0)

	ok, _ := g.Apply(Action{Type: PassTurn, Color: White})
	require.True(t, ok)
	assert.Equal(t, StatusPlay, g.Status)

	ok, _ = g.Apply(Action{Type: PassTurn, Color: Black})
	require.True(t, ok)
	assert.Equal(t, StatusEndgame, g.Status)

	ok, reason := tryPlace(g, White, 0, 0)
	require.False(t, ok)
	assert.Equal(t, "the game is not in play", reason)
}

func TestPassThenPlayThenTwoPasses(t *testing.T) {
	g := New(3, 0)

	g.Apply(Action{Type: PassTurn, Color: White})
	place(t, g, Black, 0, 0)
	g.Apply(Action{Type: PassTurn, Color: White})
	assert.Equal(t, StatusPlay, g.Status, "non-consecutive passes do not end play")

	g.Apply(Action{Type: PassTurn, Color: Black})
	assert.Equal(t, StatusEndgame, g.Status)
}

func TestDrawRequest(t *testing.T) {
	g := New(3, 0)

	ok, _ := g.Apply(Action{Type: RequestDraw, Color: White})
	require.True(t, ok)
	require.NotNil(t, g.Pending)

	ok, reason := tryPlace(g, Black, 0, 0)
	require.False(t, ok)
	assert.Equal(t, "a request is awaiting response", reason)

	// the requester cannot answer their own request
	ok, _ = g.Apply(Action{Type: Accept, Color: White})
	require.False(t, ok)

	ok, _ = g.Apply(Action{Type: Accept, Color: Black})
	require.True(t, ok)
	assert.Equal(t, StatusComplete, g.Status)
	require.NotNil(t, g.Result)
	assert.Equal(t, Color(""), g.Result.Winner)
}

func TestRejectClearsPending(t *testing.T) {
	g := New(3, 0)

	g.Apply(Action{Type: RequestDraw, Color: White})
	ok, _ := g.Apply(Action{Type: Reject, Color: Black})
	require.True(t, ok)
	assert.Nil(t, g.Pending)
	assert.Equal(t, StatusPlay, g.Status)

	// play resumes where it left off
	place(t, g, White, 0, 0)
}

func TestRequestTallyOnlyInEndgame(t *testing.T) {
	g := New(3, 0)

	ok, _ := g.Apply(Action{Type: RequestTally, Color: White})
	assert.False(t, ok)

	ok, _ = g.Apply(Action{Type: RequestDraw, Color: White})
	assert.True(t, ok)
}

func TestMarkDeadAndTally(t *testing.T) {
	g := New(3, 0.5)
	g.Board.Points[1][0] = Point{Color: White}
	g.Board.Points[1][1] = Point{Color: White}
	g.Board.Points[1][2] = Point{Color: White}
	g.Board.Points[2][2] = Point{Color: Black}
	g.Status = StatusEndgame

	// mark_dead is a request; nothing happens until the opponent accepts
	coords := [2]int{1, 1}
	ok, _ := g.Apply(Action{Type: MarkDead, Color: Black, Coords: &coords})
	require.True(t, ok)
	assert.False(t, g.Board.Points[1][1].MarkedDead)

	ok, _ = g.Apply(Action{Type: Accept, Color: White})
	require.True(t, ok)
	assert.True(t, g.Board.Points[1][0].MarkedDead, "the whole group is marked")
	assert.True(t, g.Board.Points[1][1].MarkedDead)
	assert.True(t, g.Board.Points[1][2].MarkedDead)

	ok, _ = g.Apply(Action{Type: RequestTally, Color: Black})
	require.True(t, ok)
	ok, _ = g.Apply(Action{Type: Accept, Color: White})
	require.True(t, ok)

	assert.Equal(t, StatusComplete, g.Status)
	require.NotNil(t, g.Result)
	// three dead whites become black prisoners and the board empties of
	// white, so the eight empty points are black territory
	assert.Equal(t, 11.0, g.Result.BlackScore)
	assert.Equal(t, 0.5, g.Result.WhiteScore)
	assert.Equal(t, Black, g.Result.Winner)
	assert.Equal(t, Color(""), g.Board.Points[1][1].Color, "dead stones removed")
}

func TestMarkDeadRequiresStone(t *testing.T) {
	g := New(3, 0)
	g.Status = StatusEndgame

	coords := [2]int{0, 0}
	ok, reason := g.Apply(Action{Type: MarkDead, Color: Black, Coords: &coords})
	require.False(t, ok)
	assert.Equal(t, "there is no stone at that point", reason)
}

func TestVersionCountsAppliedActions(t *testing.T) {
	g := New(3, 0)
	place(t, g, White, 0, 0)
	tryPlace(g, White, 1, 1) // rejected, must not count
	place(t, g, Black, 1, 1)

	assert.Equal(t, 2, g.Version())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	g := New(5, 6.5)
	place(t, g, White, 2, 2)
	place(t, g, Black, 2, 3)

	blob, err := g.Encode()
	require.NoError(t, err)

	decoded, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, g.Version(), decoded.Version())
	assert.Equal(t, g.Turn, decoded.Turn)
	assert.Equal(t, g.Status, decoded.Status)
	assert.True(t, g.Board.EqualPositions(decoded.Board))
	assert.Equal(t, g.Prisoners, decoded.Prisoners)
}

func TestCloneIsIndependent(t *testing.T) {
	g := New(3, 0)
	place(t, g, White, 0, 0)

	clone := g.Clone()
	place(t, clone, Black, 1, 1)

	assert.Equal(t, 1, g.Version())
	assert.Equal(t, 2, clone.Version())
	assert.Equal(t, Color(""), g.Board.Points[1][1].Color)
}

func TestWireEncoding(t *testing.T) {
	b := NewBoard(2)
	b.Points[0][0] = Point{Color: White}
	b.Points[0][1] = Point{Color: Black}
	b.Points[1][0] = Point{Color: White, MarkedDead: true}

	wire := b.Wire()
	assert.Equal(t, [][]string{{"w", "b"}, {"wd", ""}}, wire)

	rebuilt := boardFromWire(wire)
	assert.True(t, b.EqualPositions(rebuilt))
	assert.True(t, rebuilt.Points[1][0].MarkedDead)
}

func TestFromWire(t *testing.T) {
	g := New(3, 6.5)
	place(t, g, White, 1, 1)

	rebuilt := FromWire(g.Board.Wire(), string(g.Status), string(g.Turn), g.Komi, 0, 0)
	assert.Equal(t, g.Status, rebuilt.Status)
	assert.Equal(t, Black, rebuilt.Turn)
	assert.True(t, g.Board.EqualPositions(rebuilt.Board))

	// a wire-rebuilt game can validate moves
	ok, _ := tryPlace(rebuilt, Black, 1, 1)
	assert.False(t, ok)
	ok, _ = tryPlace(rebuilt, Black, 0, 0)
	assert.True(t, ok)
}
