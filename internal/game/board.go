package game

// Color identifies a player
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Inverse returns white for black and black for white
func (c Color) Inverse() Color {
	if c == White {
		return Black
	}
	return White
}

// Valid reports whether c is one of the two player colors
func (c Color) Valid() bool {
	return c == White || c == Black
}

// Point is one intersection of the board. An empty Color means the point is
// unoccupied. MarkedDead is meaningful only during the endgame.
type Point struct {
	Color      Color `json:"color,omitempty"`
	MarkedDead bool  `json:"marked_dead,omitempty"`
}

// Wire returns the compact client encoding: "", "w", "b", "wd" or "bd".
func (p Point) Wire() string {
	s := ""
	switch p.Color {
	case White:
		s = "w"
	case Black:
		s = "b"
	}
	if s != "" && p.MarkedDead {
		s += "d"
	}
	return s
}

// Board is a square grid of points
type Board struct {
	Size   int       `json:"size"`
	Points [][]Point `json:"points"`
}

// NewBoard creates an empty board of the given size
func NewBoard(size int) *Board {
	points := make([][]Point, size)
	for i := range points {
		points[i] = make([]Point, size)
	}
	return &Board{Size: size, Points: points}
}

// Clone returns a deep copy of the board
func (b *Board) Clone() *Board {
	nb := NewBoard(b.Size)
	for i := range b.Points {
		copy(nb.Points[i], b.Points[i])
	}
	return nb
}

// EqualPositions compares stone placement only. Dead marks are ignored, as
// this is used solely for ko detection.
func (b *Board) EqualPositions(o *Board) bool {
	if o == nil || b.Size != o.Size {
		return false
	}
	for i := range b.Points {
		for j := range b.Points[i] {
			if b.Points[i][j].Color != o.Points[i][j].Color {
				return false
			}
		}
	}
	return true
}

// InRange reports whether (row, col) is on the board
func (b *Board) InRange(row, col int) bool {
	return row >= 0 && row < b.Size && col >= 0 && col < b.Size
}

var neighborOffsets = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// Group returns the coordinates of the connected group containing
// (row, col), or nil if the point is empty.
func (b *Board) Group(row, col int) [][2]int {
	color := b.Points[row][col].Color
	if color == "" {
		return nil
	}

	seen := map[[2]int]bool{{row, col}: true}
	stack := [][2]int{{row, col}}
	var group [][2]int

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		group = append(group, p)

		for _, d := range neighborOffsets {
			n := [2]int{p[0] + d[0], p[1] + d[1]}
			if !b.InRange(n[0], n[1]) || seen[n] {
				continue
			}
			if b.Points[n[0]][n[1]].Color == color {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return group
}

// HasLiberty reports whether the given group has at least one empty neighbor
func (b *Board) HasLiberty(group [][2]int) bool {
	for _, p := range group {
		for _, d := range neighborOffsets {
			r, c := p[0]+d[0], p[1]+d[1]
			if b.InRange(r, c) && b.Points[r][c].Color == "" {
				return true
			}
		}
	}
	return false
}

// removeGroup clears every point of the group and returns how many stones
// were removed.
func (b *Board) removeGroup(group [][2]int) int {
	for _, p := range group {
		b.Points[p[0]][p[1]] = Point{}
	}
	return len(group)
}

// Wire returns the client encoding of the whole board
func (b *Board) Wire() [][]string {
	rows := make([][]string, b.Size)
	for i := range b.Points {
		rows[i] = make([]string, b.Size)
		for j := range b.Points[i] {
			rows[i][j] = b.Points[i][j].Wire()
		}
	}
	return rows
}

// boardFromWire rebuilds a board from its client encoding
func boardFromWire(rows [][]string) *Board {
	b := NewBoard(len(rows))
	for i, row := range rows {
		for j, s := range row {
			switch s {
			case "w":
				b.Points[i][j] = Point{Color: White}
			case "b":
				b.Points[i][j] = Point{Color: Black}
			case "wd":
				b.Points[i][j] = Point{Color: White, MarkedDead: true}
			case "bd":
				b.Points[i][j] = Point{Color: Black, MarkedDead: true}
			}
		}
	}
	return b
}
