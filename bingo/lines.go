package bingo

const (
	// GridSize is the edge length of a card.
	GridSize = 3
	// CellCount is the number of cells on a card.
	CellCount = GridSize * GridSize
	// CenterPosition holds the definition that triggered the card.
	CenterPosition = 4
)

// Line is one of the eight winning lines of a 3x3 card.
type Line struct {
	Name  string        `json:"name"`
	Cells [GridSize]int `json:"cells"`
}

// Lines enumerates rows, columns and diagonals, row-major positions 0..8.
var Lines = []Line{
	{Name: "row-1", Cells: [GridSize]int{0, 1, 2}},
	{Name: "row-2", Cells: [GridSize]int{3, 4, 5}},
	{Name: "row-3", Cells: [GridSize]int{6, 7, 8}},
	{Name: "col-1", Cells: [GridSize]int{0, 3, 6}},
	{Name: "col-2", Cells: [GridSize]int{1, 4, 7}},
	{Name: "col-3", Cells: [GridSize]int{2, 5, 8}},
	{Name: "diag-main", Cells: [GridSize]int{0, 4, 8}},
	{Name: "diag-anti", Cells: [GridSize]int{2, 4, 6}},
}

// State is the unlocked flag of each cell, indexed by position.
type State [CellCount]bool

// Complete reports whether every cell is unlocked.
func (s State) Complete() bool {
	for _, unlocked := range s {
		if !unlocked {
			return false
		}
	}
	return true
}

// CompletedLines returns the lines whose three cells are all unlocked, in
// the order of Lines. The result is derived on every call and never cached.
func CompletedLines(state State) []Line {
	var out []Line
	for _, line := range Lines {
		if state[line.Cells[0]] && state[line.Cells[1]] && state[line.Cells[2]] {
			out = append(out, line)
		}
	}
	return out
}

// PositionsOnCompletedLines returns the ascending, de-duplicated positions
// that sit on at least one completed line.
func PositionsOnCompletedLines(state State) []int {
	var on [CellCount]bool
	for _, line := range CompletedLines(state) {
		for _, pos := range line.Cells {
			on[pos] = true
		}
	}
	var out []int
	for pos, ok := range on {
		if ok {
			out = append(out, pos)
		}
	}
	return out
}
