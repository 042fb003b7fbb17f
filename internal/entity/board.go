package entity

const (
	BoardSize = 9
	MagicSum  = 15

	CenterPosition = 4
)

var (
	// magicSquare maps a row-major position to its magic value.
	magicSquare = [BoardSize]int{
		2, 7, 6,
		9, 5, 1,
		4, 3, 8,
	}

	// positionByValue is the inverse of magicSquare, index 0 is unused.
	positionByValue = [BoardSize + 1]int{-1, 5, 0, 7, 6, 4, 2, 1, 8, 3}

	CornerPositions = [4]int{0, 2, 6, 8}
	EdgePositions   = [4]int{1, 3, 5, 7}

	WinLines = [8][3]int{
		{0, 1, 2},
		{3, 4, 5},
		{6, 7, 8},
		{0, 3, 6},
		{1, 4, 7},
		{2, 5, 8},
		{0, 4, 8},
		{2, 4, 6},
	}
)

func ValidPosition(position int) bool {
	return position >= 0 && position < BoardSize
}

func ValidValue(value int) bool {
	return value >= 1 && value <= BoardSize
}

// PositionToValue returns the magic value of a valid board position.
func PositionToValue(position int) int {
	return magicSquare[position]
}

// ValueToPosition returns the board position holding a valid magic value.
func ValueToPosition(value int) int {
	return positionByValue[value]
}

// Position converts a row/column pair to a flat board position.
func Position(row, col int) int {
	return row*3 + col
}

func RowCol(position int) (int, int) {
	return position / 3, position % 3
}

// IsLine reports whether the three positions form one of the winning lines, in any order.
func IsLine(a, b, c int) bool {
	for _, line := range WinLines {
		if containsAll(line, a, b, c) {
			return true
		}
	}

	return false
}

// IsValueLine is IsLine over magic values.
func IsValueLine(x, y, z int) bool {
	if !ValidValue(x) || !ValidValue(y) || !ValidValue(z) {
		return false
	}

	return IsLine(ValueToPosition(x), ValueToPosition(y), ValueToPosition(z))
}

// HasLine reports whether the given magic values contain a complete winning line.
func HasLine(values []int) bool {
	var held [BoardSize]bool
	for _, value := range values {
		if ValidValue(value) {
			held[ValueToPosition(value)] = true
		}
	}

	for _, line := range WinLines {
		if held[line[0]] && held[line[1]] && held[line[2]] {
			return true
		}
	}

	return false
}

func containsAll(line [3]int, a, b, c int) bool {
	if a == b || b == c || a == c {
		return false
	}

	return contains(line, a) && contains(line, b) && contains(line, c)
}

func contains(line [3]int, position int) bool {
	return line[0] == position || line[1] == position || line[2] == position
}
