package tictactoe

import (
	"fmt"
	"math/rand"

	"github.com/rocketscienceinc/magic-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/magic-tictactoe/internal/entity"
)

// Policy picks moves for whichever side it is asked about. It is not safe for concurrent use.
type Policy struct {
	rnd *rand.Rand
}

func NewPolicy(source rand.Source) *Policy {
	return &Policy{
		rnd: rand.New(source), //nolint: gosec // move choice, not security
	}
}

// NextMove returns the position side should play next. The opening book runs first,
// then win, block, the opposite corner follow-up and finally a random free cell.
func (that *Policy) NextMove(match *entity.Match, side entity.Side) (int, error) {
	if !match.IsInProgress() {
		return -1, fmt.Errorf("%w: match is %s", apperror.ErrNoAvailableMoves, match.Status)
	}

	free := allowedPositions(match)
	if len(free) == 0 {
		return -1, apperror.ErrNoAvailableMoves
	}

	mine := match.Moves(side)
	theirs := match.Moves(side.Opponent())
	movesFirst := match.MovesFirst(side)

	if position, ok := that.openingMove(match, mine, theirs, movesFirst); ok {
		return position, nil
	}

	if position, ok := completeLine(match, mine); ok {
		return position, nil
	}

	if position, ok := completeLine(match, theirs); ok {
		return position, nil
	}

	if movesFirst && len(mine) == 2 {
		if position, ok := oppositeCorner(match, mine); ok {
			return position, nil
		}
	}

	return free[that.rnd.Intn(len(free))], nil
}

// openingMove covers the first two moves of either side. A candidate that is
// already taken, which only happens after history edits, yields no move.
func (that *Policy) openingMove(match *entity.Match, mine, theirs []int, movesFirst bool) (int, bool) {
	switch {
	case movesFirst && len(mine) == 0:
		return that.pickAllowed(match, entity.CornerPositions[:])
	case movesFirst && len(mine) == 1:
		if match.AllowedPositions[entity.CenterPosition] {
			return adjacentCorner(match, mine[0])
		}
		return oppositeCorner(match, mine)
	case !movesFirst && len(mine) == 0 && match.AllowedPositions[entity.CenterPosition]:
		return entity.CenterPosition, true
	case !movesFirst && len(mine) == 1 && !match.AllowedPositions[entity.CenterPosition]:
		// An edge keeps the opposite-corner fork off the board, but a live threat still comes first.
		if position, ok := completeLine(match, theirs); ok {
			return position, true
		}
		return that.pickAllowed(match, entity.EdgePositions[:])
	}

	return -1, false
}

func (that *Policy) pickAllowed(match *entity.Match, candidates []int) (int, bool) {
	allowed := make([]int, 0, len(candidates))
	for _, position := range candidates {
		if match.IsPositionAllowed(position) {
			allowed = append(allowed, position)
		}
	}

	if len(allowed) == 0 {
		return -1, false
	}

	return allowed[that.rnd.Intn(len(allowed))], true
}

// adjacentCorner mirrors the first move across the middle row. That corner is
// taken only if the two cells next to it on its column and row are also free,
// otherwise the corner mirrored across the middle column is used.
func adjacentCorner(match *entity.Match, firstValue int) (int, bool) {
	row, col := entity.RowCol(entity.ValueToPosition(firstValue))

	mirrored := abs(row-2)*3 + col
	between := abs(row-1)*3 + col
	beside := abs(row-2)*3 + abs(col-1)
	fallback := row*3 + abs(col-2)

	if match.IsPositionAllowed(mirrored) && match.IsPositionAllowed(between) && match.IsPositionAllowed(beside) {
		return mirrored, true
	}

	if match.IsPositionAllowed(fallback) {
		return fallback, true
	}

	return -1, false
}

// oppositeCorner returns the cell diagonally opposite the first or, failing that, the second own move.
func oppositeCorner(match *entity.Match, mine []int) (int, bool) {
	for i := 0; i < len(mine) && i < 2; i++ {
		row, col := entity.RowCol(entity.ValueToPosition(mine[i]))

		opposite := abs(row-2)*3 + abs(col-2)
		if match.IsPositionAllowed(opposite) {
			return opposite, true
		}
	}

	return -1, false
}

// completeLine looks for the free third cell of a line two of values already hold.
// The magic sum proposes the candidate, the line table confirms it.
func completeLine(match *entity.Match, values []int) (int, bool) {
	for i, x := range values {
		for _, y := range values[i+1:] {
			z := entity.MagicSum - x - y
			if match.IsValueAllowed(z) && entity.IsValueLine(x, y, z) {
				return entity.ValueToPosition(z), true
			}
		}
	}

	return -1, false
}

func allowedPositions(match *entity.Match) []int {
	free := make([]int, 0, entity.BoardSize)
	for position := 0; position < entity.BoardSize; position++ {
		if match.AllowedPositions[position] {
			free = append(free, position)
		}
	}

	return free
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
