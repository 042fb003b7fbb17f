package entity

import (
	"fmt"

	"github.com/rocketscienceinc/magic-tictactoe/internal/apperror"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusDraw       Status = "draw"
	StatusServerWon  Status = "server_won"
	StatusClientWon  Status = "client_won"
)

type Side string

const (
	SideServer Side = "server"
	SideClient Side = "client"
)

const (
	MarkServer = "x"
	MarkClient = "o"
	MarkEmpty  = ""
)

func (that Side) Opponent() Side {
	if that == SideServer {
		return SideClient
	}
	return SideServer
}

// Match is the authoritative record of one game. ServerMoves and ClientMoves hold
// magic values in play order and are the only source of truth; the allowed sets
// are derived from them. AllowedValues is indexed by magic value - 1.
type Match struct {
	ID               string          `json:"id"`
	Status           Status          `json:"status"`
	ServerMoves      []int           `json:"server_moves"`
	ClientMoves      []int           `json:"client_moves"`
	AllowedPositions [BoardSize]bool `json:"allowed_positions"`
	AllowedValues    [BoardSize]bool `json:"allowed_values"`
	ServerStarts     bool            `json:"server_starts"`
}

func NewMatch(id string) *Match {
	match := &Match{
		ID:          id,
		Status:      StatusInProgress,
		ServerMoves: []int{},
		ClientMoves: []int{},
	}

	for i := 0; i < BoardSize; i++ {
		match.AllowedPositions[i] = true
		match.AllowedValues[i] = true
	}

	return match
}

func (that *Match) Moves(side Side) []int {
	if side == SideServer {
		return that.ServerMoves
	}
	return that.ClientMoves
}

func (that *Match) MoveCount() int {
	return len(that.ServerMoves) + len(that.ClientMoves)
}

// MovesFirst reports whether side opened the match.
func (that *Match) MovesFirst(side Side) bool {
	return (side == SideServer) == that.ServerStarts
}

// Turn returns the side expected to move next under strict alternation.
func (that *Match) Turn() Side {
	if that.ServerStarts {
		if len(that.ServerMoves) <= len(that.ClientMoves) {
			return SideServer
		}
		return SideClient
	}

	if len(that.ClientMoves) <= len(that.ServerMoves) {
		return SideClient
	}
	return SideServer
}

func (that *Match) IsPositionAllowed(position int) bool {
	return ValidPosition(position) && that.AllowedPositions[position]
}

func (that *Match) IsValueAllowed(value int) bool {
	return ValidValue(value) && that.AllowedValues[value-1]
}

func (that *Match) IsInProgress() bool {
	return that.Status == StatusInProgress
}

func (that *Match) IsFinished() bool {
	return !that.IsInProgress()
}

// ApplyMove claims position for side. It is the only way play history grows.
func (that *Match) ApplyMove(position int, side Side) error {
	if !that.IsInProgress() {
		return fmt.Errorf("%w: match is %s", apperror.ErrPositionNotAllowed, that.Status)
	}

	if !that.IsPositionAllowed(position) {
		return fmt.Errorf("%w: position %d", apperror.ErrPositionNotAllowed, position)
	}

	value := PositionToValue(position)

	that.AllowedPositions[position] = false
	that.AllowedValues[value-1] = false

	if side == SideServer {
		that.ServerMoves = append(that.ServerMoves, value)
	} else {
		that.ClientMoves = append(that.ClientMoves, value)
	}

	return nil
}

// EvaluateStatus derives the status from the move sequences without changing the match.
func (that *Match) EvaluateStatus() Status {
	switch {
	case HasLine(that.ServerMoves):
		return StatusServerWon
	case HasLine(that.ClientMoves):
		return StatusClientWon
	case that.MoveCount() >= BoardSize:
		return StatusDraw
	default:
		return StatusInProgress
	}
}

func (that *Match) UpdateStatus() Status {
	that.Status = that.EvaluateStatus()
	return that.Status
}

func (that *Match) Clone() *Match {
	clone := *that
	clone.ServerMoves = append(make([]int, 0, len(that.ServerMoves)), that.ServerMoves...)
	clone.ClientMoves = append(make([]int, 0, len(that.ClientMoves)), that.ClientMoves...)

	return &clone
}

// Grid renders the board as rows of MarkServer, MarkClient or MarkEmpty.
func (that *Match) Grid() [3][3]string {
	var grid [3][3]string

	for _, value := range that.ServerMoves {
		row, col := RowCol(ValueToPosition(value))
		grid[row][col] = MarkServer
	}

	for _, value := range that.ClientMoves {
		row, col := RowCol(ValueToPosition(value))
		grid[row][col] = MarkClient
	}

	return grid
}

// Consistent reports whether the allowed sets match the move sequences and no value is played twice.
func (that *Match) Consistent() bool {
	var played [BoardSize]bool

	for _, value := range append(append([]int{}, that.ServerMoves...), that.ClientMoves...) {
		if !ValidValue(value) || played[ValueToPosition(value)] {
			return false
		}
		played[ValueToPosition(value)] = true
	}

	for position := 0; position < BoardSize; position++ {
		if that.AllowedPositions[position] == played[position] {
			return false
		}
		if that.AllowedValues[PositionToValue(position)-1] == played[position] {
			return false
		}
	}

	return true
}
