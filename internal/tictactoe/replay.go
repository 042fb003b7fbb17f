package tictactoe

import (
	"fmt"

	"github.com/rocketscienceinc/magic-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/magic-tictactoe/internal/entity"
)

// Move is one entry of a match history: the magic value a side claimed.
type Move struct {
	Side  entity.Side `json:"side"`
	Value int         `json:"value"`
}

// History interleaves the per-side sequences in play order, starting with the
// side that opened the match. A surplus on either side is appended at the end.
func History(match *entity.Match) []Move {
	first, second := entity.SideClient, entity.SideServer
	if match.ServerStarts {
		first, second = second, first
	}

	return interleave(first, match.Moves(first), second, match.Moves(second))
}

// Replay rebuilds a match from the empty board by applying moves in order. The
// status is evaluated once the whole history is on the board, so only
// conflicting or invalid moves make a history invalid.
func Replay(id string, serverStarts bool, moves []Move) (*entity.Match, error) {
	match := entity.NewMatch(id)
	match.ServerStarts = serverStarts

	for i, move := range moves {
		if !entity.ValidValue(move.Value) {
			return nil, fmt.Errorf("%w: move %d has value %d", apperror.ErrInvalidHistory, i, move.Value)
		}

		if err := match.ApplyMove(entity.ValueToPosition(move.Value), move.Side); err != nil {
			return nil, fmt.Errorf("%w: move %d: %w", apperror.ErrInvalidHistory, i, err)
		}
	}

	match.UpdateStatus()

	return match, nil
}

// EditAt replaces the client move at index with a move to position, dropping
// every later move. Index may equal the number of client moves to append. The
// new move is applied on top of the replayed earlier moves.
func EditAt(match *entity.Match, index, position int) (*entity.Match, error) {
	if index < 0 || index > len(match.ClientMoves) {
		return nil, fmt.Errorf("%w: index %d out of range", apperror.ErrMoveNotAllowed, index)
	}

	if !entity.ValidPosition(position) {
		return nil, fmt.Errorf("%w: position %d", apperror.ErrMoveNotAllowed, position)
	}

	serverMoves, clientMoves := truncate(match, index)

	edited, err := replaySides(match, serverMoves, clientMoves)
	if err != nil {
		return nil, err
	}

	if edited.IsFinished() {
		return nil, fmt.Errorf("%w: match was %s before move %d", apperror.ErrMoveNotAllowed, edited.Status, index)
	}

	if err = edited.ApplyMove(position, entity.SideClient); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrMoveNotAllowed, err)
	}

	edited.UpdateStatus()

	return edited, nil
}

// DeleteAt removes the client move at index together with every later move.
func DeleteAt(match *entity.Match, index int) (*entity.Match, error) {
	if index < 0 || index >= len(match.ClientMoves) {
		return nil, fmt.Errorf("%w: %d", apperror.ErrMoveNotFound, index)
	}

	serverMoves, clientMoves := truncate(match, index)

	return replaySides(match, serverMoves, clientMoves)
}

// truncate keeps the moves played before the client's move at index. When the
// server opened, its move at index came before that client move and is kept.
func truncate(match *entity.Match, index int) ([]int, []int) {
	serverCount := index
	if match.ServerStarts {
		serverCount = index + 1
	}

	serverCount = min(serverCount, len(match.ServerMoves))

	serverMoves := append([]int{}, match.ServerMoves[:serverCount]...)
	clientMoves := append([]int{}, match.ClientMoves[:index]...)

	return serverMoves, clientMoves
}

func replaySides(match *entity.Match, serverMoves, clientMoves []int) (*entity.Match, error) {
	trimmed := match.Clone()
	trimmed.ServerMoves = serverMoves
	trimmed.ClientMoves = clientMoves

	replayed, err := Replay(match.ID, match.ServerStarts, History(trimmed))
	if err != nil {
		return nil, fmt.Errorf("failed to replay match %s: %w", match.ID, err)
	}

	return replayed, nil
}

func interleave(first entity.Side, firstMoves []int, second entity.Side, secondMoves []int) []Move {
	moves := make([]Move, 0, len(firstMoves)+len(secondMoves))

	for i := 0; i < len(firstMoves) || i < len(secondMoves); i++ {
		if i < len(firstMoves) {
			moves = append(moves, Move{Side: first, Value: firstMoves[i]})
		}
		if i < len(secondMoves) {
			moves = append(moves, Move{Side: second, Value: secondMoves[i]})
		}
	}

	return moves
}
