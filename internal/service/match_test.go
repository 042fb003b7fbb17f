package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/magic-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/magic-tictactoe/internal/entity"
	"github.com/rocketscienceinc/magic-tictactoe/internal/repository"
	"github.com/rocketscienceinc/magic-tictactoe/internal/tictactoe"
	mockedService "github.com/rocketscienceinc/magic-tictactoe/mocks/service"
)

var errRedisDown = errors.New("redis down")

// scriptedPolicy answers with the queued positions in order.
type scriptedPolicy struct {
	positions []int
}

func (that *scriptedPolicy) NextMove(_ *entity.Match, _ entity.Side) (int, error) {
	if len(that.positions) == 0 {
		return -1, apperror.ErrNoAvailableMoves
	}

	position := that.positions[0]
	that.positions = that.positions[1:]

	return position, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newScriptedService(t *testing.T, serverPositions ...int) (MatchService, *entity.Match) {
	t.Helper()

	svc := NewMatchService(newTestLogger(), repository.NewMemoryMatchRepository(), &scriptedPolicy{positions: serverPositions})

	match, err := svc.StartMatch(context.Background())
	require.NoError(t, err)

	return svc, match
}

func positionsToValues(positions ...int) []int {
	out := make([]int, 0, len(positions))
	for _, position := range positions {
		out = append(out, entity.PositionToValue(position))
	}
	return out
}

// newPolicyService stores a match with the given history and serves it with the real policy.
func newPolicyService(t *testing.T, serverStarts bool, server, client []int) (MatchService, *entity.Match) {
	t.Helper()

	repo := repository.NewMemoryMatchRepository()

	match := entity.NewMatch("match123")
	match.ServerStarts = serverStarts
	for _, position := range server {
		require.NoError(t, match.ApplyMove(position, entity.SideServer))
	}
	for _, position := range client {
		require.NoError(t, match.ApplyMove(position, entity.SideClient))
	}
	require.Equal(t, entity.StatusInProgress, match.UpdateStatus())
	require.NoError(t, repo.CreateOrUpdate(context.Background(), match))

	return NewMatchService(newTestLogger(), repo, tictactoe.NewPolicy(rand.NewSource(1))), match
}

func requireClientTurn(t *testing.T, match *entity.Match) {
	t.Helper()

	require.Len(t, match.ServerMoves, len(match.ClientMoves))
	require.Equal(t, entity.SideClient, match.Turn())
}

func TestMatchService_StartMatch(t *testing.T) {
	ctx := context.Background()

	// Given: a fresh service
	svc, match := newScriptedService(t)

	// Then: the match is empty, open and stored
	assert.NotEmpty(t, match.ID)
	assert.Equal(t, entity.StatusInProgress, match.Status)
	assert.Empty(t, match.ServerMoves)
	assert.Empty(t, match.ClientMoves)
	assert.False(t, match.ServerStarts)

	stored, err := svc.GetMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, match, stored)

	other, err := svc.StartMatch(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, match.ID, other.ID)
}

func TestMatchService_SetServerStarts(t *testing.T) {
	ctx := context.Background()

	t.Run("Server plays the opening move", func(t *testing.T) {
		svc, match := newScriptedService(t, 0)

		updated, err := svc.SetServerStarts(ctx, match.ID)

		require.NoError(t, err)
		assert.True(t, updated.ServerStarts)
		assert.Equal(t, positionsToValues(0), updated.ServerMoves)
		assert.Empty(t, updated.ClientMoves)
		assert.False(t, updated.AllowedPositions[0])
	})

	t.Run("Second call is rejected", func(t *testing.T) {
		svc, match := newScriptedService(t, 0, 8)

		_, err := svc.SetServerStarts(ctx, match.ID)
		require.NoError(t, err)

		_, err = svc.SetServerStarts(ctx, match.ID)

		require.ErrorIs(t, err, apperror.ErrOperationNotAllowed)
		stored, err := svc.GetMatch(ctx, match.ID)
		require.NoError(t, err)
		assert.Len(t, stored.ServerMoves, 1)
	})

	t.Run("Rejected once the client moved", func(t *testing.T) {
		svc, match := newScriptedService(t, 4, 0)

		_, err := svc.SubmitMove(ctx, match.ID, 0)
		require.NoError(t, err)

		_, err = svc.SetServerStarts(ctx, match.ID)

		assert.ErrorIs(t, err, apperror.ErrOperationNotAllowed)
	})

	t.Run("Unknown match", func(t *testing.T) {
		svc, _ := newScriptedService(t)

		_, err := svc.SetServerStarts(ctx, "missing")

		assert.ErrorIs(t, err, apperror.ErrMatchNotFound)
	})
}

func TestMatchService_SubmitMove(t *testing.T) {
	ctx := context.Background()

	t.Run("Client move is answered by the server", func(t *testing.T) {
		// Given: a match the client opens
		svc, match := newScriptedService(t, 0)

		// When: the client takes the center
		updated, err := svc.SubmitMove(ctx, match.ID, 4)

		// Then: both moves are on the board and the match goes on
		require.NoError(t, err)
		assert.Equal(t, positionsToValues(4), updated.ClientMoves)
		assert.Equal(t, positionsToValues(0), updated.ServerMoves)
		assert.Equal(t, entity.StatusInProgress, updated.Status)
		assert.True(t, updated.Consistent())
	})

	t.Run("Occupied cell leaves the match untouched", func(t *testing.T) {
		svc, match := newScriptedService(t, 0, 1)

		before, err := svc.SubmitMove(ctx, match.ID, 4)
		require.NoError(t, err)

		_, err = svc.SubmitMove(ctx, match.ID, 0)

		require.ErrorIs(t, err, apperror.ErrPositionNotAllowed)
		stored, err := svc.GetMatch(ctx, match.ID)
		require.NoError(t, err)
		assert.Equal(t, before, stored)
	})

	t.Run("Positions outside the board are rejected", func(t *testing.T) {
		svc, match := newScriptedService(t)

		_, err := svc.SubmitMove(ctx, match.ID, 9)

		assert.ErrorIs(t, err, apperror.ErrPositionNotAllowed)
	})

	t.Run("Client win gets no server reply", func(t *testing.T) {
		// Given: the server answers at 1 and 2
		svc, match := newScriptedService(t, 1, 2)

		_, err := svc.SubmitMove(ctx, match.ID, 0)
		require.NoError(t, err)
		_, err = svc.SubmitMove(ctx, match.ID, 3)
		require.NoError(t, err)

		// When: the client completes the left column
		updated, err := svc.SubmitMove(ctx, match.ID, 6)

		// Then: the client won and the server did not move again
		require.NoError(t, err)
		assert.Equal(t, entity.StatusClientWon, updated.Status)
		assert.Len(t, updated.ServerMoves, 2)
	})

	t.Run("Server win ends the match", func(t *testing.T) {
		svc, match := newScriptedService(t, 0, 1, 2)

		for _, position := range []int{8, 7} {
			_, err := svc.SubmitMove(ctx, match.ID, position)
			require.NoError(t, err)
		}

		updated, err := svc.SubmitMove(ctx, match.ID, 5)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusServerWon, updated.Status)

		_, err = svc.SubmitMove(ctx, match.ID, 3)
		assert.ErrorIs(t, err, apperror.ErrPositionNotAllowed)
	})

	t.Run("Full board without a line is a draw", func(t *testing.T) {
		// Given: client 0 2 7 3 8 against server 4 1 5 6
		svc, match := newScriptedService(t, 4, 1, 5, 6)

		var (
			updated *entity.Match
			err     error
		)
		for _, position := range []int{0, 2, 7, 3, 8} {
			updated, err = svc.SubmitMove(ctx, match.ID, position)
			require.NoError(t, err)
		}

		// Then: nine moves and a draw
		assert.Equal(t, entity.StatusDraw, updated.Status)
		assert.Equal(t, entity.BoardSize, updated.MoveCount())
	})

	t.Run("Unknown match", func(t *testing.T) {
		svc, _ := newScriptedService(t)

		_, err := svc.SubmitMove(ctx, "missing", 0)

		assert.ErrorIs(t, err, apperror.ErrMatchNotFound)
	})

	t.Run("Concurrent moves keep the match consistent", func(t *testing.T) {
		svc := NewMatchService(newTestLogger(), repository.NewMemoryMatchRepository(), tictactoe.NewPolicy(rand.NewSource(3)))
		match, err := svc.StartMatch(ctx)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for position := 0; position < entity.BoardSize; position++ {
			position := position
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = svc.SubmitMove(ctx, match.ID, position)
			}()
		}
		wg.Wait()

		stored, err := svc.GetMatch(ctx, match.ID)
		require.NoError(t, err)
		assert.True(t, stored.Consistent())
		assert.NotEmpty(t, stored.ClientMoves)
	})
}

func TestMatchService_WithPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("Server opens in a corner", func(t *testing.T) {
		svc, match := newPolicyService(t, false, nil, nil)

		updated, err := svc.SetServerStarts(ctx, match.ID)

		require.NoError(t, err)
		require.Len(t, updated.ServerMoves, 1)
		assert.Contains(t, entity.CornerPositions[:], entity.ValueToPosition(updated.ServerMoves[0]))
	})

	t.Run("Server completes its line", func(t *testing.T) {
		// Given: the server holds 0 and 1, the client holds the center
		svc, match := newPolicyService(t, true, []int{0, 1}, []int{4})

		// When: the client ignores the threat
		updated, err := svc.SubmitMove(ctx, match.ID, 8)

		// Then: the server takes 2 and wins
		require.NoError(t, err)
		assert.Equal(t, entity.StatusServerWon, updated.Status)
		assert.Equal(t, positionsToValues(0, 1, 2), updated.ServerMoves)
	})

	t.Run("Server blocks the client line", func(t *testing.T) {
		svc, match := newPolicyService(t, false, []int{4}, []int{0})

		updated, err := svc.SubmitMove(ctx, match.ID, 1)

		require.NoError(t, err)
		assert.Equal(t, entity.StatusInProgress, updated.Status)
		assert.Equal(t, positionsToValues(4, 2), updated.ServerMoves)
	})

	t.Run("Sides alternate across an edit", func(t *testing.T) {
		svc, match := newPolicyService(t, false, nil, nil)

		// When: submit, edit the first move, submit again
		updated, err := svc.SubmitMove(ctx, match.ID, 0)
		require.NoError(t, err)
		requireClientTurn(t, updated)

		updated, err = svc.EditMoveAt(ctx, match.ID, 0, 2)
		require.NoError(t, err)
		requireClientTurn(t, updated)
		assert.Equal(t, positionsToValues(entity.CenterPosition), updated.ServerMoves)

		updated, err = svc.SubmitMove(ctx, match.ID, 1)
		require.NoError(t, err)
		requireClientTurn(t, updated)

		// Then: the server answered every client move and blocked the top row
		assert.Equal(t, positionsToValues(2, 1), updated.ClientMoves)
		assert.Equal(t, positionsToValues(entity.CenterPosition, 0), updated.ServerMoves)
		assert.Equal(t, entity.StatusInProgress, updated.Status)

		_, err = svc.SubmitMove(ctx, match.ID, 0)
		assert.ErrorIs(t, err, apperror.ErrPositionNotAllowed)
	})

	t.Run("Client move is rejected while the server is due", func(t *testing.T) {
		// Given: a stored match where the client already moved and the server has not
		svc, match := newPolicyService(t, false, nil, []int{0})

		_, err := svc.SubmitMove(ctx, match.ID, 4)

		require.ErrorIs(t, err, apperror.ErrPositionNotAllowed)
		stored, err := svc.GetMatch(ctx, match.ID)
		require.NoError(t, err)
		assert.Equal(t, match, stored)
	})
}

func TestMatchService_EditAndDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("Edit rewrites the client move and the server answers it", func(t *testing.T) {
		// Given: client 0, server 4, client 8, server 2
		svc, match := newScriptedService(t, 4, 2, 3)
		for _, position := range []int{0, 8} {
			_, err := svc.SubmitMove(ctx, match.ID, position)
			require.NoError(t, err)
		}

		// When: the second client move becomes 6
		edited, err := svc.EditMoveAt(ctx, match.ID, 1, 6)

		// Then: the old server reply at 2 is dropped and a new one is played
		require.NoError(t, err)
		assert.Equal(t, positionsToValues(0, 6), edited.ClientMoves)
		assert.Equal(t, positionsToValues(4, 3), edited.ServerMoves)
		assert.Equal(t, entity.SideClient, edited.Turn())

		stored, err := svc.GetMatch(ctx, match.ID)
		require.NoError(t, err)
		assert.Equal(t, edited, stored)
	})

	t.Run("Rejected edit keeps the stored match", func(t *testing.T) {
		svc, match := newScriptedService(t, 4)
		before, err := svc.SubmitMove(ctx, match.ID, 0)
		require.NoError(t, err)

		_, err = svc.EditMoveAt(ctx, match.ID, 5, 1)

		require.ErrorIs(t, err, apperror.ErrMoveNotAllowed)
		stored, err := svc.GetMatch(ctx, match.ID)
		require.NoError(t, err)
		assert.Equal(t, before, stored)
	})

	t.Run("Delete truncates the history", func(t *testing.T) {
		svc, match := newScriptedService(t, 4, 2)
		for _, position := range []int{0, 8} {
			_, err := svc.SubmitMove(ctx, match.ID, position)
			require.NoError(t, err)
		}

		deleted, err := svc.DeleteMoveAt(ctx, match.ID, 1)

		require.NoError(t, err)
		assert.Equal(t, positionsToValues(0), deleted.ClientMoves)
		assert.Equal(t, positionsToValues(4), deleted.ServerMoves)
	})

	t.Run("Delete of a missing move", func(t *testing.T) {
		svc, match := newScriptedService(t)

		_, err := svc.DeleteMoveAt(ctx, match.ID, 0)

		assert.ErrorIs(t, err, apperror.ErrMoveNotFound)
	})

	t.Run("Unknown match", func(t *testing.T) {
		svc, _ := newScriptedService(t)

		_, err := svc.EditMoveAt(ctx, "missing", 0, 0)
		require.ErrorIs(t, err, apperror.ErrMatchNotFound)

		_, err = svc.DeleteMoveAt(ctx, "missing", 0)
		assert.ErrorIs(t, err, apperror.ErrMatchNotFound)
	})
}

func TestMatchService_DeleteMatch(t *testing.T) {
	ctx := context.Background()
	svc, match := newScriptedService(t)

	require.NoError(t, svc.DeleteMatch(ctx, match.ID))

	_, err := svc.GetMatch(ctx, match.ID)
	require.ErrorIs(t, err, apperror.ErrMatchNotFound)

	assert.ErrorIs(t, svc.DeleteMatch(ctx, match.ID), apperror.ErrMatchNotFound)
}

func TestMatchService_RepositoryFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("Load failure is returned", func(t *testing.T) {
		// Given: a repository that cannot be reached
		mockRepo := mockedService.NewMockmatchRepo(t)
		svc := NewMatchService(newTestLogger(), mockRepo, &scriptedPolicy{})

		mockRepo.EXPECT().
			GetByID(mock.Anything, "match123").
			Return((*entity.Match)(nil), errRedisDown).
			Once()

		// When: submitting a move
		_, err := svc.SubmitMove(ctx, "match123", 4)

		// Then: the storage error surfaces
		assert.ErrorIs(t, err, errRedisDown)
	})

	t.Run("Save failure does not notify watchers", func(t *testing.T) {
		mockRepo := mockedService.NewMockmatchRepo(t)
		svc := NewMatchService(newTestLogger(), mockRepo, &scriptedPolicy{positions: []int{0}})

		mockRepo.EXPECT().
			GetByID(mock.Anything, "match123").
			RunAndReturn(func(context.Context, string) (*entity.Match, error) {
				return entity.NewMatch("match123"), nil
			})
		mockRepo.EXPECT().
			CreateOrUpdate(mock.Anything, mock.AnythingOfType("*entity.Match")).
			Return(errRedisDown).
			Once()

		updates, unsubscribe, err := svc.Subscribe(ctx, "match123")
		require.NoError(t, err)
		defer unsubscribe()

		_, err = svc.SubmitMove(ctx, "match123", 4)

		require.ErrorIs(t, err, errRedisDown)
		assert.Empty(t, updates)
	})

	t.Run("Create failure is returned", func(t *testing.T) {
		mockRepo := mockedService.NewMockmatchRepo(t)
		svc := NewMatchService(newTestLogger(), mockRepo, &scriptedPolicy{})

		mockRepo.EXPECT().
			CreateOrUpdate(mock.Anything, mock.AnythingOfType("*entity.Match")).
			Return(errRedisDown).
			Once()

		_, err := svc.StartMatch(ctx)

		assert.ErrorIs(t, err, errRedisDown)
	})
}
