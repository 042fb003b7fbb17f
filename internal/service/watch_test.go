package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/magic-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/magic-tictactoe/internal/entity"
)

func receive(t *testing.T, updates <-chan *entity.Match) (*entity.Match, bool) {
	t.Helper()

	select {
	case match, ok := <-updates:
		return match, ok
	case <-time.After(time.Second):
		t.Fatal("no update received")
		return nil, false
	}
}

func TestMatchService_Subscribe(t *testing.T) {
	t.Run("Subscriber sees every change", func(t *testing.T) {
		ctx := context.Background()
		svc, match := newScriptedService(t, 0)

		updates, unsubscribe, err := svc.Subscribe(ctx, match.ID)
		require.NoError(t, err)
		defer unsubscribe()

		// When: a move is submitted
		_, err = svc.SubmitMove(ctx, match.ID, 4)
		require.NoError(t, err)

		// Then: the subscriber receives the new state
		snapshot, ok := receive(t, updates)
		require.True(t, ok)
		assert.Equal(t, positionsToValues(4), snapshot.ClientMoves)
		assert.Equal(t, positionsToValues(0), snapshot.ServerMoves)
	})

	t.Run("Cancelled context closes the channel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		svc, match := newScriptedService(t)

		updates, _, err := svc.Subscribe(ctx, match.ID)
		require.NoError(t, err)

		cancel()

		_, ok := receive(t, updates)
		assert.False(t, ok)
	})

	t.Run("Deleting the match closes the channel", func(t *testing.T) {
		ctx := context.Background()
		svc, match := newScriptedService(t)

		updates, unsubscribe, err := svc.Subscribe(ctx, match.ID)
		require.NoError(t, err)
		defer unsubscribe()

		require.NoError(t, svc.DeleteMatch(ctx, match.ID))

		_, ok := receive(t, updates)
		assert.False(t, ok)
	})

	t.Run("Unknown match", func(t *testing.T) {
		svc, _ := newScriptedService(t)

		_, _, err := svc.Subscribe(context.Background(), "missing")

		assert.ErrorIs(t, err, apperror.ErrMatchNotFound)
	})
}

func TestWatchers(t *testing.T) {
	t.Run("Slow subscriber is dropped", func(t *testing.T) {
		w := newWatchers()
		updates, unsubscribe := w.subscribe(context.Background(), "m1")
		defer unsubscribe()

		match := entity.NewMatch("m1")

		// Given: the first snapshot is never read
		w.publish(match)
		// When: a second one arrives
		w.publish(match)

		// Then: the buffered snapshot is delivered and the channel is closed
		_, ok := <-updates
		assert.True(t, ok)
		_, ok = <-updates
		assert.False(t, ok)
		assert.Zero(t, w.count("m1"))
	})

	t.Run("Published snapshots are copies", func(t *testing.T) {
		w := newWatchers()
		updates, unsubscribe := w.subscribe(context.Background(), "m1")
		defer unsubscribe()

		match := entity.NewMatch("m1")
		w.publish(match)
		require.NoError(t, match.ApplyMove(0, entity.SideClient))

		snapshot := <-updates
		assert.Empty(t, snapshot.ClientMoves)
	})

	t.Run("Unsubscribe twice is safe", func(t *testing.T) {
		w := newWatchers()
		_, unsubscribe := w.subscribe(context.Background(), "m1")

		unsubscribe()
		unsubscribe()

		assert.Zero(t, w.count("m1"))
	})

	t.Run("Other matches are not notified", func(t *testing.T) {
		w := newWatchers()
		updates, unsubscribe := w.subscribe(context.Background(), "m1")
		defer unsubscribe()

		w.publish(entity.NewMatch("m2"))

		assert.Empty(t, updates)
		assert.Equal(t, 1, w.count("m1"))
	})
}
