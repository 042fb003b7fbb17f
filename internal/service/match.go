package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/magic-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/magic-tictactoe/internal/entity"
	"github.com/rocketscienceinc/magic-tictactoe/internal/pkg"
	"github.com/rocketscienceinc/magic-tictactoe/internal/tictactoe"
)

type MatchService interface {
	StartMatch(ctx context.Context) (*entity.Match, error)
	SetServerStarts(ctx context.Context, id string) (*entity.Match, error)
	SubmitMove(ctx context.Context, id string, position int) (*entity.Match, error)

	EditMoveAt(ctx context.Context, id string, index, position int) (*entity.Match, error)
	DeleteMoveAt(ctx context.Context, id string, index int) (*entity.Match, error)

	GetMatch(ctx context.Context, id string) (*entity.Match, error)
	DeleteMatch(ctx context.Context, id string) error

	Subscribe(ctx context.Context, id string) (<-chan *entity.Match, func(), error)
}

type matchRepo interface {
	CreateOrUpdate(ctx context.Context, match *entity.Match) error
	GetByID(ctx context.Context, id string) (*entity.Match, error)
	DeleteByID(ctx context.Context, id string) error
}

type movePolicy interface {
	NextMove(match *entity.Match, side entity.Side) (int, error)
}

// matchService runs every operation on a copy of the stored match and persists
// it only when the whole operation succeeded. mu serializes read-modify-write
// cycles and guards the policy, which is not safe for concurrent use.
type matchService struct {
	logger *slog.Logger

	mu        sync.Mutex
	matchRepo matchRepo
	policy    movePolicy
	watchers  *watchers
}

func NewMatchService(logger *slog.Logger, matchRepo matchRepo, policy movePolicy) MatchService {
	return &matchService{
		logger:    logger.With("component", "match_service"),
		matchRepo: matchRepo,
		policy:    policy,
		watchers:  newWatchers(),
	}
}

func (that *matchService) StartMatch(ctx context.Context) (*entity.Match, error) {
	matchID, err := pkg.GenerateMatchID()
	if err != nil {
		return nil, fmt.Errorf("error generating match ID: %w", err)
	}

	match := entity.NewMatch(matchID)

	if err = that.matchRepo.CreateOrUpdate(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	that.logger.Info("match started", "match_id", matchID)

	return match, nil
}

func (that *matchService) SetServerStarts(ctx context.Context, id string) (*entity.Match, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	match, err := that.getMatch(ctx, id)
	if err != nil {
		return nil, err
	}

	if match.ServerStarts || match.MoveCount() > 0 {
		return nil, fmt.Errorf("%w: match %s already started", apperror.ErrOperationNotAllowed, id)
	}

	match.ServerStarts = true

	if err = that.serverMove(match); err != nil {
		return nil, err
	}

	if err = that.saveMatch(ctx, match); err != nil {
		return nil, err
	}

	return match, nil
}

// SubmitMove plays the client move and, while the match is still open, the server reply.
// Sides alternate strictly, so a move is rejected while the server is due.
func (that *matchService) SubmitMove(ctx context.Context, id string, position int) (*entity.Match, error) {
	log := that.logger.With("method", "SubmitMove", "match_id", id)

	that.mu.Lock()
	defer that.mu.Unlock()

	match, err := that.getMatch(ctx, id)
	if err != nil {
		return nil, err
	}

	if match.IsInProgress() && match.Turn() != entity.SideClient {
		return nil, fmt.Errorf("client move rejected: %w: waiting for the server", apperror.ErrPositionNotAllowed)
	}

	if err = match.ApplyMove(position, entity.SideClient); err != nil {
		return nil, fmt.Errorf("client move rejected: %w", err)
	}

	if match.UpdateStatus() == entity.StatusInProgress {
		if err = that.serverMove(match); err != nil {
			return nil, err
		}
	}

	if err = that.saveMatch(ctx, match); err != nil {
		return nil, err
	}

	log.Debug("move accepted", "position", position, "status", match.Status)

	return match, nil
}

// EditMoveAt rewrites the client move at index and answers it like a submitted move.
func (that *matchService) EditMoveAt(ctx context.Context, id string, index, position int) (*entity.Match, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	match, err := that.getMatch(ctx, id)
	if err != nil {
		return nil, err
	}

	edited, err := tictactoe.EditAt(match, index, position)
	if err != nil {
		return nil, fmt.Errorf("failed to edit move %d: %w", index, err)
	}

	if edited.IsInProgress() && edited.Turn() == entity.SideServer {
		if err = that.serverMove(edited); err != nil {
			return nil, err
		}
	}

	if err = that.saveMatch(ctx, edited); err != nil {
		return nil, err
	}

	that.logger.Info("move edited", "match_id", id, "index", index, "position", position)

	return edited, nil
}

func (that *matchService) DeleteMoveAt(ctx context.Context, id string, index int) (*entity.Match, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	match, err := that.getMatch(ctx, id)
	if err != nil {
		return nil, err
	}

	truncated, err := tictactoe.DeleteAt(match, index)
	if err != nil {
		return nil, fmt.Errorf("failed to delete move %d: %w", index, err)
	}

	if err = that.saveMatch(ctx, truncated); err != nil {
		return nil, err
	}

	that.logger.Info("move deleted", "match_id", id, "index", index)

	return truncated, nil
}

func (that *matchService) GetMatch(ctx context.Context, id string) (*entity.Match, error) {
	return that.getMatch(ctx, id)
}

func (that *matchService) DeleteMatch(ctx context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.matchRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete match %s: %w", id, err)
	}

	that.watchers.closeAll(id)

	that.logger.Info("match deleted", "match_id", id)

	return nil
}

// Subscribe streams a snapshot of the match after every change until ctx is done or unsubscribe is called.
func (that *matchService) Subscribe(ctx context.Context, id string) (<-chan *entity.Match, func(), error) {
	if _, err := that.getMatch(ctx, id); err != nil {
		return nil, nil, err
	}

	ch, unsubscribe := that.watchers.subscribe(ctx, id)

	return ch, unsubscribe, nil
}

func (that *matchService) serverMove(match *entity.Match) error {
	position, err := that.policy.NextMove(match, entity.SideServer)
	if err != nil {
		return fmt.Errorf("server failed to choose a move: %w", err)
	}

	if err = match.ApplyMove(position, entity.SideServer); err != nil {
		return fmt.Errorf("server move rejected: %w", err)
	}

	match.UpdateStatus()

	return nil
}

func (that *matchService) getMatch(ctx context.Context, id string) (*entity.Match, error) {
	match, err := that.matchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	return match, nil
}

func (that *matchService) saveMatch(ctx context.Context, match *entity.Match) error {
	if err := that.matchRepo.CreateOrUpdate(ctx, match); err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}

	that.watchers.publish(match)

	return nil
}
