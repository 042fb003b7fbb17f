package selfplay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rocketscienceinc/magic-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/magic-tictactoe/internal/entity"
)

type movePolicy interface {
	NextMove(match *entity.Match, side entity.Side) (int, error)
}

// Player plays the client side of a match hosted by another instance of this service.
type Player struct {
	logger     *slog.Logger
	httpClient *http.Client
	timeout    time.Duration

	mu     sync.Mutex
	policy movePolicy
}

func New(logger *slog.Logger, httpClient *http.Client, policy movePolicy, timeout time.Duration) *Player {
	return &Player{
		logger:     logger.With("component", "selfplay"),
		httpClient: httpClient,
		timeout:    timeout,
		policy:     policy,
	}
}

// Play creates a match on the remote instance and answers every server move
// until the match is decided. It returns the final status.
func (that *Player) Play(ctx context.Context, baseURL string, serverStarts bool) (entity.Status, error) {
	if that.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, that.timeout)
		defer cancel()
	}

	baseURL = strings.TrimRight(baseURL, "/")
	log := that.logger.With("method", "Play", "remote", baseURL)

	var created struct {
		ID string `json:"id"`
	}
	if err := that.do(ctx, http.MethodPost, baseURL+"/newgame", nil, http.StatusCreated, &created); err != nil {
		return "", fmt.Errorf("failed to create remote match: %w", err)
	}

	log = log.With("match_id", created.ID)
	gameURL := baseURL + "/game/" + created.ID

	if serverStarts {
		if err := that.do(ctx, http.MethodPatch, gameURL+"/serverstarts", nil, http.StatusOK, nil); err != nil {
			return "", fmt.Errorf("failed to let the remote start: %w", err)
		}
	}

	for i := 0; i < entity.BoardSize; i++ {
		match, err := that.fetch(ctx, gameURL)
		if err != nil {
			return "", err
		}

		if match.IsFinished() {
			log.Info("remote match finished", "status", match.Status)
			return match.Status, nil
		}

		position, err := that.nextMove(match)
		if err != nil {
			return "", err
		}

		body := map[string]int{"move": position}
		if err = that.do(ctx, http.MethodPost, gameURL+"/move", body, http.StatusOK, nil); err != nil {
			return "", fmt.Errorf("failed to submit move %d: %w", position, err)
		}
	}

	match, err := that.fetch(ctx, gameURL)
	if err != nil {
		return "", err
	}

	return match.Status, nil
}

func (that *Player) nextMove(match *entity.Match) (int, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	position, err := that.policy.NextMove(match, entity.SideClient)
	if err != nil {
		return -1, fmt.Errorf("failed to choose a client move: %w", err)
	}

	return position, nil
}

func (that *Player) fetch(ctx context.Context, gameURL string) (*entity.Match, error) {
	var envelope struct {
		Game *entity.Match `json:"game"`
	}

	if err := that.do(ctx, http.MethodGet, gameURL, nil, http.StatusOK, &envelope); err != nil {
		return nil, fmt.Errorf("failed to fetch remote match: %w", err)
	}

	if envelope.Game == nil || !envelope.Game.Consistent() {
		return nil, fmt.Errorf("%w: malformed match", apperror.ErrRemoteFailed)
	}

	return envelope.Game, nil
}

func (that *Player) do(ctx context.Context, method, url string, in any, wantCode int, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrRemoteFailed, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := that.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrRemoteFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantCode {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s returned %d: %s", apperror.ErrRemoteFailed, method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", apperror.ErrRemoteFailed, err)
	}

	return nil
}
