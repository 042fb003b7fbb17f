package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/magic-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/magic-tictactoe/internal/entity"
)

type Handlers interface {
	PingHandler(w http.ResponseWriter, _ *http.Request)

	NewGame(w http.ResponseWriter, r *http.Request)
	ServerStarts(w http.ResponseWriter, r *http.Request)
	GetGame(w http.ResponseWriter, r *http.Request)
	DeleteGame(w http.ResponseWriter, r *http.Request)

	SubmitMove(w http.ResponseWriter, r *http.Request)
	EditMove(w http.ResponseWriter, r *http.Request)
	DeleteMove(w http.ResponseWriter, r *http.Request)

	PlayWith(w http.ResponseWriter, r *http.Request)
}

type matchService interface {
	StartMatch(ctx context.Context) (*entity.Match, error)
	SetServerStarts(ctx context.Context, id string) (*entity.Match, error)
	SubmitMove(ctx context.Context, id string, position int) (*entity.Match, error)
	EditMoveAt(ctx context.Context, id string, index, position int) (*entity.Match, error)
	DeleteMoveAt(ctx context.Context, id string, index int) (*entity.Match, error)
	GetMatch(ctx context.Context, id string) (*entity.Match, error)
	DeleteMatch(ctx context.Context, id string) error
}

type selfPlayer interface {
	Play(ctx context.Context, baseURL string, serverStarts bool) (entity.Status, error)
}

type handlers struct {
	logger       *slog.Logger
	matchService matchService
	selfPlayer   selfPlayer
}

func NewHandlers(logger *slog.Logger, matchService matchService, selfPlayer selfPlayer) Handlers {
	return &handlers{
		logger:       logger.With("component", "rest"),
		matchService: matchService,
		selfPlayer:   selfPlayer,
	}
}

func (that *handlers) PingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

func (that *handlers) NewGame(w http.ResponseWriter, r *http.Request) {
	match, err := that.matchService.StartMatch(r.Context())
	if err != nil {
		that.writeError(w, "NewGame", err)
		return
	}

	that.writeJSON(w, http.StatusCreated, idResponse{ID: match.ID})
}

func (that *handlers) ServerStarts(w http.ResponseWriter, r *http.Request) {
	match, err := that.matchService.SetServerStarts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		that.writeError(w, "ServerStarts", err)
		return
	}

	that.writeJSON(w, http.StatusOK, statusResponse{Status: match.Status})
}

func (that *handlers) GetGame(w http.ResponseWriter, r *http.Request) {
	match, err := that.matchService.GetMatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		that.writeError(w, "GetGame", err)
		return
	}

	that.writeJSON(w, http.StatusOK, NewMatchResponse(match))
}

func (that *handlers) DeleteGame(w http.ResponseWriter, r *http.Request) {
	if err := that.matchService.DeleteMatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		that.writeError(w, "DeleteGame", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (that *handlers) SubmitMove(w http.ResponseWriter, r *http.Request) {
	position, ok := that.decodeMove(w, r)
	if !ok {
		return
	}

	match, err := that.matchService.SubmitMove(r.Context(), chi.URLParam(r, "id"), position)
	if err != nil {
		that.writeError(w, "SubmitMove", err)
		return
	}

	that.writeJSON(w, http.StatusOK, statusResponse{Status: match.Status})
}

func (that *handlers) EditMove(w http.ResponseWriter, r *http.Request) {
	index, ok := that.moveIndex(w, r)
	if !ok {
		return
	}

	position, ok := that.decodeMove(w, r)
	if !ok {
		return
	}

	match, err := that.matchService.EditMoveAt(r.Context(), chi.URLParam(r, "id"), index, position)
	if err != nil {
		that.writeError(w, "EditMove", err)
		return
	}

	that.writeJSON(w, http.StatusOK, statusResponse{Status: match.Status})
}

func (that *handlers) DeleteMove(w http.ResponseWriter, r *http.Request) {
	index, ok := that.moveIndex(w, r)
	if !ok {
		return
	}

	match, err := that.matchService.DeleteMoveAt(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		that.writeError(w, "DeleteMove", err)
		return
	}

	that.writeJSON(w, http.StatusOK, statusResponse{Status: match.Status})
}

// PlayWith plays a full match as the client against the instance at the given url.
func (that *handlers) PlayWith(w http.ResponseWriter, r *http.Request) {
	var req playWithRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "url was not given", http.StatusBadRequest)
		return
	}

	status, err := that.selfPlayer.Play(r.Context(), req.URL, req.ServerStarts)
	if err != nil {
		that.writeError(w, "PlayWith", err)
		return
	}

	that.writeJSON(w, http.StatusOK, statusResponse{Status: status})
}

func (that *handlers) decodeMove(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return -1, false
	}

	position, err := req.position()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return -1, false
	}

	return position, true
}

func (that *handlers) moveIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "moveId"))
	if err != nil {
		http.Error(w, "invalid move id", http.StatusBadRequest)
		return -1, false
	}

	return index, true
}

func (that *handlers) writeError(w http.ResponseWriter, method string, err error) {
	switch {
	case errors.Is(err, apperror.ErrMatchNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, apperror.ErrPositionNotAllowed),
		errors.Is(err, apperror.ErrMoveNotAllowed),
		errors.Is(err, apperror.ErrOperationNotAllowed),
		errors.Is(err, apperror.ErrInvalidHistory):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, apperror.ErrRemoteFailed):
		that.logger.Warn("remote instance failed", "method", method, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		that.logger.Error("request failed", "method", method, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (that *handlers) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to encode response", "error", err)
	}
}
