package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/magic-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/magic-tictactoe/internal/entity"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type matchService interface {
	GetMatch(ctx context.Context, id string) (*entity.Match, error)
	SubmitMove(ctx context.Context, id string, position int) (*entity.Match, error)
	Subscribe(ctx context.Context, id string) (<-chan *entity.Match, func(), error)
}

type handlerFunc func(ctx context.Context, matchID string, message *Message) (*Message, error)

// Server streams match snapshots to websocket clients and accepts moves from them.
type Server struct {
	logger       *slog.Logger
	matchService matchService
	upgrader     websocket.Upgrader

	handlers map[string]handlerFunc
}

func New(logger *slog.Logger, matchService matchService) *Server {
	server := &Server{
		logger:       logger.With("component", "websocket"),
		matchService: matchService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},

		handlers: make(map[string]handlerFunc),
	}

	server.handlers[actionGet] = server.handleGet
	server.handlers[actionMove] = server.handleMove

	return server
}

// Watch upgrades the request and keeps the client in sync with the match until
// either side goes away or the match is deleted.
func (that *Server) Watch(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "id")
	log := that.logger.With("method", "Watch", "match_id", matchID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe, err := that.matchService.Subscribe(ctx, matchID)
	if err != nil {
		if errors.Is(err, apperror.ErrMatchNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Error("failed to subscribe", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer unsubscribe()

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	log.Info("websocket connection established")

	replies := make(chan *Message, 1)
	go that.readMessages(ctx, cancel, conn, matchID, replies)

	if err = that.writeMessages(ctx, conn, matchID, updates, replies); err != nil {
		log.Debug("websocket connection closed", "error", err)
	}
}

// writeMessages is the only writer of conn.
func (that *Server) writeMessages(
	ctx context.Context,
	conn *websocket.Conn,
	matchID string,
	updates <-chan *entity.Match,
	replies <-chan *Message,
) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	current, err := that.matchService.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("failed to load match: %w", err)
	}

	if err = that.sendState(conn, current); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return that.sendClose(conn, websocket.CloseNormalClosure, "")
		case match, ok := <-updates:
			if !ok {
				return that.closeUnsubscribed(ctx, conn, matchID)
			}
			if err = that.sendState(conn, match); err != nil {
				return err
			}
		case message := <-replies:
			if err = that.send(conn, message); err != nil {
				return err
			}
		case <-ticker.C:
			if err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("failed to ping: %w", err)
			}
		}
	}
}

// readMessages dispatches client actions and cancels the session on the first read error.
func (that *Server) readMessages(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	matchID string,
	replies chan<- *Message,
) {
	log := that.logger.With("method", "readMessages", "match_id", matchID)
	defer cancel()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}

		var message Message
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("unexpected close", "error", err)
			}
			return
		}

		reply, err := that.dispatch(ctx, matchID, &message)
		if err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
			continue
		}

		if reply == nil {
			continue
		}

		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (that *Server) dispatch(ctx context.Context, matchID string, message *Message) (*Message, error) {
	handler, ok := that.handlers[message.Action]
	if !ok {
		return errorMessage(fmt.Sprintf("unknown action %q", message.Action))
	}

	return handler(ctx, matchID, message)
}

// handleGet answers with the current state. Moves are not answered directly;
// the resulting snapshot arrives through the subscription.
func (that *Server) handleGet(ctx context.Context, matchID string, _ *Message) (*Message, error) {
	match, err := that.matchService.GetMatch(ctx, matchID)
	if err != nil {
		return errorMessage(err.Error())
	}

	return stateMessage(match)
}

func (that *Server) handleMove(ctx context.Context, matchID string, message *Message) (*Message, error) {
	var payload MovePayload
	if err := json.Unmarshal(message.Payload, &payload); err != nil || payload.Move == nil {
		return errorMessage("move was not given")
	}

	if _, err := that.matchService.SubmitMove(ctx, matchID, *payload.Move); err != nil {
		return errorMessage(err.Error())
	}

	return nil, nil
}

func (that *Server) sendState(conn *websocket.Conn, match *entity.Match) error {
	message, err := stateMessage(match)
	if err != nil {
		return err
	}

	return that.send(conn, message)
}

func (that *Server) send(conn *websocket.Conn, message *Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err := conn.WriteJSON(message); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// closeUnsubscribed tells a deleted match apart from a watcher that fell too far behind.
func (that *Server) closeUnsubscribed(ctx context.Context, conn *websocket.Conn, matchID string) error {
	if ctx.Err() != nil {
		return that.sendClose(conn, websocket.CloseNormalClosure, "")
	}

	_, err := that.matchService.GetMatch(ctx, matchID)
	if errors.Is(err, apperror.ErrMatchNotFound) {
		return that.sendClose(conn, websocket.CloseGoingAway, "match closed")
	}

	return that.sendClose(conn, websocket.CloseTryAgainLater, "subscriber too slow")
}

func (that *Server) sendClose(conn *websocket.Conn, code int, reason string) error {
	err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("failed to close: %w", err)
	}

	return nil
}
