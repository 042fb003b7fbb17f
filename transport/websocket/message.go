package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/magic-tictactoe/internal/entity"
)

const (
	actionState = "match:state"
	actionGet   = "match:get"
	actionMove  = "match:move"
	actionError = "error"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type MovePayload struct {
	Move *int `json:"move"`
}

type StatePayload struct {
	MatrixBoard [3][3]string  `json:"matrixBoard"`
	Game        *entity.Match `json:"game"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

func newMessage(action string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return &Message{Action: action, Payload: raw}, nil
}

func stateMessage(match *entity.Match) (*Message, error) {
	return newMessage(actionState, StatePayload{
		MatrixBoard: match.Grid(),
		Game:        match,
	})
}

func errorMessage(reason string) (*Message, error) {
	return newMessage(actionError, ErrorPayload{Error: reason})
}
