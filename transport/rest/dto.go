package rest

import (
	"errors"

	"github.com/rocketscienceinc/magic-tictactoe/internal/entity"
)

var (
	errMoveNotGiven   = errors.New("move was not given")
	errCoordsOutRange = errors.New("coordinates out of range")
)

// moveRequest accepts either a board position or x/y coordinates.
type moveRequest struct {
	Move *int `json:"move"`
	X    *int `json:"x"`
	Y    *int `json:"y"`
}

func (that moveRequest) position() (int, error) {
	if that.Move != nil {
		return *that.Move, nil
	}

	if that.X == nil || that.Y == nil {
		return -1, errMoveNotGiven
	}

	x, y := *that.X, *that.Y
	if x < 0 || x > 2 || y < 0 || y > 2 {
		return -1, errCoordsOutRange
	}

	return entity.Position(y, x), nil
}

type playWithRequest struct {
	URL          string `json:"url"`
	ServerStarts bool   `json:"serverstarts"`
}

type idResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	Status entity.Status `json:"status"`
}

type MatchResponse struct {
	MatrixBoard [3][3]string  `json:"matrixBoard"`
	Game        *entity.Match `json:"game"`
}

func NewMatchResponse(match *entity.Match) MatchResponse {
	return MatchResponse{
		MatrixBoard: match.Grid(),
		Game:        match,
	}
}
