package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrMatchNotFound       = errors.New("match not found")
	ErrMoveNotFound        = fmt.Errorf("%w: no move at index", ErrMatchNotFound)
	ErrPositionNotAllowed  = errors.New("position not allowed")
	ErrMoveNotAllowed      = errors.New("move not allowed")
	ErrOperationNotAllowed = errors.New("operation not allowed")
	ErrInvalidHistory      = errors.New("invalid move history")
	ErrNoAvailableMoves    = errors.New("no available moves")
	ErrRemoteFailed        = errors.New("remote instance failed")
)
