package game

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the turn budget runs out before the
	// whole sequence was reproduced.
	ErrTimeout = errors.New("turn budget exceeded")
	// ErrAborted is returned when the player quits or the session stops.
	ErrAborted = errors.New("turn aborted")
)

// MismatchError reports the first wrong symbol of a reproduction.
type MismatchError struct {
	Expected Symbol
	Received Symbol
	Position int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("wrong color at position %d: expected %s, received %s", e.Position, e.Expected, e.Received)
}
