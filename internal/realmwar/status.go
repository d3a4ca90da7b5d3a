package realmwar

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
)

var ErrIllegalTransition = errors.New("illegal status transition")

func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusCompleted
}

// Transition validates a move out of s. Only an active match can end,
// and it ends exactly once.
func (s Status) Transition(to Status) (Status, error) {
	if s == StatusActive && to.Terminal() {
		return to, nil
	}
	return s, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s, to)
}
