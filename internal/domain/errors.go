package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrConflict            = errors.New("conflict")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// TransitionError reports an order action attempted from the wrong status.
type TransitionError struct {
	OrderID  string
	Action   string
	Current  OrderStatus
	Expected OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s order %s: status is %s, expected %s",
		e.Action, e.OrderID, e.Current, e.Expected)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidState
}
