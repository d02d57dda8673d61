package handover

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrExpired        = errors.New("handover code expired")
	ErrBlocked        = errors.New("handover blocked after too many failed attempts")
	ErrAlreadyStarted = errors.New("handover already started")
	ErrPairMismatch   = errors.New("match does not reference these items")
	ErrNotParticipant = errors.New("user does not own either item")
	ErrDelivery       = errors.New("handover code could not be delivered")
)

// InvalidCodeError is returned for a wrong code while attempts remain.
type InvalidCodeError struct {
	AttemptsLeft int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts left", e.AttemptsLeft)
}

// ValidationWarning flags an inconsistency between the two items of a
// handover. Warnings are logged and never block initiation.
type ValidationWarning struct {
	Check  string
	Detail string
}

func (w ValidationWarning) Error() string {
	return w.Check + ": " + w.Detail
}
