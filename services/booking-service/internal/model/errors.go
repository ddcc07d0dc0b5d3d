package model

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/interval"
)

// Expected outcomes of normal operation. Callers branch on them with errors.Is;
// anything else returned by the engine is an infrastructure failure.
var (
	ErrInvalidInterval   = interval.ErrInvalidInterval
	ErrConflict          = errors.New("interval no longer available")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPaymentRequired   = errors.New("payment required")
	ErrExpired           = errors.New("hold expired")
	ErrValidation        = errors.New("validation failed")
	ErrDuplicate         = errors.New("duplicate client generated id")

	// ErrUnavailable marks storage timeouts and lock contention; retry with backoff.
	ErrUnavailable = errors.New("system unavailable")
)

// ConflictError reports the commitment that blocked an insert.
type ConflictError struct {
	With Commitment
}

func (e *ConflictError) Error() string {
	if e.With.ID == "" {
		return ErrConflict.Error()
	}
	return fmt.Sprintf("%s: overlaps %s %s (%s)", ErrConflict, e.With.Kind, e.With.ID, e.With.Interval)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// IsExpected reports whether err belongs to the domain taxonomy rather than
// to infrastructure.
func IsExpected(err error) bool {
	for _, target := range []error{
		ErrInvalidInterval, ErrConflict, ErrNotFound, ErrInvalidTransition,
		ErrPaymentRequired, ErrExpired, ErrValidation, ErrDuplicate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func invalidTransition(from, to fmt.Stringer) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
