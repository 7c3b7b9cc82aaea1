package domain

import (
	"context"
	"errors"
	"fmt"

	"equiprent/internal/models"
)

var (
	ErrInvalidRange      = models.ErrInvalidRange
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrNotFound          = errors.New("not found")
	ErrInactive          = errors.New("equipment is inactive")
	ErrSelfBooking       = errors.New("owner cannot book own equipment")
	ErrConflict          = errors.New("interval conflicts with an active booking")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("actor is not allowed to perform this transition")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrInvalidUpdate     = errors.New("invalid equipment update")
)

// StoreError wraps a failure of the durable store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStoreUnavailable, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// Unavailable wraps err as a store failure unless it already carries a known kind
// or comes from the caller's context.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

type Kind string

const (
	KindUnknown           Kind = "Unknown"
	KindInvalidRange      Kind = "InvalidRange"
	KindInvalidDuration   Kind = "InvalidDuration"
	KindNotFound          Kind = "NotFound"
	KindInactive          Kind = "Inactive"
	KindSelfBooking       Kind = "SelfBooking"
	KindConflict          Kind = "Conflict"
	KindInvalidTransition Kind = "InvalidTransition"
	KindForbidden         Kind = "Forbidden"
	KindStoreUnavailable  Kind = "StoreUnavailable"
	KindInvalidUpdate     Kind = "InvalidUpdate"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrStoreUnavailable, KindStoreUnavailable},
	{ErrInvalidRange, KindInvalidRange},
	{ErrInvalidDuration, KindInvalidDuration},
	{ErrNotFound, KindNotFound},
	{ErrInactive, KindInactive},
	{ErrSelfBooking, KindSelfBooking},
	{ErrConflict, KindConflict},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrForbidden, KindForbidden},
	{ErrInvalidUpdate, KindInvalidUpdate},
}

// KindOf classifies err. StoreUnavailable wins over any kind found in its cause.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

var messages = map[Kind]string{
	KindInvalidRange:      "the end time must be after the start time",
	KindInvalidDuration:   "choose a valid number of hours",
	KindNotFound:          "not found",
	KindInactive:          "this equipment is not available for rent right now",
	KindSelfBooking:       "you cannot book your own equipment",
	KindConflict:          "this date is already booked",
	KindInvalidTransition: "this booking has already been processed",
	KindForbidden:         "you are not allowed to do this",
	KindStoreUnavailable:  "service temporarily unavailable, please retry",
	KindInvalidUpdate:     "check the rates and try again",
}

// Message returns the text shown to users for kind.
func Message(kind Kind) string {
	if m, ok := messages[kind]; ok {
		return m
	}
	return "internal error"
}
