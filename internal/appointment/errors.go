package appointment

import (
	"context"
	"errors"
)

// Kind tags an error so callers can branch without parsing messages.
type Kind string

const (
	KindInvalidArgument    Kind = "invalid-argument"
	KindResourceExhausted  Kind = "resource-exhausted"
	KindFailedPrecondition Kind = "failed-precondition"
	KindNotFound           Kind = "not-found"
	KindUnauthenticated    Kind = "unauthenticated"
	KindUnavailable        Kind = "unavailable"
	KindInternal           Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func invalidArgument(msg string) *Error {
	return newError(KindInvalidArgument, msg)
}

var (
	ErrAppointmentNotFound = newError(KindNotFound, "appointment not found")
	ErrSlotTaken           = newError(KindResourceExhausted, "that time overlaps another appointment, choose a different one")
	ErrAlreadyCancelled    = newError(KindFailedPrecondition, "appointment is cancelled")
	ErrUpcomingExists      = newError(KindFailedPrecondition, "this phone number already has an upcoming appointment; cancel it or wait until it has passed")
	ErrNotStarted          = newError(KindFailedPrecondition, "attendance can only be recorded after the appointment has started")
	ErrInvalidTransition   = newError(KindFailedPrecondition, "invalid status transition")
	ErrDateBusy            = newError(KindUnavailable, "another booking for this date is in progress, please retry")
	ErrFolioExhausted      = newError(KindInternal, "could not generate a unique folio")
	ErrFolioTaken          = errors.New("folio already in use")
)

// KindOf classifies err. Unknown errors are internal, deadline errors unavailable.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	return KindInternal
}
