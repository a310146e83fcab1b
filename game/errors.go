package game

import (
	"codewords/codenames"
	"codewords/domain"
	"context"
	"errors"
)

var (
	ErrNotJoined        = errors.New("not-joined")
	ErrAlreadyJoined    = errors.New("already-joined")
	ErrRateLimited      = errors.New("rate-limited")
	ErrUnknownEvent     = errors.New("unknown-event")
	ErrBadPayload       = errors.New("bad-payload")
	ErrWrongSession     = errors.New("wrong-session")
	ErrEmptyMessage     = errors.New("empty-message")
	ErrMessageTooLong   = errors.New("message-too-long")
	ErrDuplicatePlayer  = errors.New("duplicate-player")
	ErrTooManySpyMaster = errors.New("too-many-spy-masters")
	ErrRoomClosed       = errors.New("room-closed")
	ErrRegistryClosed   = errors.New("registry-closed")
)

// Names of the error kinds sent to clients.
const (
	NotFoundError          = "NotFoundError"
	InvalidTransitionError = "InvalidTransitionError"
	ValidationError        = "ValidationError"
	StoreUnavailableError  = "StoreUnavailableError"
	RateLimitError         = "RateLimitError"
	UnknownError           = "UnknownError"
)

type WireError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// classify turns an internal error into what the client is allowed to see.
// Store failures never leak their cause.
func classify(err error) WireError {
	switch {
	case errors.Is(err, domain.ErrGameNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return WireError{Name: NotFoundError, Message: err.Error()}

	case errors.Is(err, codenames.ErrInvalidTransition),
		errors.Is(err, codenames.ErrCardRevealed),
		errors.Is(err, codenames.ErrCardOutOfRange):
		return WireError{Name: InvalidTransitionError, Message: err.Error()}

	case errors.Is(err, codenames.ErrUnknownTeam),
		errors.Is(err, codenames.ErrUnknownRole),
		errors.Is(err, codenames.ErrUnknownEndReason),
		errors.Is(err, codenames.ErrPlayerNotFound),
		errors.Is(err, ErrNotJoined),
		errors.Is(err, ErrAlreadyJoined),
		errors.Is(err, ErrUnknownEvent),
		errors.Is(err, ErrBadPayload),
		errors.Is(err, ErrWrongSession),
		errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrMessageTooLong),
		errors.Is(err, ErrDuplicatePlayer),
		errors.Is(err, ErrTooManySpyMaster):
		return WireError{Name: ValidationError, Message: err.Error()}

	case errors.Is(err, domain.UnexpectedDatabaseError),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, ErrRoomClosed),
		errors.Is(err, ErrRegistryClosed):
		return WireError{Name: StoreUnavailableError, Message: "session-unavailable"}

	case errors.Is(err, ErrRateLimited):
		return WireError{Name: RateLimitError, Message: err.Error()}

	default:
		return WireError{Name: UnknownError, Message: "unknown-error"}
	}
}

func errorFrame(err error, ack *int) []byte {
	return encodeFrame(EventError, []WireError{classify(err)}, ack)
}
