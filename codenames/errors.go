package codenames

import "errors"

var (
	ErrUnknownTeam       = errors.New("unknown-team")
	ErrUnknownRole       = errors.New("unknown-role")
	ErrUnknownEndReason  = errors.New("unknown-end-reason")
	ErrPlayerNotFound    = errors.New("player-not-found")
	ErrInvalidTransition = errors.New("invalid-transition")
	ErrCardOutOfRange    = errors.New("card-out-of-range")
	ErrCardRevealed      = errors.New("card-already-revealed")
	ErrCorpusTooSmall    = errors.New("corpus-too-small")
)
