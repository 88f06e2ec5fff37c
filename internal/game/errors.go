package game

import "errors"

// Error kinds. Every error produced by this module unwraps to exactly one of these.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrExternal           = errors.New("external service failure")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Error is a classified error with a human-readable reason.
type Error struct {
	kind   error
	reason string
}

func (e *Error) Error() string { return e.reason }

func (e *Error) Unwrap() error { return e.kind }

func newError(kind error, reason string) *Error {
	return &Error{kind: kind, reason: reason}
}

var (
	ErrGameNotFound     = newError(ErrNotFound, "game not found")
	ErrPlayerNotFound   = newError(ErrNotFound, "player not found in game")
	ErrDuplicateCode    = newError(ErrConflict, "game code already exists")
	ErrAlreadyStarted   = newError(ErrConflict, "game has already started")
	ErrGameFull         = newError(ErrConflict, "game is full")
	ErrNicknameTaken    = newError(ErrConflict, "nickname is already taken")
	ErrWrongPhase       = newError(ErrValidation, "action is not allowed in the current phase")
	ErrNotYourTurn      = newError(ErrValidation, "it is not your turn")
	ErrAlreadySubmitted = newError(ErrValidation, "you have already submitted for this round")
	ErrUnknownGameType  = newError(ErrValidation, "unknown game type")
)

// Invalid returns a validation error carrying reason.
func Invalid(reason string) error {
	return newError(ErrValidation, reason)
}

// External wraps a scoring oracle failure.
func External(reason string) error {
	return newError(ErrExternal, reason)
}

// Unavailable wraps a backing store failure.
func Unavailable(reason string) error {
	return newError(ErrStorageUnavailable, reason)
}
