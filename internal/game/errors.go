package game

import (
	"errors"
	"fmt"
)

// PermissionError: wrong role, wrong turn, wrong state. State is unchanged.
type PermissionError string

func (e PermissionError) Error() string { return string(e) }

// ValidationError: illegal or blocked move, stale quiz answer. The value is the
// reason token sent to the client.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// CollaboratorError wraps a rules, quiz or storage failure. State is unchanged.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *CollaboratorError) Unwrap() error { return e.Err }

const (
	ErrNotAPlayer     PermissionError = "spectators cannot play"
	ErrNotYourTurn    PermissionError = "not your turn"
	ErrNotActive      PermissionError = "game is not active"
	ErrNoPendingQuiz  PermissionError = "no quiz is pending"
	ErrNotQuizOwner   PermissionError = "quiz belongs to the other player"
	ErrNoDrawOffer    PermissionError = "no draw offer from the opponent"
	ErrDrawOfferOwn   PermissionError = "draw already offered"
	ErrAISeatReserved PermissionError = "the AI plays this seat"

	ErrIllegalMove ValidationError = "illegal_move"
	ErrBlockedMove ValidationError = "blocked_move"
	ErrStaleMove   ValidationError = "stale_move"
	ErrStaleQuiz   ValidationError = "stale_quiz"
)

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrUnknownSubject = errors.New("unknown quiz subject")
	ErrTooManySubject = errors.New("too many quiz subjects")
	ErrNoCreator      = errors.New("creator identity required")
	ErrCodeExhausted  = errors.New("could not allocate a game code")
)

func IsPermission(err error) bool {
	var pe PermissionError
	return errors.As(err, &pe)
}

func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

func IsCollaborator(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}

// Reason returns the client-facing token of a validation error, or the message otherwise.
func Reason(err error) string {
	var ve ValidationError
	if errors.As(err, &ve) {
		return string(ve)
	}
	var pe PermissionError
	if errors.As(err, &pe) {
		return string(pe)
	}
	return "internal error"
}
