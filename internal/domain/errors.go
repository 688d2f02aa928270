package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrLessonNotFound indicates the lesson id does not exist.
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrUserNotFound indicates the user id does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrResultNotFound indicates no stored outcome for an attempt id.
	ErrResultNotFound = errors.New("submission result not found")
	// ErrDuplicateAttempt indicates an attempt id was already persisted.
	ErrDuplicateAttempt = errors.New("attempt already recorded")
)

// ValidationError is a caller mistake in the request shape: a malformed body,
// an empty answer list, or an item carrying neither option nor value. It is
// reported before any state mutation.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) ValidationError {
	return ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidProblemError names an answer's problem id that does not exist or
// does not belong to the submitted lesson. It aborts the whole submission.
type InvalidProblemError struct {
	ProblemID int64
}

func (e InvalidProblemError) Error() string {
	return fmt.Sprintf("problem %d not found in lesson", e.ProblemID)
}
