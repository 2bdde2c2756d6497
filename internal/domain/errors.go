package domain

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures surfaced by core operations.
type ErrorCode string

const (
	// CodeValidation indicates bad or missing input. No state changed.
	CodeValidation ErrorCode = "VALIDATION"

	// CodeNotFound indicates an unknown match, host, guest or token.
	// Token paths present this as an "invalid or expired link".
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeTokenExpired indicates an action token was presented after its
	// expiry and had not been consumed.
	CodeTokenExpired ErrorCode = "TOKEN_EXPIRED"

	// CodeCapacityConflict indicates a reservation would exceed a host's
	// seats. Always raised before commit.
	CodeCapacityConflict ErrorCode = "CAPACITY_CONFLICT"

	// CodeStateTransition indicates an operation is not allowed from the
	// match's current status. Current carries that status.
	CodeStateTransition ErrorCode = "STATE_TRANSITION"
)

// Error is the single error type returned by the matching core.
//
// Presenting an already-consumed token is not an error: the
// workflow replays the recorded outcome instead.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Subject is the id of the match, host, guest or token involved.
	Subject string

	// Current is the match status at the time of a rejected transition.
	Current Status
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Current != "" {
		return fmt.Sprintf("%s: %s (subject=%s, status=%s)", e.Code, e.Message, e.Subject, e.Current)
	}
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s (subject=%s)", e.Code, e.Message, e.Subject)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validationf creates a validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not-found error for the given kind of record.
func NotFound(kind, id string) *Error {
	return &Error{Code: CodeNotFound, Message: kind + " not found", Subject: id}
}

// InvalidLink is the not-found error used on token paths. It carries no
// subject so the caller cannot learn whether the token ever existed.
func InvalidLink() *Error {
	return &Error{Code: CodeNotFound, Message: "invalid or expired link"}
}

// TokenExpired creates an expiry error.
func TokenExpired() *Error {
	return &Error{Code: CodeTokenExpired, Message: "this link has expired"}
}

// CapacityConflict creates a capacity error for a host.
func CapacityConflict(hostID string, need, remaining int) *Error {
	return &Error{
		Code:    CodeCapacityConflict,
		Message: fmt.Sprintf("host needs %d seat(s) but has %d remaining", need, remaining),
		Subject: hostID,
	}
}

// TransitionError rejects an operation on a match in the wrong state.
func TransitionError(matchID string, current Status, op string) *Error {
	return &Error{
		Code:    CodeStateTransition,
		Message: fmt.Sprintf("cannot %s a %s match", op, current),
		Subject: matchID,
		Current: current,
	}
}

// CodeOf returns the error code of err, or "" if err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return CodeOf(err) == CodeValidation }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsTokenExpired reports whether err is a token expiry error.
func IsTokenExpired(err error) bool { return CodeOf(err) == CodeTokenExpired }

// IsCapacityConflict reports whether err is a capacity error.
func IsCapacityConflict(err error) bool { return CodeOf(err) == CodeCapacityConflict }

// IsStateTransition reports whether err is an illegal transition.
func IsStateTransition(err error) bool { return CodeOf(err) == CodeStateTransition }
