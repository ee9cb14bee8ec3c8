package application

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized is returned when the admin passkey is missing or does not match.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrPersistence wraps failures reported by a repository or the blob store.
	ErrPersistence = errors.New("application: persistence failure")
	// ErrNotification wraps failures reported by the notification gateway.
	ErrNotification = errors.New("application: notification failure")
	// ErrUndeliverable marks a gateway failure that resending the same message cannot fix.
	ErrUndeliverable = errors.New("application: notification undeliverable")
	// ErrConflict is returned when a write collides with existing state.
	ErrConflict = errors.New("application: conflict")
	// ErrInvalidTransition is returned when the requested status change is not an allowed edge.
	ErrInvalidTransition = &conflictError{msg: "application: invalid status transition"}
	// ErrStaleRevision is returned when the caller's revision no longer matches the stored record.
	ErrStaleRevision = &conflictError{msg: "application: stale revision"}
)

// conflictError is a named conflict that also matches ErrConflict.
type conflictError struct {
	msg string
}

func (e *conflictError) Error() string { return e.msg }

func (e *conflictError) Unwrap() error { return ErrConflict }

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message for a field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}
