package discovery

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// SourceErrorKind classifies connector failures.
type SourceErrorKind string

// Connector failure kinds. Only network-kind errors are retried.
const (
	SourceErrNetwork SourceErrorKind = "network"
	SourceErrParse   SourceErrorKind = "parse"
	SourceErrBlocked SourceErrorKind = "blocked"
	SourceErrEmpty   SourceErrorKind = "empty"
)

// SourceError wraps a connector failure with its kind and source.
type SourceError struct {
	SourceID string
	Kind     SourceErrorKind
	Err      error
}

// NewSourceError constructs a SourceError.
func NewSourceError(sourceID string, kind SourceErrorKind, err error) *SourceError {
	return &SourceError{SourceID: sourceID, Kind: kind, Err: err}
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("source %s: %s error", e.SourceID, e.Kind)
	}
	return fmt.Sprintf("source %s: %s error: %v", e.SourceID, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *SourceError) Unwrap() error { return e.Err }

// ErrorKind extracts the SourceErrorKind from err, or "" if err is not a
// SourceError.
func ErrorKind(err error) SourceErrorKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// ComplianceViolation is returned by the compliance gate when a source may
// not be used. The source is skipped, never retried, and the run continues.
type ComplianceViolation struct {
	SourceID string
	Reason   string
}

func (e *ComplianceViolation) Error() string {
	return fmt.Sprintf("compliance violation for source %s: %s", e.SourceID, e.Reason)
}

// ConflictError rejects a start request when the owner already has an
// active run.
type ConflictError struct {
	UserID string
	RunID  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("user %s already has active run %s", e.UserID, e.RunID)
}

// NotFoundError rejects stop/status requests naming an unknown or foreign run.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no active run %s", e.RunID)
}

// SystemicFailure marks a run-fatal condition: the pool cannot proceed at
// all (persistence unavailable, no connectors loadable). Per-source errors
// are never systemic.
type SystemicFailure struct {
	Err error
}

func (e *SystemicFailure) Error() string {
	return fmt.Sprintf("systemic failure: %v", e.Err)
}

func (e *SystemicFailure) Unwrap() error { return e.Err }

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a NotFoundError or the store sentinel.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, ErrNotFound)
}
