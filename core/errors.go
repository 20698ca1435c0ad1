// Error taxonomy.
// Per-record failures carry a Kind and a short reason; environmental
// failures are marked with ErrEnvironment and abort the batch.

package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a per-record failure.
type ErrorKind string

const (
	ClassificationError ErrorKind = "ClassificationError"
	NetworkError        ErrorKind = "NetworkError"
	InteractionError    ErrorKind = "InteractionError"
	ExtractionError     ErrorKind = "ExtractionError"
	OrganizationError   ErrorKind = "OrganizationError"
)

// Reasons used across stages.
const (
	ReasonMalformedURL       = "malformed-url"
	ReasonMissingLink        = "missing-link"
	ReasonHTMLResponse       = "html-response"
	ReasonBadStatus          = "bad-status"
	ReasonRequestFailed      = "request-failed"
	ReasonTimeout            = "timeout"
	ReasonControlNotFound    = "control-not-found"
	ReasonDownloadTimeout    = "download-timeout"
	ReasonTriggerFailed      = "trigger-failed"
	ReasonNavigationFailed   = "navigation-failed"
	ReasonCorruptArchive     = "corrupt-archive"
	ReasonUnsupportedArchive = "unsupported-archive"
	ReasonNoPDF              = "no-pdf"
	ReasonWriteFailed        = "write-failed"
	ReasonReadFailed         = "read-failed"
	ReasonInterrupted        = "interrupted"
	ReasonAborted            = "aborted"
)

// ErrEnvironment marks failures of the environment rather than of a record
// (browser engine unavailable, disk full, unwritable staging area).
var ErrEnvironment = errors.New("environmental failure")

// Error is a per-record pipeline failure.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

// NewError builds an Error. err may be nil.
func NewError(kind ErrorKind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Environmental wraps err so that errors.Is(err, ErrEnvironment) holds.
func Environmental(err error) error {
	if err == nil || errors.Is(err, ErrEnvironment) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEnvironment, err)
}

// KindOf returns the ErrorKind of err, or "" if err is not a pipeline Error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// ReasonOf returns the reason of err, or "" if err is not a pipeline Error.
func ReasonOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}
