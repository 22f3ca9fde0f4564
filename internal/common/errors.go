// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Discovery error taxonomy. Per-item and per-source failures wrap one of these
// and end up in DiscoveryResult.Errors; only total failures are returned.
var (
	// ErrSourceUnavailable means one email account or bank token did not respond.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrExtraction means a single message or transaction could not be parsed.
	ErrExtraction = errors.New("extraction failed")
	// ErrValidation means a candidate was malformed and has been dropped.
	ErrValidation = errors.New("invalid candidate")
	// ErrCatastrophicFailure means no configured source could be reached.
	ErrCatastrophicFailure = errors.New("no source reachable")
	// ErrNoSources means the run was started without any account or token.
	ErrNoSources = errors.New("no email accounts or bank tokens configured")
	// ErrCanceled marks a run that stopped before every source settled.
	ErrCanceled = errors.New("discovery canceled")
)

// Provider errors.
var (
	ErrPlaidConnection = errors.New("plaid connection failed")
	ErrPlaidRateLimit  = errors.New("plaid rate limit exceeded")
	ErrGmailConnection = errors.New("gmail connection failed")
	ErrSimpleFIN       = errors.New("simplefin request failed")
	ErrInvalidAccount  = errors.New("invalid account")
	ErrInvalidToken    = errors.New("invalid access token")
)

// Storage and configuration errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// SourceError attaches the failing account or token to a taxonomy error.
type SourceError struct {
	Err    error
	Kind   error
	Source string
}

func (e *SourceError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v (%s): %v", e.Kind, e.Source, e.Err)
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause.
func (e *SourceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewSourceError wraps err with a taxonomy kind and the source it came from.
func NewSourceError(kind error, source string, err error) error {
	return &SourceError{Kind: kind, Source: source, Err: err}
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrPlaidRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
