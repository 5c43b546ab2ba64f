// Package pipeline drives campaign processing: source acquisition, variant
// derivation, advisory analysis and the retry policy around them.
package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a processing failure. Retryable failures are transient
// (network, timeouts, service hiccups) and worth re-attempting; everything
// else is permanent. Unclassified errors are treated as NonRetryable so
// unknown failures never retry blindly.
type Kind int

const (
	KindNonRetryable Kind = iota
	KindRetryable
)

// Error tags an underlying failure with its retry classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "pipeline error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable wraps err as a transient failure.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindRetryable, Err: err}
}

// NonRetryable wraps err as a permanent failure.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindNonRetryable, Err: err}
}

// Retryablef formats a transient failure.
func Retryablef(format string, args ...any) error {
	return &Error{Kind: KindRetryable, Err: fmt.Errorf(format, args...)}
}

// NonRetryablef formats a permanent failure.
func NonRetryablef(format string, args ...any) error {
	return &Error{Kind: KindNonRetryable, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the classification from err, defaulting to NonRetryable.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindNonRetryable
}

// IsRetryable reports whether err is classified transient.
func IsRetryable(err error) bool { return err != nil && KindOf(err) == KindRetryable }
