package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already an *Error, its code, category, and context are preserved.
// Context cancellation and deadline errors map to CANCELED and TIMEOUT.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var werr *Error
	if errors.As(err, &werr) {
		wrapped := &Error{
			code:        werr.code,
			category:    werr.category,
			message:     message,
			suggestion:  werr.suggestion,
			cause:       err,
			metadata:    werr.Metadata(),
			retryable:   werr.retryable,
			workspaceID: werr.workspaceID,
			sessionID:   werr.sessionID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.code == code
	}
	return false
}

// CodeOf returns the error code of err, or ErrCodeInternal for plain errors.
func CodeOf(err error) ErrorCode {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.code
	}
	return ErrCodeInternal
}
