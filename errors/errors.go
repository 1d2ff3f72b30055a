package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Error is a structured error carrying a code, category, and the
// workspace/session context the failure occurred in.
type Error struct {
	code        ErrorCode
	category    ErrorCategory
	message     string
	suggestion  string
	cause       error
	metadata    map[string]string
	retryable   *bool // nil means use default based on category
	timestamp   time.Time
	workspaceID string
	sessionID   string
}

// Ensure Error implements error and json.Marshaler/Unmarshaler.
var (
	_ error            = (*Error)(nil)
	_ json.Marshaler   = (*Error)(nil)
	_ json.Unmarshaler = (*Error)(nil)
)

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Retryable returns whether this error is retryable.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.category.IsRetryable()
}

// Suggestion returns the recovery suggestion, if any.
func (e *Error) Suggestion() string {
	return e.suggestion
}

// Metadata returns the error metadata.
func (e *Error) Metadata() map[string]string {
	if e.metadata == nil {
		return make(map[string]string)
	}
	// Return a copy to prevent modification
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// WorkspaceID returns the related workspace ID, if set.
func (e *Error) WorkspaceID() string {
	return e.workspaceID
}

// SessionID returns the related session ID, if set.
func (e *Error) SessionID() string {
	return e.sessionID
}

// errorJSON is the JSON representation of an Error.
type errorJSON struct {
	Code        ErrorCode         `json:"code"`
	Category    ErrorCategory     `json:"category"`
	Message     string            `json:"message"`
	Suggestion  string            `json:"suggestion,omitempty"`
	Cause       string            `json:"cause,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Retryable   bool              `json:"retryable"`
	Timestamp   string            `json:"timestamp,omitempty"`
	WorkspaceID string            `json:"workspace_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:        e.code,
		Category:    e.category,
		Message:     e.message,
		Suggestion:  e.suggestion,
		Metadata:    e.metadata,
		Retryable:   e.Retryable(),
		WorkspaceID: e.workspaceID,
		SessionID:   e.sessionID,
	}
	if e.cause != nil {
		j.Cause = e.cause.Error()
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Error) UnmarshalJSON(data []byte) error {
	var j errorJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	e.code = j.Code
	e.category = j.Category
	e.message = j.Message
	e.suggestion = j.Suggestion
	e.metadata = j.Metadata
	e.workspaceID = j.WorkspaceID
	e.sessionID = j.SessionID
	r := j.Retryable
	e.retryable = &r
	if j.Cause != "" {
		e.cause = fmt.Errorf("%s", j.Cause)
	}
	if j.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, j.Timestamp); err == nil {
			e.timestamp = t
		}
	}
	return nil
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCategory overrides the default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithRetryable explicitly sets whether the error is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithSuggestion attaches a recovery suggestion shown to users.
func WithSuggestion(s string) Option {
	return func(e *Error) {
		e.suggestion = s
	}
}

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithWorkspaceID sets the related workspace ID.
func WithWorkspaceID(id string) Option {
	return func(e *Error) {
		e.workspaceID = id
	}
}

// WithSessionID sets the related session ID.
func WithSessionID(id string) Option {
	return func(e *Error) {
		e.sessionID = id
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// NotFound creates a NOT_FOUND error. Lookups scoped to the wrong workspace
// produce the same error as lookups for truly absent resources.
func NotFound(message string, opts ...Option) *Error {
	return New(ErrCodeNotFound, message, opts...)
}

// SpawnFailed creates a SPAWN_FAILED error carrying the captured diagnostic.
func SpawnFailed(message, diagnostic string, opts ...Option) *Error {
	if diagnostic != "" {
		opts = append(opts, WithMetadata("diagnostic", diagnostic))
	}
	return New(ErrCodeSpawnFailed, message, opts...)
}
