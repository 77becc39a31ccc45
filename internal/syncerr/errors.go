package syncerr

import (
	"errors"
	"fmt"
	"strconv"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs)
	Metadata map[string]string // Additional context (status code, key, entity id)
	Cause    error             // Wrapped underlying error
}

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrNetworkUnavailable        = &Error{Code: CodeNetworkUnavailable}
	ErrRemoteRejected            = &Error{Code: CodeRemoteRejected}
	ErrSerializationFailure      = &Error{Code: CodeSerializationFailure}
	ErrStaleSnapshotDiscarded    = &Error{Code: CodeStaleSnapshotDiscarded}
	ErrConcurrentDeleteDiscarded = &Error{Code: CodeConcurrentDeleteDiscarded}
	ErrNotFound                  = &Error{Code: CodeNotFound}
	ErrWorkspaceClosed           = &Error{Code: CodeWorkspaceClosed}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.Label()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithMetadata creates a domain error carrying metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Rejected builds a RemoteRejected error for an HTTP status code.
func Rejected(path string, status int) *Error {
	return &Error{
		Code:    CodeRemoteRejected,
		Message: fmt.Sprintf("api %s returned status %d", path, status),
		Metadata: map[string]string{
			"path":   path,
			"status": strconv.Itoa(status),
		},
	}
}

// CodeOf extracts the code of the first domain error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeUnknown
}

// StatusOf returns the HTTP status recorded on a RemoteRejected error, or 0.
func StatusOf(err error) int {
	var domainErr *Error
	if !errors.As(err, &domainErr) || domainErr.Metadata == nil {
		return 0
	}
	status, convErr := strconv.Atoi(domainErr.Metadata["status"])
	if convErr != nil {
		return 0
	}
	return status
}

// Reason renders err as a short status-line reason.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	code := CodeOf(err)
	if code == CodeRemoteRejected {
		if status := StatusOf(err); status > 0 {
			return fmt.Sprintf("%s (%d)", code.Label(), status)
		}
	}
	if code != CodeUnknown {
		return code.Label()
	}
	return err.Error()
}
