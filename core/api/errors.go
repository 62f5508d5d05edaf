package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error kinds. Every error returned by Client matches exactly one of the
// first five with errors.Is.
var (
	ErrTransport      = errors.New("transport error")
	ErrAuthentication = errors.New("invalid credentials")
	ErrAuthorization  = errors.New("unauthorized")
	ErrUpload         = errors.New("upload failed")
	ErrStream         = errors.New("stream failed")

	// ErrNoPlayableURL is wrapped in a TransportError when OpenStream is
	// given a record without a url.
	ErrNoPlayableURL = errors.New("media has no playable url")

	errMissingToken = errors.New("login response carries no token")
)

// TransportError means the request could not be completed: the service was
// unreachable, the call timed out or was cancelled, or the response could
// not be parsed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Timeout reports whether the failure was a deadline.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// AuthenticationError means the service refused to establish an identity.
// Message is the service's reason when it gave one.
type AuthenticationError struct {
	Message    string
	StatusCode int
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return ErrAuthentication.Error()
	}
	return e.Message
}

func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

// AuthorizationError is any non-success status on an authenticated call.
// Unauthorized, forbidden and not found all land here; StatusCode lets
// callers tell them apart.
type AuthorizationError struct {
	Message    string
	StatusCode int
}

func (e *AuthorizationError) Error() string {
	if e.Message == "" {
		return ErrAuthorization.Error()
	}
	return e.Message
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrAuthorization }

// NotFound reports a 404 from the service.
func (e *AuthorizationError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// Forbidden reports a 403 from the service.
func (e *AuthorizationError) Forbidden() bool { return e.StatusCode == http.StatusForbidden }

// UploadError is a non-success status on upload. Validation failures, size
// limits and server faults are not distinguished.
type UploadError struct {
	Message    string
	StatusCode int
}

func (e *UploadError) Error() string {
	if e.Message == "" {
		return ErrUpload.Error()
	}
	return e.Message
}

func (e *UploadError) Is(target error) bool { return target == ErrUpload }

// StreamError is a non-success status from a media url that says nothing
// about the session: any status from a foreign host, or anything but
// 401/403/404 from the service itself.
type StreamError struct {
	StatusCode int
	Size       int64 // total size from a 416 Content-Range, -1 when unknown
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: status %d", ErrStream, e.StatusCode)
}

func (e *StreamError) Is(target error) bool { return target == ErrStream }

// RangeNotSatisfiable reports a 416, typically a resume offset at or past
// the end of the file.
func (e *StreamError) RangeNotSatisfiable() bool {
	return e.StatusCode == http.StatusRequestedRangeNotSatisfiable
}

// IsSessionError reports failures that call for a new login.
func IsSessionError(err error) bool {
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrAuthorization)
}

// SessionRejected reports failures caused by the session itself:
// authentication errors, authorization errors other than not found, and
// uploads refused with 401 or 403.
func SessionRejected(err error) bool {
	if errors.Is(err, ErrAuthentication) {
		return true
	}
	var authzErr *AuthorizationError
	if errors.As(err, &authzErr) {
		return !authzErr.NotFound()
	}
	var upErr *UploadError
	return errors.As(err, &upErr) &&
		(upErr.StatusCode == http.StatusUnauthorized || upErr.StatusCode == http.StatusForbidden)
}

// IsRetryable reports failures where offering the user a retry makes sense.
// The client itself never retries.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTransport) || errors.Is(err, ErrUpload) {
		return true
	}
	var streamErr *StreamError
	return errors.As(err, &streamErr) && streamErr.StatusCode >= http.StatusInternalServerError
}
