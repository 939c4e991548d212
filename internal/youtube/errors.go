// Package youtube provides a client for the YouTube Data API v3 resumable
// upload protocol: OAuth2 credential acquisition (device-authorization and
// refresh grants), upload session negotiation, and the chunked PUT transfer
// loop with interruption recovery.
package youtube

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for classification. Use errors.Is(err, youtube.ErrAuth)
// etc. to check.
var (
	// ErrAuth covers credential acquisition failures: expired device codes,
	// rejected grants, malformed provider responses.
	ErrAuth = errors.New("youtube: authorization failed")

	// ErrNotLoggedIn means no usable refresh token was found and the caller
	// did not permit the interactive flow.
	ErrNotLoggedIn = errors.New("youtube: not logged in")

	// ErrNoSessionURI means session negotiation succeeded at the HTTP level
	// but the response carried no Location header.
	ErrNoSessionURI = errors.New("youtube: negotiation response missing Location header")

	// ErrBadRange means a status probe returned a Range header that could
	// not be parsed.
	ErrBadRange = errors.New("youtube: malformed Range header in probe response")

	// ErrOffsetRegressed means the server reported a confirmed offset lower
	// than a previously confirmed one. The session is unusable.
	ErrOffsetRegressed = errors.New("youtube: server resume offset regressed")

	// ErrResumeExhausted means the resume loop hit its attempt cap without
	// the confirmed offset advancing.
	ErrResumeExhausted = errors.New("youtube: resume attempts exhausted without progress")
)

// Status-code sentinels, mirrored from the wire taxonomy.
var (
	ErrBadRequest   = errors.New("youtube: bad request")
	ErrUnauthorized = errors.New("youtube: unauthorized")
	ErrForbidden    = errors.New("youtube: forbidden")
	ErrNotFound     = errors.New("youtube: not found")
	ErrThrottled    = errors.New("youtube: rate limited")
	ErrServerError  = errors.New("youtube: server error")
)

// APIError wraps a sentinel error with the HTTP status code and response
// body for debugging.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// IsRetryable reports whether an error represents a transient condition a
// caller may reasonably retry: throttling, server errors. Protocol-level
// rejections (4xx other than 429) are not retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrServerError)
}
