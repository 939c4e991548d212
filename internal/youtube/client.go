package youtube

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// Backoff constants for the resume loop's pauses between no-progress cycles.
const (
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "vodup/0.1"
)

// DefaultUploadBaseURL is the production negotiation endpoint prefix.
const DefaultUploadBaseURL = "https://www.googleapis.com/upload/youtube/v3"

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer per
// Go convention "accept interfaces, return structs"; auth.go provides the
// real implementation.
type TokenSource interface {
	Token() (string, error)
}

// Client talks to the YouTube upload API. It handles request construction,
// authentication, and the resumable transfer state machine. The HTTP client
// should have no overall timeout — a single data PUT may legitimately run
// for hours on large files.
//
// A Client may be reused across sessions, but two goroutines must not drive
// the same session URI concurrently: the protocol makes no server-side
// concurrency guarantees for one session.
type Client struct {
	uploadBaseURL string
	httpClient    *http.Client
	token         TokenSource
	logger        *slog.Logger

	// maxResumes caps consecutive resume cycles in which the server-confirmed
	// offset does not advance. A cycle that makes progress resets the count.
	maxResumes int

	// sleepFunc is called to wait between no-progress resume cycles.
	// Defaults to timeSleep. Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// defaultMaxResumes bounds the resume loop against a permanently
// misbehaving server (always 308, offset never advancing).
const defaultMaxResumes = 10

// NewClient creates an upload API client. uploadBaseURL is typically
// DefaultUploadBaseURL; tests point it at a mock server.
func NewClient(uploadBaseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		uploadBaseURL: uploadBaseURL,
		httpClient:    httpClient,
		token:         token,
		logger:        logger,
		maxResumes:    defaultMaxResumes,
		sleepFunc:     timeSleep,
	}
}

// SetMaxResumes overrides the no-progress resume cap. Values < 1 are ignored.
func (c *Client) SetMaxResumes(n int) {
	if n >= 1 {
		c.maxResumes = n
	}
}

// bearer returns the Authorization header value for the current token.
func (c *Client) bearer() (string, error) {
	tok, err := c.token.Token()
	if err != nil {
		return "", err
	}

	return "Bearer " + tok, nil
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	// Apply ±25% jitter.
	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
