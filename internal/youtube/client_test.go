package youtube

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticToken is a TokenSource that always returns the same token.
type staticToken string

func (s staticToken) Token() (string, error) {
	return string(s), nil
}

// failingToken is a TokenSource that always errors.
type failingToken struct{}

func (failingToken) Token() (string, error) {
	return "", errors.New("token store unavailable")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient builds a client pointed at the given base URL with an
// instant sleepFunc so backoff tests don't wait.
func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	c := NewClient(baseURL, &http.Client{}, staticToken("test-token"), testLogger())
	c.sleepFunc = func(_ context.Context, _ time.Duration) error { return nil }

	return c
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(DefaultUploadBaseURL, nil, staticToken("tok"), nil)
	require.NotNil(t, c)
	assert.Equal(t, http.DefaultClient, c.httpClient)
	assert.NotNil(t, c.logger)
	assert.Equal(t, defaultMaxResumes, c.maxResumes)
}

func TestSetMaxResumes(t *testing.T) {
	c := newTestClient(t, DefaultUploadBaseURL)

	c.SetMaxResumes(3)
	assert.Equal(t, 3, c.maxResumes)

	// Values below 1 are ignored.
	c.SetMaxResumes(0)
	assert.Equal(t, 3, c.maxResumes)

	c.SetMaxResumes(-5)
	assert.Equal(t, 3, c.maxResumes)
}

func TestBearer(t *testing.T) {
	c := newTestClient(t, DefaultUploadBaseURL)

	auth, err := c.bearer()
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", auth)
}

func TestBearer_TokenError(t *testing.T) {
	c := NewClient(DefaultUploadBaseURL, &http.Client{}, failingToken{}, testLogger())

	_, err := c.bearer()
	assert.Error(t, err)
}

func TestCalcBackoff_GrowsAndStaysWithinJitterBounds(t *testing.T) {
	c := newTestClient(t, DefaultUploadBaseURL)

	for attempt := 0; attempt < 8; attempt++ {
		d := c.calcBackoff(attempt)

		expected := float64(baseBackoff)
		for i := 0; i < attempt; i++ {
			expected *= backoffFactor
		}

		if expected > float64(maxBackoff) {
			expected = float64(maxBackoff)
		}

		lo := time.Duration(expected * (1 - jitterFraction))
		hi := time.Duration(expected * (1 + jitterFraction))

		assert.GreaterOrEqual(t, d, lo, "attempt %d", attempt)
		assert.LessOrEqual(t, d, hi, "attempt %d", attempt)
	}
}

func TestCalcBackoff_CapsAtMax(t *testing.T) {
	c := newTestClient(t, DefaultUploadBaseURL)

	// Far beyond the cap, jitter is the only variation.
	d := c.calcBackoff(20)
	assert.LessOrEqual(t, d, time.Duration(float64(maxBackoff)*(1+jitterFraction)))
	assert.GreaterOrEqual(t, d, time.Duration(float64(maxBackoff)*(1-jitterFraction)))
}

func TestClassifyStatus(t *testing.T) {
	assert.ErrorIs(t, classifyStatus(400), ErrBadRequest)
	assert.ErrorIs(t, classifyStatus(401), ErrUnauthorized)
	assert.ErrorIs(t, classifyStatus(403), ErrForbidden)
	assert.ErrorIs(t, classifyStatus(404), ErrNotFound)
	assert.ErrorIs(t, classifyStatus(429), ErrThrottled)
	assert.ErrorIs(t, classifyStatus(500), ErrServerError)
	assert.ErrorIs(t, classifyStatus(503), ErrServerError)
	assert.NoError(t, classifyStatus(200))
	assert.NoError(t, classifyStatus(201))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&APIError{StatusCode: 500, Err: ErrServerError}))
	assert.True(t, IsRetryable(&APIError{StatusCode: 429, Err: ErrThrottled}))
	assert.False(t, IsRetryable(&APIError{StatusCode: 400, Err: ErrBadRequest}))
	assert.False(t, IsRetryable(&APIError{StatusCode: 403, Err: ErrForbidden}))
	assert.False(t, IsRetryable(ErrNoSessionURI))
	assert.False(t, IsRetryable(nil))
}

func TestAPIError_MessageAndUnwrap(t *testing.T) {
	err := &APIError{StatusCode: 403, Message: "quota exceeded", Err: ErrForbidden}

	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTimeSleep_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := timeSleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
