package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/vodup/vodup/internal/secrets"
	"github.com/vodup/vodup/internal/tokenfile"
)

func TestOAuthConfig(t *testing.T) {
	cfg := OAuthConfig(&secrets.Client{ID: "client-id", Secret: "client-secret"})

	assert.Equal(t, "client-id", cfg.ClientID)
	assert.Equal(t, "client-secret", cfg.ClientSecret)
	assert.Equal(t, []string{uploadScope}, cfg.Scopes)
	assert.NotEmpty(t, cfg.Endpoint.TokenURL)
	assert.NotEmpty(t, cfg.Endpoint.DeviceAuthURL)
}

// authServer mocks the provider's device-authorization and token endpoints.
type authServer struct {
	mu           sync.Mutex
	deviceCalls  int
	refreshCalls int
	pollCalls    int
	rejectAll    bool // refuse the refresh grant with invalid_grant
}

func (a *authServer) start(t *testing.T) *oauth2.Config {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.deviceCalls++
		a.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"device_code": "dev-code-1",
			"user_code": "ABCD-EFGH",
			"verification_uri": "https://example.com/activate",
			"expires_in": 1800,
			"interval": 1
		}`)
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		w.Header().Set("Content-Type", "application/json")

		switch r.Form.Get("grant_type") {
		case "refresh_token":
			a.mu.Lock()
			a.refreshCalls++
			reject := a.rejectAll
			a.mu.Unlock()

			if reject {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant"}`)

				return
			}

			fmt.Fprint(w, `{"access_token":"refreshed-at","token_type":"Bearer","expires_in":3600}`)

		case "urn:ietf:params:oauth:grant-type:device_code":
			a.mu.Lock()
			a.pollCalls++
			a.mu.Unlock()

			assert.Equal(t, "dev-code-1", r.Form.Get("device_code"))
			fmt.Fprint(w, `{"access_token":"device-at","token_type":"Bearer","expires_in":3600,"refresh_token":"new-rt"}`)

		default:
			t.Errorf("unexpected grant_type %q", r.Form.Get("grant_type"))
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Scopes:       []string{uploadScope},
		Endpoint: oauth2.Endpoint{
			TokenURL:      srv.URL + "/token",
			DeviceAuthURL: srv.URL + "/device",
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}
}

func TestAcquire_RefreshGrant(t *testing.T) {
	srv := &authServer{}
	cfg := srv.start(t)

	store := tokenfile.NewStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, store.Save("stored-rt"))

	displayed := false

	ts, err := Acquire(context.Background(), cfg, store, func(DeviceAuth) {
		displayed = true
	}, testLogger())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "refreshed-at", tok)

	// A valid refresh token must not trigger the interactive flow.
	assert.False(t, displayed)
	assert.Equal(t, 0, srv.deviceCalls)
	assert.Equal(t, 1, srv.refreshCalls)
}

func TestAcquire_DeviceFlowWhenNoToken(t *testing.T) {
	srv := &authServer{}
	cfg := srv.start(t)

	store := tokenfile.NewStore(filepath.Join(t.TempDir(), "token.json"))

	var shown DeviceAuth

	ts, err := Acquire(context.Background(), cfg, store, func(da DeviceAuth) {
		shown = da
	}, testLogger())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "device-at", tok)

	assert.Equal(t, "ABCD-EFGH", shown.UserCode)
	assert.Equal(t, "https://example.com/activate", shown.VerificationURL)

	// The new refresh token must be persisted for the next run.
	rt, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "new-rt", rt)
}

func TestAcquire_RefreshFailureFallsBackToDeviceFlow(t *testing.T) {
	srv := &authServer{rejectAll: true}
	cfg := srv.start(t)

	store := tokenfile.NewStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, store.Save("revoked-rt"))

	displayed := false

	ts, err := Acquire(context.Background(), cfg, store, func(DeviceAuth) {
		displayed = true
	}, testLogger())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "device-at", tok)
	assert.True(t, displayed)
	assert.Equal(t, 1, srv.refreshCalls)
	assert.Equal(t, 1, srv.deviceCalls)

	// The revoked token was replaced on disk.
	rt, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "new-rt", rt)
}

func TestAcquire_MalformedTokenFileFallsBackToDeviceFlow(t *testing.T) {
	srv := &authServer{}
	cfg := srv.start(t)

	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	store := tokenfile.NewStore(path)

	ts, err := Acquire(context.Background(), cfg, store, func(DeviceAuth) {}, testLogger())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "device-at", tok)
	assert.Equal(t, 0, srv.refreshCalls)
}
