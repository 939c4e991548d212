package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vodup/vodup/internal/config"
	"github.com/vodup/vodup/internal/ledger"
	"github.com/vodup/vodup/internal/media"
	"github.com/vodup/vodup/internal/sessionstore"
	"github.com/vodup/vodup/internal/youtube"
)

type fakeToken string

func (f fakeToken) Token() (string, error) {
	return string(f), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// uploadBackend is a minimal provider double: answers the negotiation POST
// with a session URI pointing back at itself, answers status probes, and
// accepts data PUTs.
type uploadBackend struct {
	mu         sync.Mutex
	posts      int
	puts       int
	probes     int
	putStatus  int    // status for all PUTs, default 200 (probes get 308)
	probeRange string // Range header for probe responses, e.g. "bytes=0-3"
	lastRange  string // Content-Range of the most recent data PUT
	lastLen    int64  // Content-Length of the most recent data PUT
}

func (b *uploadBackend) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			b.mu.Lock()
			b.posts++
			b.mu.Unlock()

			w.Header().Set("Location", "http://"+r.Host+"/put/session-1")
			w.WriteHeader(http.StatusOK)

		case http.MethodPut:
			b.mu.Lock()
			status := b.putStatus
			probeRange := b.probeRange
			probe := r.ContentLength == 0 && strings.HasPrefix(r.Header.Get("Content-Range"), "bytes */")

			if probe {
				b.probes++
			} else {
				b.puts++
				b.lastRange = r.Header.Get("Content-Range")
				b.lastLen = r.ContentLength
			}
			b.mu.Unlock()

			if status != 0 {
				w.WriteHeader(status)

				return
			}

			if probe {
				if probeRange != "" {
					w.Header().Set("Range", probeRange)
				}

				w.WriteHeader(308)

				return
			}

			io.Copy(io.Discard, r.Body) //nolint:errcheck
			w.WriteHeader(http.StatusOK)

		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})
}

// newTestUploader wires an uploader against the backend with temp dirs.
func newTestUploader(t *testing.T, backend *uploadBackend) (*uploader, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)

	dataDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = dataDir
	cfg.Tags = []string{"test"}

	logger := testLogger()

	yt := youtube.NewClient(srv.URL, srv.Client(), fakeToken("tok"), logger)

	history, err := ledger.Open(context.Background(), filepath.Join(dataDir, historyDBFile), logger)
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	return &uploader{
		cfg:      cfg,
		yt:       yt,
		sessions: sessionstore.New(dataDir, logger),
		history:  history,
		logger:   logger,
	}, srv
}

func writeAsset(t *testing.T, name, content string) *media.Asset {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".mp4")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	a, err := media.FromFile(name, "", path)
	require.NoError(t, err)

	return a
}

func TestUploadAsset_NegotiatesAndUploads(t *testing.T) {
	backend := &uploadBackend{}
	u, _ := newTestUploader(t, backend)

	asset := writeAsset(t, "100", "video bytes")

	require.NoError(t, u.uploadAsset(context.Background(), asset))

	assert.Equal(t, 1, backend.posts)
	assert.Equal(t, 1, backend.puts)

	// The session record is removed on success.
	rec, err := u.sessions.Load(asset.Path)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// The history row is terminal.
	records, err := u.history.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StateSucceeded, records[0].State)
	assert.Equal(t, "100", records[0].VideoID)
	assert.Equal(t, asset.Size, records[0].Size)
}

func TestUploadAsset_ReusesPersistedSession(t *testing.T) {
	// The server already holds the first 4 bytes of the 9-byte file. The
	// restored session must probe first and retransmit only the rest.
	backend := &uploadBackend{probeRange: "bytes=0-3"}
	u, srv := newTestUploader(t, backend)

	asset := writeAsset(t, "200", "persisted")
	require.Equal(t, int64(9), asset.Size)

	require.NoError(t, u.sessions.Save(asset.Path, &sessionstore.Record{
		SessionURI: srv.URL + "/put/session-old",
		FileSize:   asset.Size,
	}))

	require.NoError(t, u.uploadAsset(context.Background(), asset))

	// No fresh negotiation; the stored URI was probed, then only the
	// unconfirmed suffix was sent.
	assert.Equal(t, 0, backend.posts)
	assert.Equal(t, 1, backend.probes)
	assert.Equal(t, 1, backend.puts)
	assert.Equal(t, "bytes 4-8/9", backend.lastRange)
	assert.Equal(t, int64(5), backend.lastLen)
}

func TestUploadAsset_SizeChangeInvalidatesSession(t *testing.T) {
	backend := &uploadBackend{}
	u, srv := newTestUploader(t, backend)

	asset := writeAsset(t, "300", "current content")

	require.NoError(t, u.sessions.Save(asset.Path, &sessionstore.Record{
		SessionURI: srv.URL + "/put/session-stale",
		FileSize:   asset.Size + 1, // negotiated against a different file
	}))

	require.NoError(t, u.uploadAsset(context.Background(), asset))

	// The stale record forced renegotiation.
	assert.Equal(t, 1, backend.posts)
}

func TestUploadAsset_TerminalErrorDropsSessionAndRecordsFailure(t *testing.T) {
	backend := &uploadBackend{putStatus: http.StatusBadRequest}
	u, srv := newTestUploader(t, backend)

	asset := writeAsset(t, "400", "rejected")

	require.NoError(t, u.sessions.Save(asset.Path, &sessionstore.Record{
		SessionURI: srv.URL + "/put/session-dead",
		FileSize:   asset.Size,
	}))

	err := u.uploadAsset(context.Background(), asset)
	require.Error(t, err)
	assert.ErrorIs(t, err, youtube.ErrBadRequest)

	// The server rejected the session terminally; the record must not be
	// reused on the next attempt.
	rec, loadErr := u.sessions.Load(asset.Path)
	require.NoError(t, loadErr)
	assert.Nil(t, rec)

	records, histErr := u.history.List(context.Background(), 10)
	require.NoError(t, histErr)
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StateFailed, records[0].State)
	assert.NotEmpty(t, records[0].Error)
}

func TestNegotiate_AppliesConfigMetadata(t *testing.T) {
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		gotBody, err = io.ReadAll(r.Body)
		require.NoError(t, err)

		w.Header().Set("Location", "http://"+r.Host+"/put/s")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Description = "configured description"
	cfg.Privacy = "unlisted"

	u := &uploader{
		cfg:    cfg,
		yt:     youtube.NewClient(srv.URL, srv.Client(), fakeToken("tok"), testLogger()),
		logger: testLogger(),
	}

	asset := writeAsset(t, "500", "x")

	session, err := u.negotiate(context.Background(), asset)
	require.NoError(t, err)
	assert.NotEmpty(t, session.URI)

	body := string(gotBody)
	assert.Contains(t, body, `"title":"500"`)
	assert.Contains(t, body, `"description":"configured description"`)
	assert.Contains(t, body, `"privacyStatus":"unlisted"`)
	assert.Contains(t, body, fmt.Sprintf(`"categoryId":%d`, cfg.CategoryID))
}
