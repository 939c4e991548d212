// Package sessionstore persists negotiated upload session URIs so an
// interrupted process can resume a transfer instead of re-negotiating and
// re-sending from byte zero. Session files are JSON, keyed by a hash of
// the asset path, in a dedicated directory under the data dir.
package sessionstore

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrCorrupt is returned when a session file cannot be parsed as JSON.
// The corrupt file is deleted automatically.
var ErrCorrupt = errors.New("sessionstore: corrupt session file")

// subdir within the data dir for session files.
const subdir = "upload-sessions"

// filePerms restricts session files to owner-only because session URIs are
// bearer-like: anyone holding one can write into the upload.
const filePerms = 0o600

// dirPerms for the session directory itself.
const dirPerms = 0o700

// StaleAge is the TTL for session files. Provider sessions last multiple
// days; anything older is certainly dead.
const StaleAge = 7 * 24 * time.Hour

// Record is the on-disk JSON format for a persisted upload session.
// FileSize guards reuse: a session URI is bound 1:1 to the file as it
// existed at negotiation, so a size change invalidates the record.
type Record struct {
	AssetPath  string    `json:"asset_path"`
	SessionURI string    `json:"session_uri"`
	FileSize   int64     `json:"file_size"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store manages file-based session persistence. Safe for concurrent use by
// uploads of distinct assets (distinct keys, atomic rename).
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a Store rooted at dataDir/upload-sessions.
func New(dataDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		dir:    filepath.Join(dataDir, subdir),
		logger: logger,
	}
}

// Load reads the session record for an asset path.
// Returns nil, nil if no session file exists.
func (s *Store) Load(assetPath string) (*Record, error) {
	path := s.filePath(assetPath)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("sessionstore: reading session file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// Corrupt file — delete and treat as absent.
		s.logger.Warn("corrupt session file, deleting",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn("failed to remove corrupt session file",
				slog.String("path", path),
				slog.String("error", rmErr.Error()),
			)
		}

		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return &rec, nil
}

// Save persists a session record atomically. Creates the session directory
// if needed.
func (s *Store) Save(assetPath string, rec *Record) error {
	if err := os.MkdirAll(s.dir, dirPerms); err != nil {
		return fmt.Errorf("sessionstore: creating session dir: %w", err)
	}

	rec.AssetPath = assetPath

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sessionstore: marshaling session record: %w", err)
	}

	path := s.filePath(assetPath)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, filePerms); err != nil {
		return fmt.Errorf("sessionstore: writing session temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // best-effort cleanup
		return fmt.Errorf("sessionstore: renaming session temp file: %w", err)
	}

	return nil
}

// Delete removes the session file for an asset path.
// No error if the file doesn't exist.
func (s *Store) Delete(assetPath string) error {
	path := s.filePath(assetPath)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sessionstore: deleting session file: %w", err)
	}

	return nil
}

// CleanStale removes session files older than maxAge. Returns the number
// of files deleted.
func (s *Store) CleanStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("sessionstore: reading session dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.dir, e.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("failed to clean stale session",
					slog.String("file", e.Name()),
					slog.String("error", err.Error()),
				)

				continue
			}

			s.logger.Info("deleted stale upload session",
				slog.String("file", e.Name()),
				slog.Duration("age", time.Since(info.ModTime())),
			)

			deleted++
		}
	}

	return deleted, nil
}

// key produces a deterministic filename for an asset path.
func key(assetPath string) string {
	h := sha256.Sum256([]byte(assetPath))
	return fmt.Sprintf("%x.json", h)
}

// filePath returns the absolute path to the session file for the asset.
func (s *Store) filePath(assetPath string) string {
	return filepath.Join(s.dir, key(assetPath))
}
