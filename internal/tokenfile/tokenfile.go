// Package tokenfile persists the long-lived OAuth2 refresh token. Only the
// refresh token is ever written — access tokens are short-lived and minted
// fresh on every run, so storing them would be both useless and a wider
// secret surface. A missing or unreadable file is not an error condition;
// it simply means the interactive device flow must run.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// File is the on-disk format.
type File struct {
	RefreshToken string `json:"refresh_token"`
}

// Store reads and writes the refresh token at a fixed path. The path is
// explicit configuration — there is no implicit default location here.
type Store struct {
	path string
}

// NewStore creates a Store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted refresh token. A missing file returns ("", nil).
// A malformed file returns an error; callers treat that the same as absence
// and fall back to the interactive flow.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("tokenfile: reading %s: %w", s.path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return "", fmt.Errorf("tokenfile: decoding %s: %w", s.path, err)
	}

	if tf.RefreshToken == "" {
		return "", fmt.Errorf("tokenfile: %s has no refresh_token", s.path)
	}

	return tf.RefreshToken, nil
}

// Save writes the refresh token atomically (write-to-temp + rename) with
// 0600 permissions, overwriting any prior value. Never logs token values.
func (s *Store) Save(refreshToken string) error {
	if refreshToken == "" {
		return fmt.Errorf("tokenfile: refusing to save empty refresh token")
	}

	data, err := json.MarshalIndent(File{RefreshToken: refreshToken}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(s.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close
	// and rename cannot leave an empty file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the token file. Returns nil if the file does not exist.
func (s *Store) Remove() error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("tokenfile: removing %s: %w", s.path, err)
	}

	return nil
}
