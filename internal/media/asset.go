// Package media defines the Asset value type shared between the source
// collaborator (twitch) and the upload client (youtube). This is a leaf
// package imported by both sides to avoid a twitch→youtube dependency.
package media

import (
	"fmt"
	"os"
	"path/filepath"
)

// Asset describes a local media file ready for upload. Immutable once
// constructed; the declared Size must match the on-disk byte length at
// session negotiation time, or server-reported resume offsets are invalid.
type Asset struct {
	Name        string
	Description string
	Path        string
	Size        int64
}

// FromFile builds an Asset by statting path. Returns an error if the file
// does not exist or is a directory.
func FromFile(name, description, path string) (*Asset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("media: stat %s: %w", path, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("media: %s is a directory, not a file", path)
	}

	return &Asset{
		Name:        name,
		Description: description,
		Path:        path,
		Size:        info.Size(),
	}, nil
}

// FromVideoID builds an Asset for an already-downloaded VOD in dir,
// using the same <id>.mp4 naming the fetcher writes.
func FromVideoID(videoID, dir string) (*Asset, error) {
	return FromFile(videoID, "", filepath.Join(dir, videoID+".mp4"))
}

// Open returns a fresh read handle positioned at byte 0. Every resume
// attempt must open (or explicitly re-seek) its own handle — a previous
// handle's position is not trusted to match the server-confirmed offset.
func (a *Asset) Open() (*os.File, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("media: opening %s: %w", a.Path, err)
	}

	return f, nil
}
