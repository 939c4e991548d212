package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/vodup/vodup/internal/media"
)

// Settle detection: a file appearing in the videos directory is typically
// still being written (ffmpeg remux, rsync, manual copy). We upload only
// once its size has held steady for settleQuiet.
const (
	settlePoll  = 2 * time.Second
	settleQuiet = 10 * time.Second
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the videos directory and upload new files as they appear",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	// Cancellation (Ctrl-C, SIGTERM) arrives via the command context set
	// up in main.
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	u, cleanup, err := newUploader(ctx, resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(resolvedCfg.VideosDir); err != nil {
		return err
	}

	statusf("Watching %s for new videos. Press Ctrl-C to stop.\n", resolvedCfg.VideosDir)

	// Uploads run inline on the event loop, one at a time. Events arriving
	// while an upload runs sit in the watcher's channel buffer until the
	// loop comes back around.
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			if !isUploadable(event.Name) {
				continue
			}

			if err := watchUpload(ctx, u, event.Name, logger); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}

				// Keep watching; one bad file must not end the session.
				logger.Error("upload failed", slog.String("path", event.Name), slog.String("error", err.Error()))
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("watcher error", slog.String("error", werr.Error()))
		}
	}
}

// isUploadable filters watch events down to video files, skipping the
// in-progress temp files the atomic writers in this codebase produce.
func isUploadable(path string) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") {
		return false
	}

	return strings.EqualFold(filepath.Ext(base), ".mp4")
}

// watchUpload waits for path to settle and uploads it.
func watchUpload(ctx context.Context, u *uploader, path string, logger *slog.Logger) error {
	size, err := waitSettled(ctx, path)
	if err != nil {
		return err
	}

	logger.Info("new video settled",
		slog.String("path", path),
		slog.Int64("size", size),
	)

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	asset, err := media.FromFile(name, "", path)
	if err != nil {
		return err
	}

	return u.uploadAsset(ctx, asset)
}

// waitSettled polls path until its size has been stable for settleQuiet,
// returning the final size. Returns an error if the file disappears.
func waitSettled(ctx context.Context, path string) (int64, error) {
	var (
		lastSize  int64 = -1
		stableFor time.Duration
	)

	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}

		if info.Size() == lastSize {
			stableFor += settlePoll
			if stableFor >= settleQuiet {
				return lastSize, nil
			}

			continue
		}

		lastSize = info.Size()
		stableFor = 0
	}
}
