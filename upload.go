package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vodup/vodup/internal/media"
	"github.com/vodup/vodup/internal/twitch"
)

var flagSkipFetch bool

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <video-id>...",
		Short: "Fetch Twitch VODs and upload them to YouTube",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runUpload,
	}

	cmd.Flags().BoolVar(&flagSkipFetch, "skip-fetch", false, "treat arguments as existing files in the videos directory")

	return cmd
}

func runUpload(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	u, cleanup, err := newUploader(ctx, resolvedCfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Fetch sequentially first: remuxing is ffmpeg-bound and the device
	// flow prompt must not interleave with download output.
	assets, err := gatherAssets(ctx, args, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolvedCfg.UploadWorkers)

	for _, asset := range assets {
		g.Go(func() error {
			return u.uploadAsset(gctx, asset)
		})
	}

	return g.Wait()
}

// gatherAssets resolves command arguments to local assets, downloading
// Twitch VODs unless --skip-fetch names files already on disk.
func gatherAssets(ctx context.Context, args []string, logger *slog.Logger) ([]*media.Asset, error) {
	assets := make([]*media.Asset, 0, len(args))
	seen := make(map[string]struct{}, len(args))

	tw := twitch.NewClient(metaHTTPClient(), logger)

	for _, videoID := range args {
		if _, dup := seen[videoID]; dup {
			logger.Warn("duplicate video id ignored", slog.String("video_id", videoID))

			continue
		}

		seen[videoID] = struct{}{}

		var (
			asset *media.Asset
			err   error
		)

		if flagSkipFetch {
			asset, err = media.FromVideoID(videoID, resolvedCfg.VideosDir)
		} else {
			asset, err = tw.Fetch(ctx, videoID, resolvedCfg.VideosDir)
		}

		if err != nil {
			return nil, err
		}

		assets = append(assets, asset)
	}

	return assets, nil
}
