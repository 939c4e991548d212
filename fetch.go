package main

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vodup/vodup/internal/twitch"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <video-id>...",
		Short: "Download Twitch VODs to the videos directory without uploading",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFetch,
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	tw := twitch.NewClient(metaHTTPClient(), logger)

	for _, videoID := range args {
		asset, err := tw.Fetch(ctx, videoID, resolvedCfg.VideosDir)
		if err != nil {
			return err
		}

		statusf("Fetched %s (%s) to %s\n", asset.Name, humanize.IBytes(uint64(asset.Size)), asset.Path)
	}

	return nil
}
