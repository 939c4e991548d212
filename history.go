package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vodup/vodup/internal/ledger"
)

var flagHistoryLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent upload history",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "maximum number of entries to show")

	return cmd
}

// historyEntry is the JSON shape for --json output.
type historyEntry struct {
	VideoID    string    `json:"video_id"`
	Title      string    `json:"title"`
	Size       int64     `json:"size"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	hist, err := ledger.Open(ctx, filepath.Join(resolvedCfg.DataDir, historyDBFile), logger)
	if err != nil {
		return err
	}
	defer hist.Close()

	records, err := hist.List(ctx, flagHistoryLimit)
	if err != nil {
		return err
	}

	if flagJSON {
		entries := make([]historyEntry, 0, len(records))
		for _, rec := range records {
			entries = append(entries, historyEntry{
				VideoID:    rec.VideoID,
				Title:      rec.Title,
				Size:       rec.Size,
				State:      rec.State,
				Error:      rec.Error,
				CreatedAt:  rec.CreatedAt,
				FinishedAt: rec.FinishedAt,
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(entries)
	}

	headers := []string{"VIDEO", "TITLE", "SIZE", "STATE", "STARTED", "FINISHED"}
	rows := make([][]string, 0, len(records))

	for _, rec := range records {
		rows = append(rows, []string{
			rec.VideoID,
			rec.Title,
			humanize.IBytes(uint64(rec.Size)),
			rec.State,
			formatTime(rec.CreatedAt),
			formatTime(rec.FinishedAt),
		})
	}

	printTable(os.Stdout, headers, rows)

	return nil
}
