package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sethvargo/go-retry"

	"github.com/vodup/vodup/internal/config"
	"github.com/vodup/vodup/internal/ledger"
	"github.com/vodup/vodup/internal/media"
	"github.com/vodup/vodup/internal/secrets"
	"github.com/vodup/vodup/internal/sessionstore"
	"github.com/vodup/vodup/internal/tokenfile"
	"github.com/vodup/vodup/internal/youtube"
)

// negotiation retry policy: transient provider failures (5xx, 429) on the
// session-open POST are retried by this caller since the negotiator itself
// never retries.
const (
	negotiateRetryBase = 1 * time.Second
	negotiateRetries   = 3
)

// historyDBFile is the history database filename under the data dir.
const historyDBFile = "history.db"

// uploader bundles everything one upload run needs: the authenticated
// provider client, the persisted-session store, and the history ledger.
type uploader struct {
	cfg      *config.Config
	yt       *youtube.Client
	sessions *sessionstore.Store
	history  *ledger.Ledger
	logger   *slog.Logger
}

// newUploader acquires credentials and wires the upload collaborators.
// The returned cleanup closes the history database.
func newUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*uploader, func(), error) {
	sec, err := secrets.Load(cfg.SecretsFile)
	if err != nil {
		return nil, nil, err
	}

	store := tokenfile.NewStore(cfg.TokenFile)

	ts, err := youtube.Acquire(ctx, youtube.OAuthConfig(sec), store, displayDeviceAuth, logger)
	if err != nil {
		return nil, nil, err
	}

	yt := youtube.NewClient(youtube.DefaultUploadBaseURL, transferHTTPClient(), ts, logger)
	yt.SetMaxResumes(cfg.MaxResumes)

	sessions := sessionstore.New(cfg.DataDir, logger)

	if n, cleanErr := sessions.CleanStale(sessionstore.StaleAge); cleanErr != nil {
		logger.Warn("stale session cleanup failed", slog.String("error", cleanErr.Error()))
	} else if n > 0 {
		logger.Info("cleaned stale upload sessions", slog.Int("count", n))
	}

	history, err := ledger.Open(ctx, filepath.Join(cfg.DataDir, historyDBFile), logger)
	if err != nil {
		return nil, nil, err
	}

	u := &uploader{
		cfg:      cfg,
		yt:       yt,
		sessions: sessions,
		history:  history,
		logger:   logger,
	}

	cleanup := func() {
		if closeErr := history.Close(); closeErr != nil {
			logger.Warn("closing history database", slog.String("error", closeErr.Error()))
		}
	}

	return u, cleanup, nil
}

// uploadAsset drives one asset to a terminal state: reuse or negotiate a
// session, record the attempt, run the resumable transfer.
func (u *uploader) uploadAsset(ctx context.Context, asset *media.Asset) error {
	session, fromStore, err := u.sessionFor(ctx, asset)
	if err != nil {
		return err
	}

	recID, err := u.history.Begin(ctx, asset.Name, asset.Name, asset.Size, session.URI)
	if err != nil {
		// History is best-effort; an unwritable ledger must not block uploads.
		u.logger.Warn("recording upload start failed", slog.String("error", err.Error()))
	}

	f, err := asset.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	statusf("Uploading %s (%s)...\n", asset.Name, humanize.IBytes(uint64(asset.Size)))

	// A restored session enters through the status probe so bytes the
	// server already holds are not retransmitted.
	transfer := u.yt.Upload
	if fromStore {
		transfer = u.yt.Resume
	}

	if upErr := transfer(ctx, session, f); upErr != nil {
		u.recordOutcome(recID, upErr)
		u.discardDeadSession(asset, fromStore, upErr)

		return fmt.Errorf("uploading %s: %w", asset.Name, upErr)
	}

	u.recordOutcome(recID, nil)

	if delErr := u.sessions.Delete(asset.Path); delErr != nil {
		u.logger.Warn("deleting completed session record", slog.String("error", delErr.Error()))
	}

	statusf("Uploaded %s.\n", asset.Name)

	return nil
}

// sessionFor returns a persisted session for the asset when one is still
// valid, otherwise negotiates a fresh one and persists it. fromStore
// reports which path was taken.
func (u *uploader) sessionFor(ctx context.Context, asset *media.Asset) (session *youtube.UploadSession, fromStore bool, err error) {
	rec, loadErr := u.sessions.Load(asset.Path)
	if loadErr != nil && !errors.Is(loadErr, sessionstore.ErrCorrupt) {
		u.logger.Warn("loading persisted session failed", slog.String("error", loadErr.Error()))
	}

	// The session URI is bound to the file as negotiated; a size change
	// invalidates the record.
	if rec != nil && rec.FileSize == asset.Size {
		u.logger.Info("resuming persisted upload session",
			slog.String("asset", asset.Name),
			slog.Time("negotiated_at", rec.CreatedAt),
		)

		return &youtube.UploadSession{
			URI:         rec.SessionURI,
			TotalSize:   asset.Size,
			ContentType: u.cfg.ContentType,
		}, true, nil
	}

	if rec != nil {
		if delErr := u.sessions.Delete(asset.Path); delErr != nil {
			u.logger.Warn("deleting invalidated session record", slog.String("error", delErr.Error()))
		}
	}

	session, err = u.negotiate(ctx, asset)
	if err != nil {
		return nil, false, err
	}

	if saveErr := u.sessions.Save(asset.Path, &sessionstore.Record{
		SessionURI: session.URI,
		FileSize:   asset.Size,
	}); saveErr != nil {
		u.logger.Warn("persisting session failed — resume after crash will not work for this file",
			slog.String("asset", asset.Name),
			slog.String("error", saveErr.Error()),
		)
	}

	return session, false, nil
}

// negotiate opens an upload session, retrying transient provider failures
// with fibonacci backoff.
func (u *uploader) negotiate(ctx context.Context, asset *media.Asset) (*youtube.UploadSession, error) {
	meta := youtube.VideoMetadata{
		Title:         asset.Name,
		Description:   asset.Description,
		Tags:          u.cfg.Tags,
		CategoryID:    u.cfg.CategoryID,
		PrivacyStatus: u.cfg.Privacy,
	}

	if u.cfg.Description != "" {
		meta.Description = u.cfg.Description
	}

	backoff := retry.WithMaxRetries(negotiateRetries, retry.NewFibonacci(negotiateRetryBase))

	var session *youtube.UploadSession

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var negErr error

		session, negErr = u.yt.CreateUploadSession(ctx, meta, asset.Size, u.cfg.ContentType)
		if negErr == nil {
			return nil
		}

		if youtube.IsRetryable(negErr) {
			u.logger.Warn("session negotiation failed, will retry",
				slog.String("asset", asset.Name),
				slog.String("error", negErr.Error()),
			)

			return retry.RetryableError(negErr)
		}

		return negErr
	})
	if err != nil {
		return nil, fmt.Errorf("negotiating session for %s: %w", asset.Name, err)
	}

	return session, nil
}

// recordOutcome finishes the history row for this attempt.
func (u *uploader) recordOutcome(recID string, upErr error) {
	if recID == "" {
		return
	}

	// Ledger updates must not be lost to the canceled upload context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if upErr == nil {
		err = u.history.Complete(ctx, recID)
	} else {
		err = u.history.Fail(ctx, recID, upErr.Error())
	}

	if err != nil {
		u.logger.Warn("recording upload outcome failed", slog.String("error", err.Error()))
	}
}

// discardDeadSession removes a persisted session whose URI the server has
// terminally rejected, forcing fresh negotiation on the next attempt.
// Recoverable interruptions (cancellation, network) keep the record.
func (u *uploader) discardDeadSession(asset *media.Asset, fromStore bool, upErr error) {
	if !fromStore {
		return
	}

	var apiErr *youtube.APIError

	terminal := errors.As(upErr, &apiErr) ||
		errors.Is(upErr, youtube.ErrOffsetRegressed) ||
		errors.Is(upErr, youtube.ErrResumeExhausted) ||
		errors.Is(upErr, youtube.ErrBadRange)

	if !terminal {
		return
	}

	if err := u.sessions.Delete(asset.Path); err != nil {
		u.logger.Warn("deleting dead session record", slog.String("error", err.Error()))
	}
}
