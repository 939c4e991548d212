package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// putOutcome classifies one data PUT.
type putOutcome int

const (
	putDone        putOutcome = iota // 200/201 — terminal success
	putInterrupted                   // 308 or transport-level failure — probe and resume
)

// Upload drives a negotiated session to a terminal state: the initial
// full-range PUT, then zero or more interrupted→resume cycles until the
// server answers 200/201 or a non-recoverable condition is hit.
//
// src must support random-access seeking; every resume cycle re-seeks it to
// the server-confirmed offset rather than trusting the current position.
// The confirmed offset is monotonically non-decreasing across the session;
// a regression is reported as ErrOffsetRegressed. Cycles in which the
// offset does not advance are counted against the client's resume cap
// (SetMaxResumes) with backoff between them, so a permanently misbehaving
// server cannot spin the loop forever.
//
// The bearer token is fetched per request from the TokenSource, but the
// baseline assumes a token obtained at session start outlives the transfer;
// multi-hour uploads exceeding the token validity window are a known risk.
func (c *Client) Upload(ctx context.Context, session *UploadSession, src io.ReadSeeker) error {
	c.logger.Info("starting resumable upload",
		slog.Int64("total", session.TotalSize),
		slog.String("content_type", session.ContentType),
	)

	outcome, err := c.putFrom(ctx, session, src, 0, true)
	if err != nil {
		return err
	}

	if outcome == putDone {
		c.logger.Info("upload complete", slog.Int64("total", session.TotalSize))
		return nil
	}

	return c.resumeLoop(ctx, session, src)
}

// Resume continues a previously negotiated session without retransmitting
// from byte zero: it asks the server how much it durably holds via the
// status probe and sends only the remainder. Use this when the session URI
// was persisted across a process restart; bytes already confirmed are
// never re-sent.
func (c *Client) Resume(ctx context.Context, session *UploadSession, src io.ReadSeeker) error {
	c.logger.Info("resuming persisted upload session",
		slog.Int64("total", session.TotalSize),
		slog.String("content_type", session.ContentType),
	)

	return c.resumeLoop(ctx, session, src)
}

// resumeLoop drives probe→resume cycles until the session reaches a
// terminal state. Entered after an interrupted fresh PUT, or directly by
// Resume for sessions restored from disk.
func (c *Client) resumeLoop(ctx context.Context, session *UploadSession, src io.ReadSeeker) error {
	confirmed := int64(-1) // last server-confirmed resume offset
	stalled := 0           // consecutive cycles without offset progress

	for {
		offset, complete, probeErr := c.probe(ctx, session)
		if probeErr != nil {
			var apiErr *APIError
			if errors.As(probeErr, &apiErr) || errors.Is(probeErr, ErrBadRange) {
				return probeErr
			}

			if ctx.Err() != nil {
				return fmt.Errorf("youtube: upload canceled: %w", ctx.Err())
			}

			// Transport-level probe failure — counts as a stalled cycle.
			c.logger.Warn("status probe failed", slog.String("error", probeErr.Error()))

			offset = max(confirmed, 0)
		}

		if complete {
			c.logger.Info("upload complete", slog.Int64("total", session.TotalSize))
			return nil
		}

		if confirmed >= 0 && offset < confirmed {
			return fmt.Errorf("%w: %d after %d", ErrOffsetRegressed, offset, confirmed)
		}

		if offset >= session.TotalSize {
			return fmt.Errorf("youtube: server confirmed %d of %d bytes without completing", offset, session.TotalSize)
		}

		progressed := offset > confirmed
		confirmed = offset

		if progressed {
			stalled = 0
		} else {
			stalled++
			if stalled >= c.maxResumes {
				return fmt.Errorf("%w: offset stuck at %d for %d cycles", ErrResumeExhausted, offset, stalled)
			}

			backoff := c.calcBackoff(stalled - 1)
			c.logger.Warn("no upload progress, backing off",
				slog.Int64("offset", offset),
				slog.Int("stalled_cycles", stalled),
				slog.Duration("backoff", backoff),
			)

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return fmt.Errorf("youtube: upload canceled: %w", sleepErr)
			}
		}

		c.logger.Info("resuming upload",
			slog.Int64("offset", offset),
			slog.Int64("remaining", session.TotalSize-offset),
		)

		outcome, err := c.putFrom(ctx, session, src, offset, false)
		if err != nil {
			return err
		}

		if outcome == putDone {
			c.logger.Info("upload complete", slog.Int64("total", session.TotalSize))
			return nil
		}
	}
}

// putFrom issues one data PUT carrying bytes [offset, TotalSize). The first
// attempt (fresh=true) declares no Content-Range; resume attempts declare
// the inclusive byte range being retransmitted. A transport-level failure
// mid-stream is recoverable — the caller must re-probe, since no response
// with a confirmed offset was received.
func (c *Client) putFrom(
	ctx context.Context, session *UploadSession, src io.ReadSeeker, offset int64, fresh bool,
) (putOutcome, error) {
	if _, err := src.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("youtube: seeking to %d: %w", offset, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.URI, src)
	if err != nil {
		return 0, fmt.Errorf("youtube: creating upload request: %w", err)
	}

	auth, err := c.bearer()
	if err != nil {
		return 0, fmt.Errorf("youtube: obtaining token for upload: %w", err)
	}

	req.Header.Set("Authorization", auth)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", session.ContentType)
	req.ContentLength = session.TotalSize - offset

	if !fresh {
		req.Header.Set("Content-Range", resumeContentRange(offset, session.TotalSize))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("youtube: upload canceled: %w", ctx.Err())
		}

		// Connection reset or timeout mid-stream. The server may have kept
		// a contiguous prefix; the confirmed offset comes from the probe.
		c.logger.Warn("data PUT interrupted",
			slog.Int64("offset", offset),
			slog.String("error", err.Error()),
		)

		return putInterrupted, nil
	}
	defer resp.Body.Close()

	return c.interpretPut(resp)
}

// interpretPut maps a data PUT response to an outcome. 200/201 is terminal
// success (body logged, not parsed), 308 means the server holds a partial
// prefix, anything else is a terminal protocol failure.
func (c *Client) interpretPut(resp *http.Response) (putOutcome, error) {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		body, readErr := io.ReadAll(resp.Body)
		if readErr == nil && len(body) > 0 {
			c.logger.Debug("upload response body", slog.String("body", string(body)))
		}

		return putDone, nil

	case resumeIncomplete:
		if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
			return 0, fmt.Errorf("youtube: draining 308 response: %w", drainErr)
		}

		return putInterrupted, nil

	default:
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message

		return 0, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

// resumeIncomplete is the provider's "Resume Incomplete" convention. It
// reuses the 308 status code but is not a Permanent Redirect.
const resumeIncomplete = 308

// probe issues the zero-length status PUT and returns the next resume
// offset. A 308 with "Range: bytes=0-{n}" yields n+1; a 308 without a Range
// header means the server has durably received nothing (offset 0). A
// 200/201 means the upload already completed.
func (c *Client) probe(ctx context.Context, session *UploadSession) (offset int64, complete bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.URI, http.NoBody)
	if err != nil {
		return 0, false, fmt.Errorf("youtube: creating probe request: %w", err)
	}

	auth, err := c.bearer()
	if err != nil {
		return 0, false, fmt.Errorf("youtube: obtaining token for probe: %w", err)
	}

	req.Header.Set("Authorization", auth)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", session.TotalSize))
	req.ContentLength = 0

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("youtube: probe request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
			return 0, false, fmt.Errorf("youtube: draining probe response: %w", drainErr)
		}

		return 0, true, nil

	case resumeIncomplete:
		if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
			return 0, false, fmt.Errorf("youtube: draining probe response: %w", drainErr)
		}

		rangeHdr := resp.Header.Get("Range")
		if rangeHdr == "" {
			return 0, false, nil
		}

		last, parseErr := parseRangeEnd(rangeHdr)
		if parseErr != nil {
			return 0, false, parseErr
		}

		return last + 1, false, nil

	default:
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message

		return 0, false, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

// resumeContentRange formats the Content-Range header for a resume PUT
// carrying bytes [start, total). HTTP range offsets are inclusive on both
// ends, hence total-1.
func resumeContentRange(start, total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, total-1, total)
}

// parseRangeEnd extracts the last received byte offset from a probe
// response Range header of the form "bytes=0-{n}".
func parseRangeEnd(header string) (int64, error) {
	rest, ok := strings.CutPrefix(header, "bytes=0-")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadRange, header)
	}

	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadRange, header)
	}

	return n, nil
}
