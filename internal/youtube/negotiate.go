package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// CreateUploadSession registers a pending upload and returns the session
// descriptor. It issues a single metadata POST; the provider answers a 2xx
// with no body and the opaque session URI in the Location header, which is
// this operation's entire useful output.
//
// There is no retry at this layer — transient failures propagate and retry
// policy belongs to the caller.
func (c *Client) CreateUploadSession(
	ctx context.Context, meta VideoMetadata, size int64, contentType string,
) (*UploadSession, error) {
	c.logger.Info("negotiating upload session",
		slog.String("title", meta.Title),
		slog.Int64("size", size),
		slog.String("content_type", contentType),
	)

	body, err := json.Marshal(videoInsertRequest{
		Snippet: videoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryID:  meta.CategoryID,
		},
		Status: videoStatus{PrivacyStatus: meta.PrivacyStatus},
	})
	if err != nil {
		return nil, fmt.Errorf("youtube: marshaling video metadata: %w", err)
	}

	url := c.uploadBaseURL + "/videos?uploadType=resumable&part=snippet,status,contentDetails"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("youtube: creating negotiation request: %w", err)
	}

	auth, err := c.bearer()
	if err != nil {
		return nil, fmt.Errorf("youtube: obtaining token for negotiation: %w", err)
	}

	req.Header.Set("Authorization", auth)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	// The metadata body has its own length; the eventual upload's length and
	// type travel in the X-Upload-Content-* headers.
	req.ContentLength = int64(len(body))
	req.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", size))
	req.Header.Set("X-Upload-Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube: negotiation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(errBody),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	// Drain any body to reuse the connection.
	if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
		return nil, fmt.Errorf("youtube: draining negotiation response: %w", drainErr)
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, ErrNoSessionURI
	}

	c.logger.Debug("upload session negotiated", slog.Int("status", resp.StatusCode))

	return &UploadSession{
		URI:         loc,
		TotalSize:   size,
		ContentType: contentType,
	}, nil
}
