// Package twitch materializes a Twitch VOD as a local MP4 file. It scrapes
// the public site for the web player's Client-ID, exchanges it for a signed
// VOD access token, builds the time-limited usher manifest URL, and shells
// out to ffmpeg to remux the HLS stream into a seekable local file.
//
// The upload core treats this package as an opaque collaborator: given an
// identifier, a readable seekable byte source of known total length exists
// at a known location afterwards.
package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/vodup/vodup/internal/media"
)

// CommandRunner executes an external command and returns its combined
// output. Injectable so tests never spawn real processes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// clientIDPattern extracts the web player's API key from the site HTML.
var clientIDPattern = regexp.MustCompile(`"Client-ID":"(.*?)"`)

// maxScrapeBytes bounds how much of the site HTML is read while looking
// for the Client-ID.
const maxScrapeBytes = 4 << 20

// defaultRemuxTimeout bounds one ffmpeg invocation. Remuxing is stream
// copy, not transcoding, but multi-hour VODs still take a while.
const defaultRemuxTimeout = 2 * time.Hour

// Client fetches VODs. Endpoint fields default to production and are
// overridden in tests.
type Client struct {
	HTTP      *http.Client
	SiteURL   string
	APIBase   string
	UsherBase string
	FFmpeg    string
	Run       CommandRunner
	Timeout   time.Duration

	logger *slog.Logger
}

// NewClient creates a Client with production endpoints.
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		HTTP:      httpClient,
		SiteURL:   "https://www.twitch.tv/",
		APIBase:   "https://api.twitch.tv",
		UsherBase: "https://usher.ttvnw.net",
		FFmpeg:    "ffmpeg",
		Run:       defaultCommandRunner,
		Timeout:   defaultRemuxTimeout,
		logger:    logger,
	}
}

// Fetch materializes the VOD with the given ID under destDir and returns
// its asset descriptor. An already-materialized file is reused without
// re-downloading; its size is re-stated from disk either way.
func (c *Client) Fetch(ctx context.Context, videoID, destDir string) (*media.Asset, error) {
	if videoID == "" {
		return nil, fmt.Errorf("twitch: video ID must not be empty")
	}

	path := filepath.Join(destDir, videoID+".mp4")

	if _, err := os.Stat(path); err == nil {
		c.logger.Info("VOD already materialized", slog.String("path", path))
		return c.asset(videoID, path)
	}

	clientID, err := c.scrapeClientID(ctx)
	if err != nil {
		return nil, err
	}

	tok, sig, err := c.vodAccessToken(ctx, clientID, videoID)
	if err != nil {
		return nil, err
	}

	manifestURL := c.manifestURL(videoID, tok, sig)

	if err := os.MkdirAll(destDir, 0o755); err != nil { //nolint:mnd // shared media dir
		return nil, fmt.Errorf("twitch: creating %s: %w", destDir, err)
	}

	if err := c.remux(ctx, manifestURL, path); err != nil {
		return nil, err
	}

	return c.asset(videoID, path)
}

// asset stats the materialized file and builds the descriptor.
func (c *Client) asset(videoID, path string) (*media.Asset, error) {
	a, err := media.FromFile(videoID, "Twitch VOD "+videoID, path)
	if err != nil {
		return nil, err
	}

	c.logger.Info("VOD ready",
		slog.String("path", a.Path),
		slog.Int64("size", a.Size),
	)

	return a, nil
}

// scrapeClientID pulls the web player's Client-ID out of the site HTML.
// Brittle by nature; a site change surfaces as a clear error here.
func (c *Client) scrapeClientID(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SiteURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("twitch: creating site request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("twitch: fetching site: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("twitch: site returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScrapeBytes))
	if err != nil {
		return "", fmt.Errorf("twitch: reading site: %w", err)
	}

	m := clientIDPattern.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("twitch: Client-ID not found in site HTML")
	}

	c.logger.Debug("scraped client ID")

	return string(m[1]), nil
}

// vodAccessToken exchanges the Client-ID for a signed, time-limited VOD
// access token and signature.
func (c *Client) vodAccessToken(ctx context.Context, clientID, videoID string) (token, sig string, err error) {
	u := fmt.Sprintf("%s/api/vods/%s/access_token?client_id=%s", c.APIBase, videoID, url.QueryEscape(clientID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return "", "", fmt.Errorf("twitch: creating access token request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("twitch: fetching VOD access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message
		return "", "", fmt.Errorf("twitch: access token endpoint returned HTTP %d: %s", resp.StatusCode, string(errBody))
	}

	var payload struct {
		Token string `json:"token"`
		Sig   string `json:"sig"`
	}
	if decErr := json.NewDecoder(resp.Body).Decode(&payload); decErr != nil {
		return "", "", fmt.Errorf("twitch: decoding access token response: %w", decErr)
	}

	if payload.Token == "" || payload.Sig == "" {
		return "", "", fmt.Errorf("twitch: access token response missing token or sig")
	}

	return payload.Token, payload.Sig, nil
}

// manifestURL builds the signed usher m3u8 URL for the VOD.
func (c *Client) manifestURL(videoID, token, sig string) string {
	q := url.Values{}
	q.Set("allow_source", "true")
	q.Set("token", token)
	q.Set("sig", sig)

	return fmt.Sprintf("%s/vod/%s.m3u8?%s", c.UsherBase, videoID, q.Encode())
}

// remux invokes ffmpeg to stream-copy the HLS manifest into a local MP4.
// aac_adtstoasc is required when copying AAC audio out of MPEG-TS segments.
func (c *Client) remux(ctx context.Context, manifestURL, destPath string) error {
	run := c.Run
	if run == nil {
		run = defaultCommandRunner
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultRemuxTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"-i", manifestURL,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-y",
		destPath,
	}

	c.logger.Info("remuxing VOD", slog.String("dest", destPath))

	out, err := run(execCtx, c.FFmpeg, args...)
	if err != nil {
		// A failed run can leave a truncated file behind; remove it so the
		// next attempt does not mistake it for a complete VOD.
		_ = os.Remove(destPath)

		return fmt.Errorf("twitch: ffmpeg remux failed: %w: %s", err, string(out))
	}

	return nil
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.CombinedOutput()
}
