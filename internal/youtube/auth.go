package youtube

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/vodup/vodup/internal/secrets"
	"github.com/vodup/vodup/internal/tokenfile"
)

// uploadScope is the only permission the uploader needs.
const uploadScope = "https://www.googleapis.com/auth/youtube.upload"

// DeviceAuth holds the device code response fields the CLI displays to the
// operator.
type DeviceAuth struct {
	UserCode        string
	VerificationURL string
}

// OAuthConfig builds the oauth2.Config for YouTube uploads from the
// operator's client secrets. Google's endpoint carries both the token URL
// and the device authorization URL.
func OAuthConfig(c *secrets.Client) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ID,
		ClientSecret: c.Secret,
		Scopes:       []string{uploadScope},
		Endpoint:     google.Endpoint,
	}
}

// Acquire obtains a TokenSource, preferring the silent refresh grant:
//
//  1. Load the persisted refresh token from store, if any.
//  2. If present, attempt the refresh grant. Any failure here (network,
//     rejected token, malformed body) falls through to the device flow
//     rather than failing the whole operation.
//  3. Run the device-authorization grant: request a device code, call
//     display with the verification URL and user code, then poll the token
//     endpoint at the server-specified interval until the operator
//     authorizes or the code expires. Polling blocks for seconds to
//     minutes and honors ctx cancellation between iterations.
//  4. Persist the new refresh token (overwriting any prior value).
//
// The access token is never persisted. The returned TokenSource refreshes
// silently for the lifetime of ctx.
func Acquire(
	ctx context.Context,
	cfg *oauth2.Config,
	store *tokenfile.Store,
	display func(DeviceAuth),
	logger *slog.Logger,
) (TokenSource, error) {
	refresh, err := store.Load()
	if err != nil {
		// Malformed token file is non-fatal: re-authorize interactively.
		logger.Warn("unusable token file, falling back to device flow",
			slog.String("path", store.Path()),
			slog.String("error", err.Error()),
		)
	}

	if refresh != "" {
		src, refreshErr := tryRefreshGrant(ctx, cfg, refresh, logger)
		if refreshErr == nil {
			return src, nil
		}

		logger.Warn("refresh grant failed, falling back to device flow",
			slog.String("error", refreshErr.Error()),
		)
	}

	return deviceFlow(ctx, cfg, store, display, logger)
}

// tryRefreshGrant exchanges the stored refresh token for a fresh access
// token. The original refresh token stays in effect — the provider does not
// necessarily return a new one on this grant.
func tryRefreshGrant(
	ctx context.Context, cfg *oauth2.Config, refresh string, logger *slog.Logger,
) (TokenSource, error) {
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh})

	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh grant: %w", err)
	}

	logger.Info("access token minted via refresh grant",
		slog.Time("expiry", tok.Expiry),
	)

	return &tokenBridge{src: oauth2.ReuseTokenSource(tok, src), logger: logger}, nil
}

// deviceFlow runs the interactive device-authorization grant and persists
// the resulting refresh token.
func deviceFlow(
	ctx context.Context,
	cfg *oauth2.Config,
	store *tokenfile.Store,
	display func(DeviceAuth),
	logger *slog.Logger,
) (TokenSource, error) {
	logger.Info("starting device authorization flow")

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: device code request: %w", ErrAuth, err)
	}

	logger.Info("device code received, waiting for operator authorization",
		slog.Time("expires", da.Expiry),
	)

	display(DeviceAuth{
		UserCode:        da.UserCode,
		VerificationURL: da.VerificationURI,
	})

	// Polls at the server-specified interval until authorization or expiry;
	// ctx cancellation aborts between polls.
	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("%w: device authorization: %w", ErrAuth, err)
	}

	logger.Info("operator authorized", slog.Time("expiry", tok.Expiry))

	if tok.RefreshToken == "" {
		logger.Warn("provider returned no refresh token; next run will require re-authorization")
	} else if saveErr := store.Save(tok.RefreshToken); saveErr != nil {
		return nil, fmt.Errorf("persisting refresh token: %w", saveErr)
	} else {
		logger.Info("refresh token persisted", slog.String("path", store.Path()))
	}

	return &tokenBridge{src: cfg.TokenSource(ctx, tok), logger: logger}, nil
}

// tokenBridge adapts oauth2.TokenSource to youtube.TokenSource.
// Logs token acquisition so silent refresh activity is visible.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("youtube: obtaining token: %w", err)
	}

	b.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}
