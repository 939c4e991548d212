package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vodup/vodup/internal/secrets"
	"github.com/vodup/vodup/internal/tokenfile"
	"github.com/vodup/vodup/internal/youtube"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize YouTube uploads using the device code flow",
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved refresh token",
		RunE:  runLogout,
	}
}

// displayDeviceAuth shows the verification prompt. Always printed directly
// — the operator cannot complete the flow without seeing it, so it is not
// subject to --quiet or terminal detection.
func displayDeviceAuth(da youtube.DeviceAuth) {
	fmt.Fprintf(os.Stderr, "To authorize uploads, visit: %s\n", da.VerificationURL)
	fmt.Fprintf(os.Stderr, "Enter code: %s\n", da.UserCode)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sec, err := secrets.Load(resolvedCfg.SecretsFile)
	if err != nil {
		return err
	}

	store := tokenfile.NewStore(resolvedCfg.TokenFile)

	if _, err := youtube.Acquire(ctx, youtube.OAuthConfig(sec), store, displayDeviceAuth, logger); err != nil {
		return err
	}

	logger.Info("login successful", "token_file", store.Path())
	statusf("Login successful.\n")

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	store := tokenfile.NewStore(resolvedCfg.TokenFile)
	if err := store.Remove(); err != nil {
		return err
	}

	logger.Info("logout successful", "token_file", store.Path())
	statusf("Logged out.\n")

	return nil
}
