// Package config handles vodup configuration: a TOML file with defaults,
// environment overrides, and validation. All file-system paths (secrets,
// token cache, videos, data) are explicit configuration — nothing in the
// rest of the program hard-codes a location.
package config

import (
	"os"
	"path/filepath"
)

// Config is the TOML file shape with all tunables.
type Config struct {
	// VideosDir is where fetched VODs are materialized and watched.
	VideosDir string `toml:"videos_dir"`

	// SecretsFile is the operator-provided OAuth2 client secrets JSON.
	SecretsFile string `toml:"secrets_file"`

	// TokenFile is the refresh token cache, owned by vodup.
	TokenFile string `toml:"token_file"`

	// DataDir holds the upload session store and the history database.
	DataDir string `toml:"data_dir"`

	LogLevel string `toml:"log_level"`

	// Upload metadata defaults.
	Tags        []string `toml:"tags"`
	CategoryID  int      `toml:"category_id"`
	Privacy     string   `toml:"privacy"`
	Description string   `toml:"description"`
	ContentType string   `toml:"content_type"`

	// MaxResumes caps consecutive no-progress resume cycles per upload.
	MaxResumes int `toml:"max_resumes"`

	// UploadWorkers bounds concurrent uploads of distinct assets.
	UploadWorkers int `toml:"upload_workers"`
}

// Defaults. Category 20 is Gaming; uploads default to private so a half-
// reviewed VOD is never public by accident.
const (
	defaultLogLevel      = "info"
	defaultCategoryID    = 20
	defaultPrivacy       = "private"
	defaultContentType   = "video/mp4"
	defaultMaxResumes    = 10
	defaultUploadWorkers = 1
)

var defaultTags = []string{"gaming", "twitch", "live stream"}

// DefaultConfig returns a Config populated with every default value.
func DefaultConfig() *Config {
	configDir := userConfigDir()
	dataDir := userDataDir()

	return &Config{
		VideosDir:     filepath.Join(dataDir, "videos"),
		SecretsFile:   filepath.Join(configDir, "client_secrets.json"),
		TokenFile:     filepath.Join(configDir, "token.json"),
		DataDir:       dataDir,
		LogLevel:      defaultLogLevel,
		Tags:          append([]string(nil), defaultTags...),
		CategoryID:    defaultCategoryID,
		Privacy:       defaultPrivacy,
		ContentType:   defaultContentType,
		MaxResumes:    defaultMaxResumes,
		UploadWorkers: defaultUploadWorkers,
	}
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(userConfigDir(), "config.toml")
}

// userConfigDir resolves the per-user config directory, falling back to a
// relative directory if the platform dir cannot be determined.
func userConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".vodup"
	}

	return filepath.Join(base, "vodup")
}

// userDataDir resolves the per-user data directory.
func userDataDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ".vodup"
	}

	return filepath.Join(base, "vodup")
}
