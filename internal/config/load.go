package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// knownKeys lists every accepted TOML key. Unknown keys are fatal — a typo
// that silently falls back to a default is far harder to debug than an
// up-front rejection.
var knownKeys = map[string]bool{
	"videos_dir": true, "secrets_file": true, "token_file": true,
	"data_dir": true, "log_level": true, "tags": true, "category_id": true,
	"privacy": true, "description": true, "content_type": true,
	"max_resumes": true, "upload_workers": true,
}

// validPrivacy enumerates the provider's accepted privacy statuses.
var validPrivacy = map[string]bool{
	"private": true, "unlisted": true, "public": true,
}

// validLogLevels for log_level.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Load reads and parses a TOML config file, rejects unknown keys,
// validates values, and returns the resulting Config layered on defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. Supports the zero-config
// first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve applies the override chain: defaults -> config file -> env -> CLI
// flags. CLI flags always win, matching user expectations for one-off
// overrides without editing the config file.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.SecretsFile != "" {
		cfg.SecretsFile = env.SecretsFile
	}

	if env.TokenFile != "" {
		cfg.TokenFile = env.TokenFile
	}

	if env.VideosDir != "" {
		cfg.VideosDir = env.VideosDir
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks value-level constraints.
func Validate(cfg *Config) error {
	var errs []error

	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: %q is not one of debug, info, warn, error", cfg.LogLevel))
	}

	if !validPrivacy[cfg.Privacy] {
		errs = append(errs, fmt.Errorf("privacy: %q is not one of private, unlisted, public", cfg.Privacy))
	}

	if cfg.CategoryID <= 0 {
		errs = append(errs, fmt.Errorf("category_id: must be positive, got %d", cfg.CategoryID))
	}

	if cfg.MaxResumes < 1 {
		errs = append(errs, fmt.Errorf("max_resumes: must be at least 1, got %d", cfg.MaxResumes))
	}

	if cfg.UploadWorkers < 1 {
		errs = append(errs, fmt.Errorf("upload_workers: must be at least 1, got %d", cfg.UploadWorkers))
	}

	return errors.Join(errs...)
}

// checkUnknownKeys rejects any TOML key not in knownKeys.
func checkUnknownKeys(md *toml.MetaData) error {
	var unknown []string

	for _, key := range md.Undecoded() {
		name := key.String()
		if !knownKeys[strings.SplitN(name, ".", 2)[0]] {
			unknown = append(unknown, name)
		}
	}

	if len(unknown) == 0 {
		return nil
	}

	sort.Strings(unknown)

	return fmt.Errorf("unknown config keys: %s", strings.Join(unknown, ", "))
}
