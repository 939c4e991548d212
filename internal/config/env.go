package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "VODUP_CONFIG"
	EnvSecrets   = "VODUP_SECRETS"
	EnvToken     = "VODUP_TOKEN"
	EnvVideosDir = "VODUP_VIDEOS_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // VODUP_CONFIG: override config file path
	SecretsFile string // VODUP_SECRETS: override client secrets path
	TokenFile   string // VODUP_TOKEN: override token cache path
	VideosDir   string // VODUP_VIDEOS_DIR: override videos directory
}

// CLIOverrides holds values from command-line flags. Flags beat both the
// config file and the environment.
type CLIOverrides struct {
	ConfigPath string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		SecretsFile: os.Getenv(EnvSecrets),
		TokenFile:   os.Getenv(EnvToken),
		VideosDir:   os.Getenv(EnvVideosDir),
	}
}
