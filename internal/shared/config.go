package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file,
// with credential fields overridable from the environment.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Match       MatchConfig       `toml:"match"`
	Search      SearchConfig      `toml:"search"`
	Backoff     BackoffConfig     `toml:"backoff"`
	Cache       CacheConfig       `toml:"cache"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	YouTube YouTubeConfig `toml:"youtube"`
}

// SpotifyConfig contains Spotify API credentials for the client-credentials flow.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id" env:"SPOTIFY_CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"SPOTIFY_CLIENT_SECRET"`
}

// YouTubeConfig contains YouTube OAuth client credentials and the token cache location.
type YouTubeConfig struct {
	ClientID     string `toml:"client_id" env:"YOUTUBE_CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"YOUTUBE_CLIENT_SECRET"`
	TokenPath    string `toml:"token_path" env:"YOUTUBE_TOKEN_PATH"`
}

// MatchConfig exposes the scoring policy as tunable configuration.
type MatchConfig struct {
	TitleWeight          float64 `toml:"title_weight"`
	DurationWeight       float64 `toml:"duration_weight"`
	Threshold            float64 `toml:"threshold"`
	DurationToleranceSec int     `toml:"duration_tolerance_sec"`
}

// DurationTolerance returns the tolerance window as a [time.Duration].
func (m MatchConfig) DurationTolerance() time.Duration {
	return time.Duration(m.DurationToleranceSec) * time.Second
}

// SearchConfig controls candidate search fan-out.
type SearchConfig struct {
	MaxResults int     `toml:"max_results"`
	Workers    int     `toml:"workers"`
	RatePerSec float64 `toml:"rate_per_sec"`
}

// BackoffConfig controls retry behavior for retryable service errors.
type BackoffConfig struct {
	MaxAttempts    int `toml:"max_attempts"`
	BaseDelayMS    int `toml:"base_delay_ms"`
	MaxDelayMS     int `toml:"max_delay_ms"`
	CallTimeoutSec int `toml:"call_timeout_sec"`
}

// Policy converts the config section into a [BackoffPolicy].
func (b BackoffConfig) Policy() BackoffPolicy {
	p := DefaultBackoff()
	if b.MaxAttempts > 0 {
		p.MaxAttempts = b.MaxAttempts
	}
	if b.BaseDelayMS > 0 {
		p.BaseDelay = time.Duration(b.BaseDelayMS) * time.Millisecond
	}
	if b.MaxDelayMS > 0 {
		p.MaxDelay = time.Duration(b.MaxDelayMS) * time.Millisecond
	}
	return p
}

// CallTimeout returns the per-network-call timeout.
func (b BackoffConfig) CallTimeout() time.Duration {
	if b.CallTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.CallTimeoutSec) * time.Second
}

// CacheConfig controls the optional sqlite resolution cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ServerConfig contains settings for the local OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the listen address for the callback server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedirectURL returns the OAuth redirect URL served by the callback server.
func (s ServerConfig) RedirectURL() string {
	return fmt.Sprintf("http://%s:%d/callback", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified
// path, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the
// embedded example config, with environment overrides applied.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	if err := config.ApplyEnv(); err != nil {
		panic(fmt.Sprintf("failed to apply environment overrides: %v", err))
	}
	return &config
}

// ApplyEnv overlays environment variables onto credential fields.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
