// Package config loads process configuration: YAML file first, then
// environment overrides. Settings that users edit at runtime live in
// the settings package instead; this is operator-level wiring only.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	GameLog GameLogConfig `yaml:"game_log"`
	Remote  RemoteConfig  `yaml:"remote"`

	// DataDir overrides where snapshots are stored. Empty selects the
	// per-user XDG state directory.
	DataDir string `yaml:"data_dir" env:"TLI_DATA_DIR"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"TLI_SERVER_HOST"`
	Port int    `yaml:"port" env:"TLI_SERVER_PORT"`

	// AuthToken, when set, is required as a bearer token on every HTTP
	// and WebSocket request.
	AuthToken string `yaml:"auth_token" env:"TLI_SERVER_AUTH_TOKEN"`

	// AllowedOrigins restricts browser access. Empty means same-host
	// plus the localhost variants.
	AllowedOrigins []string `yaml:"allowed_origins" env:"TLI_SERVER_ALLOWED_ORIGINS" envSeparator:","`

	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
}

type GameLogConfig struct {
	// Path pins the game log file, skipping discovery and the
	// user-configured path. Used mostly for development against a
	// replayed log.
	Path string `yaml:"path" env:"TLI_LOG_PATH"`
}

type RemoteConfig struct {
	// SupabaseURL and AnonKey identify the backend project. When either
	// is empty, everything remote (prices, catalog, auth, sync) is
	// disabled and the tracker runs purely local.
	SupabaseURL string `yaml:"supabase_url" env:"TLI_SUPABASE_URL"`
	AnonKey     string `yaml:"anon_key" env:"TLI_SUPABASE_ANON_KEY"`

	Timeout              time.Duration `yaml:"timeout"`
	PriceRefreshInterval time.Duration `yaml:"price_refresh_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              8080,
			BroadcastThrottle: 100 * time.Millisecond,
			SnapshotInterval:  5 * time.Second,
		},
		Remote: RemoteConfig{
			Timeout:              10 * time.Second,
			PriceRefreshInterval: 5 * time.Minute,
		},
	}
}

// Load reads the YAML file at path and applies TLI_* environment
// overrides on top. A missing file is not an error: defaults plus
// environment apply. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// RemoteEnabled reports whether a backend is configured.
func (c *Config) RemoteEnabled() bool {
	return c.Remote.SupabaseURL != "" && c.Remote.AnonKey != ""
}

// GenerateToken returns a random hex string suitable for
// Server.AuthToken.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
