// Package config provides configuration management for clipforge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/clipforge/clipforge/internal/auth"
)

// Defaults applied when neither file nor environment provide a value.
const (
	DefaultListen         = ":8080"
	DefaultDataDir        = "./data"
	DefaultMaxUploadBytes = 2 << 30 // 2 GiB
)

// TokenEntry maps one opaque API token to a principal.
type TokenEntry struct {
	Token     string         `yaml:"token"`
	Principal auth.Principal `yaml:"principal"`
}

// Config is the resolved daemon configuration.
type Config struct {
	Listen         string       `yaml:"listen,omitempty"`
	DataDir        string       `yaml:"dataDir,omitempty"`
	LogLevel       string       `yaml:"logLevel,omitempty"`
	FFmpegBin      string       `yaml:"ffmpegBin,omitempty"`
	FFprobeBin     string       `yaml:"ffprobeBin,omitempty"`
	MaxUploadBytes int64        `yaml:"maxUploadBytes,omitempty"`
	Tokens         []TokenEntry `yaml:"tokens,omitempty"`
}

// Load reads the optional YAML file at path, applies environment
// overrides and defaults, and validates the result. An empty path skips
// the file entirely.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CLIPFORGE_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("CLIPFORGE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CLIPFORGE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CLIPFORGE_FFMPEG"); v != "" {
		c.FFmpegBin = v
	}
	if v := os.Getenv("CLIPFORGE_FFPROBE"); v != "" {
		c.FFprobeBin = v
	}
	if v := os.Getenv("CLIPFORGE_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("CLIPFORGE_API_TOKEN"); v != "" {
		// Single-operator shortcut: one token bound to an admin principal.
		c.Tokens = append(c.Tokens, TokenEntry{
			Token: v,
			Principal: auth.Principal{
				ID:             "operator",
				OrganizationID: "default",
				Role:           "admin",
			},
		})
	}
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.FFmpegBin == "" {
		c.FFmpegBin = "ffmpeg"
	}
	if c.FFprobeBin == "" {
		c.FFprobeBin = "ffprobe"
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("dataDir must not be empty")
	}
	for i, entry := range c.Tokens {
		if entry.Token == "" {
			return fmt.Errorf("tokens[%d]: empty token", i)
		}
		if entry.Principal.ID == "" {
			return fmt.Errorf("tokens[%d]: principal id must not be empty", i)
		}
	}
	return nil
}

// EnsureDirectories creates the data directory layout.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.UploadDir(), c.OptimizedDir(), c.ThumbnailDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// UploadDir is where raw uploads are stored.
func (c *Config) UploadDir() string { return filepath.Join(c.DataDir, "uploads") }

// OptimizedDir is where transcoded artifacts are stored.
func (c *Config) OptimizedDir() string { return filepath.Join(c.DataDir, "optimized") }

// ThumbnailDir is where poster frames are stored.
func (c *Config) ThumbnailDir() string { return filepath.Join(c.DataDir, "thumbnails") }

// DBPath is the sqlite database location.
func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "clipforge.db") }

// TokenTable converts the configured token entries into the verifier map.
func (c *Config) TokenTable() map[string]auth.Principal {
	out := make(map[string]auth.Principal, len(c.Tokens))
	for _, entry := range c.Tokens {
		out[entry.Token] = entry.Principal
	}
	return out
}
