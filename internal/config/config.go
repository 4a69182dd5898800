// Package config handles loading and managing chatlab configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the chatlab configuration.
type Config struct {
	Data      DataConfig      `toml:"data"`
	Import    ImportConfig    `toml:"import"`
	Analytics AnalyticsConfig `toml:"analytics"`
	Server    ServerConfig    `toml:"server"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// ImportConfig holds import pipeline configuration.
type ImportConfig struct {
	BatchSize int    `toml:"batch_size"` // messages per write transaction
	Timezone  string `toml:"timezone"`   // IANA zone for wall-clock exports; "" = host local
}

// AnalyticsConfig holds default parameters for the analysis queries.
type AnalyticsConfig struct {
	StreakMinRun    int `toml:"streak_min_run"`    // minimum run length for a monologue streak
	StreakIdleGap   int `toml:"streak_idle_gap"`   // seconds between consecutive streak messages
	ChainIdleGap    int `toml:"chain_idle_gap"`    // seconds between consecutive chain messages
	SessionIdleGap  int `toml:"session_idle_gap"`  // seconds of silence that starts a new session
	CatchphraseTopK int `toml:"catchphrase_top_k"` // catchphrases returned per member
}

// ServerConfig holds boundary API server configuration.
type ServerConfig struct {
	APIPort int    `toml:"api_port"` // HTTP server port (default: 8636)
	APIKey  string `toml:"api_key"`  // API authentication key
}

// DefaultHome returns the default chatlab home directory.
// Respects the CHATLAB_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("CHATLAB_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatlab"
	}
	return filepath.Join(home, ".chatlab")
}

// Load reads the configuration from the specified file. If path is empty,
// the default location ($CHATLAB_HOME/config.toml) is used. homeOverride,
// when non-empty, wins over CHATLAB_HOME.
func Load(path, homeOverride string) (*Config, error) {
	homeDir := homeOverride
	if homeDir == "" {
		homeDir = DefaultHome()
	}

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		Import: ImportConfig{
			BatchSize: 1000,
		},
		Analytics: AnalyticsConfig{
			StreakMinRun:    3,
			StreakIdleGap:   300,
			ChainIdleGap:    600,
			SessionIdleGap:  1800,
			CatchphraseTopK: 5,
		},
		Server: ServerConfig{
			APIPort: 8636,
		},
	}

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	return cfg, nil
}

// EnsureHomeDir creates the data directory and the managed media folder if
// they do not exist.
func (c *Config) EnsureHomeDir() error {
	if err := os.MkdirAll(c.Data.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.MediaDir(), 0755)
}

// DatabasePath returns the path to the SQLite corpus store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "chatlab.db")
}

// MediaDir returns the path to the attached-media directory.
func (c *Config) MediaDir() string {
	return filepath.Join(c.Data.DataDir, "media")
}

// ConfigFilePath returns the path the config file is loaded from.
func (c *Config) ConfigFilePath() string {
	return filepath.Join(c.HomeDir, "config.toml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
