package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Server holds the HTTP listener settings
type Server struct {
	Bind string `toml:"bind"`
	// PublicBaseURL prefixes artifact URLs handed to clients
	PublicBaseURL string `toml:"public_base_url"`
}

// Paths holds the directories the server reads and writes
type Paths struct {
	DataDir   string `toml:"data_dir"`
	OutputDir string `toml:"output_dir"`
	UploadDir string `toml:"upload_dir"`
}

// Upload limits playlist file submissions
type Upload struct {
	MaxBytes int64 `toml:"max_bytes"`
}

// Retention controls how long finished jobs stay pollable, in seconds
type Retention struct {
	CompletedTTL  int `toml:"completed_ttl"`
	ErrorTTL      int `toml:"error_ttl"`
	SweepInterval int `toml:"sweep_interval"`
	// HistoryDays bounds the success and failure history stores
	HistoryDays int `toml:"history_days"`
}

// Engine configures the ffmpeg subprocess
type Engine struct {
	FFmpegPath        string `toml:"ffmpeg_path"`
	UserAgent         string `toml:"user_agent"`
	ProtocolWhitelist string `toml:"protocol_whitelist"`
}

// Jobs configures the conversion worker
type Jobs struct {
	MaxConcurrent int `toml:"max_concurrent"`
}

// Limits configures submission rate limiting. Zero SubmitRPS disables it.
type Limits struct {
	SubmitRPS   float64 `toml:"submit_rps"`
	SubmitBurst int     `toml:"submit_burst"`
}

// Logging configures the logger package
type Logging struct {
	Level   string `toml:"level"`
	File    string `toml:"file"`
	Console bool   `toml:"console"`
}

// Config is the full server configuration
type Config struct {
	Server    Server    `toml:"server"`
	Paths     Paths     `toml:"paths"`
	Upload    Upload    `toml:"upload"`
	Retention Retention `toml:"retention"`
	Engine    Engine    `toml:"engine"`
	Jobs      Jobs      `toml:"jobs"`
	Limits    Limits    `toml:"limits"`
	Logging   Logging   `toml:"logging"`
}

// Load builds a config from defaults, an optional TOML file, and environment overrides.
// A missing file at path is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	return &cfg, nil
}

// CompletedTTL is how long a completed job stays pollable
func (c *Config) CompletedTTL() time.Duration {
	return time.Duration(c.Retention.CompletedTTL) * time.Second
}

// ErrorTTL is how long a failed job stays pollable
func (c *Config) ErrorTTL() time.Duration {
	return time.Duration(c.Retention.ErrorTTL) * time.Second
}

// SweepInterval is how often the retention sweeper runs
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Retention.SweepInterval) * time.Second
}

// HistoryMaxAge is how long success and failure records are kept
func (c *Config) HistoryMaxAge() time.Duration {
	return time.Duration(c.Retention.HistoryDays) * 24 * time.Hour
}

// CredentialsDBPath returns the full path to the credentials database.
// Path: {DataDir}/credentials.db
func (c *Config) CredentialsDBPath() string {
	return filepath.Join(c.Paths.DataDir, "credentials.db")
}

// FailuresDBPath returns the full path to the failures database.
// Path: {DataDir}/failures.db
func (c *Config) FailuresDBPath() string {
	return filepath.Join(c.Paths.DataDir, "failures.db")
}

// SuccessDBPath returns the full path to the success database.
// Path: {DataDir}/success.db
func (c *Config) SuccessDBPath() string {
	return filepath.Join(c.Paths.DataDir, "success.db")
}

// LockPath is the single-instance lock file inside the data directory
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "m3u8conv.lock")
}
