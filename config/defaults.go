package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"m3u8conv/logger"
)

const (
	DefaultBind          = ":4000"
	DefaultPublicBaseURL = "http://localhost:4000"
	DefaultMaxUpload     = 5 << 20

	envPrefix = "M3U8CONV_"
)

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: Server{
			Bind:          DefaultBind,
			PublicBaseURL: DefaultPublicBaseURL,
		},
		Paths: Paths{
			DataDir:   "./data",
			OutputDir: filepath.Join(os.TempDir(), "downloads"),
			UploadDir: filepath.Join(os.TempDir(), "uploads"),
		},
		Upload: Upload{MaxBytes: DefaultMaxUpload},
		Retention: Retention{
			CompletedTTL:  30 * 60,
			ErrorTTL:      5 * 60,
			SweepInterval: 60,
			HistoryDays:   30,
		},
		Engine: Engine{
			FFmpegPath:        "ffmpeg",
			ProtocolWhitelist: "file,http,https,tcp,tls,crypto",
		},
		Limits: Limits{SubmitBurst: 5},
		Logging: Logging{
			Level:   "info",
			Console: true,
		},
	}
}

// applyEnv overlays M3U8CONV_* environment variables
func (c *Config) applyEnv() {
	c.Server.Bind = getEnv("BIND", c.Server.Bind)
	c.Server.PublicBaseURL = getEnv("PUBLIC_BASE_URL", c.Server.PublicBaseURL)

	c.Paths.DataDir = getEnv("DATA_DIR", c.Paths.DataDir)
	c.Paths.OutputDir = getEnv("OUTPUT_DIR", c.Paths.OutputDir)
	c.Paths.UploadDir = getEnv("UPLOAD_DIR", c.Paths.UploadDir)

	c.Upload.MaxBytes = int64(getEnvInt("UPLOAD_MAX_BYTES", int(c.Upload.MaxBytes)))

	c.Retention.CompletedTTL = getEnvInt("COMPLETED_TTL", c.Retention.CompletedTTL)
	c.Retention.ErrorTTL = getEnvInt("ERROR_TTL", c.Retention.ErrorTTL)
	c.Retention.SweepInterval = getEnvInt("SWEEP_INTERVAL", c.Retention.SweepInterval)
	c.Retention.HistoryDays = getEnvInt("HISTORY_DAYS", c.Retention.HistoryDays)

	c.Engine.FFmpegPath = getEnv("FFMPEG_PATH", c.Engine.FFmpegPath)
	c.Engine.UserAgent = getEnv("USER_AGENT", c.Engine.UserAgent)
	c.Engine.ProtocolWhitelist = getEnv("PROTOCOL_WHITELIST", c.Engine.ProtocolWhitelist)

	c.Jobs.MaxConcurrent = getEnvInt("MAX_CONCURRENT", c.Jobs.MaxConcurrent)

	c.Limits.SubmitRPS = getEnvFloat("SUBMIT_RPS", c.Limits.SubmitRPS)
	c.Limits.SubmitBurst = getEnvInt("SUBMIT_BURST", c.Limits.SubmitBurst)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnv("LOG_FILE", c.Logging.File)
}

// normalize replaces invalid values with defaults, logging a warning for each
func (c *Config) normalize() {
	def := Default()

	if strings.TrimSpace(c.Server.Bind) == "" {
		c.Server.Bind = def.Server.Bind
	}
	c.Server.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicBaseURL), "/")
	if c.Server.PublicBaseURL == "" {
		c.Server.PublicBaseURL = def.Server.PublicBaseURL
	}

	if c.Paths.DataDir == "" {
		c.Paths.DataDir = def.Paths.DataDir
	}
	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = def.Paths.OutputDir
	}
	if c.Paths.UploadDir == "" {
		c.Paths.UploadDir = def.Paths.UploadDir
	}

	if c.Upload.MaxBytes <= 0 {
		logger.Warnf("Invalid upload.max_bytes %d, using default %d", c.Upload.MaxBytes, def.Upload.MaxBytes)
		c.Upload.MaxBytes = def.Upload.MaxBytes
	}

	if c.Retention.CompletedTTL <= 0 {
		logger.Warnf("Invalid retention.completed_ttl %d, using default %d", c.Retention.CompletedTTL, def.Retention.CompletedTTL)
		c.Retention.CompletedTTL = def.Retention.CompletedTTL
	}
	if c.Retention.ErrorTTL <= 0 {
		logger.Warnf("Invalid retention.error_ttl %d, using default %d", c.Retention.ErrorTTL, def.Retention.ErrorTTL)
		c.Retention.ErrorTTL = def.Retention.ErrorTTL
	}
	if c.Retention.SweepInterval <= 0 {
		logger.Warnf("Invalid retention.sweep_interval %d, using default %d", c.Retention.SweepInterval, def.Retention.SweepInterval)
		c.Retention.SweepInterval = def.Retention.SweepInterval
	}
	if c.Retention.HistoryDays <= 0 {
		c.Retention.HistoryDays = def.Retention.HistoryDays
	}

	if c.Engine.FFmpegPath == "" {
		c.Engine.FFmpegPath = def.Engine.FFmpegPath
	}
	if c.Engine.ProtocolWhitelist == "" {
		c.Engine.ProtocolWhitelist = def.Engine.ProtocolWhitelist
	}

	if c.Jobs.MaxConcurrent < 0 {
		logger.Warnf("Invalid jobs.max_concurrent %d, running unbounded", c.Jobs.MaxConcurrent)
		c.Jobs.MaxConcurrent = 0
	}

	if c.Limits.SubmitRPS < 0 {
		logger.Warnf("Invalid limits.submit_rps %v, disabling rate limit", c.Limits.SubmitRPS)
		c.Limits.SubmitRPS = 0
	}
	if c.Limits.SubmitBurst <= 0 {
		c.Limits.SubmitBurst = def.Limits.SubmitBurst
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		logger.Warnf("Invalid logging.level %q, using %q", c.Logging.Level, def.Logging.Level)
		c.Logging.Level = def.Logging.Level
	}
	if !c.Logging.Console && c.Logging.File == "" {
		c.Logging.Console = true
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logger.Warnf("Ignoring non-numeric %s%s=%q", envPrefix, key, value)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		logger.Warnf("Ignoring non-numeric %s%s=%q", envPrefix, key, value)
	}
	return defaultValue
}
