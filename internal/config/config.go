// Package config provides configuration management for soracast using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultProbeTimeout    = 30 * time.Second
	defaultMinIdle         = 1200 * time.Millisecond
	defaultCleanupMargin   = 10 * time.Second
	defaultRestartDelay    = 1 * time.Second
	defaultStopGrace       = 2 * time.Second
	defaultPurgeDelay      = 3 * time.Second
	defaultGenerateRateRPM = 60
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	FFmpeg  FFmpegConfig  `mapstructure:"ffmpeg"`
	Stream  StreamConfig  `mapstructure:"stream"`
	RTMP    RTMPConfig    `mapstructure:"rtmp"`
	Presets PresetsConfig `mapstructure:"presets"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// APIKey, when non-empty, is required in the x-api-key header of every API request.
	APIKey string `mapstructure:"api_key"`
	// ResponsePathBase rewrites the output-directory prefix of file paths
	// returned to clients (useful behind a shared volume mount).
	ResponsePathBase string `mapstructure:"response_path_base"`
	// GenerateRatePerMinute limits POST /api/generate requests per client IP.
	GenerateRatePerMinute int `mapstructure:"generate_rate_per_minute"`
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	// OutputDir holds cached outputs (<sha256>.mp4) and output.jsonl.
	OutputDir string `mapstructure:"output_dir"`
	// MotionsDir is the read-only root for motion clip assets. Preset clip
	// paths must resolve below this directory.
	MotionsDir string `mapstructure:"motions_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath   string        `mapstructure:"binary_path"`   // Path to ffmpeg binary (empty = auto-detect)
	ProbePath    string        `mapstructure:"probe_path"`    // Path to ffprobe binary (empty = auto-detect)
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"` // Timeout for individual ffprobe invocations
	DebugProbe   bool          `mapstructure:"debug_probe"`   // Log every probe invocation
}

// StreamConfig holds live-stream loop configuration.
type StreamConfig struct {
	// MinIdle is the minimum idle-plan duration used for the boot clip and
	// for the pad inserted ahead of each task.
	MinIdle time.Duration `mapstructure:"min_idle"`
	// CleanupMargin is how long after a file's last scheduled play time it
	// may be deleted. Must exceed the encoder's buffered lookahead.
	CleanupMargin time.Duration `mapstructure:"cleanup_margin"`
	// RestartDelay is the pause before relaunching the encoder after a clean exit.
	RestartDelay time.Duration `mapstructure:"restart_delay"`
	// StopGrace is how long to wait after SIGTERM before SIGKILL on stop.
	StopGrace time.Duration `mapstructure:"stop_grace"`
	// PurgeDelay is the pause before the working directory is purged on stop.
	PurgeDelay time.Duration `mapstructure:"purge_delay"`
}

// RTMPConfig holds the embedded RTMP ingest server configuration.
type RTMPConfig struct {
	// Enabled starts the local ingest server subprocess at boot.
	Enabled bool `mapstructure:"enabled"`
	// BinaryPath is the ingest server binary (empty = auto-detect "mediamtx").
	BinaryPath string `mapstructure:"binary_path"`
	// ConfigPath is an optional config file passed to the ingest server.
	ConfigPath string `mapstructure:"config_path"`
}

// PresetsConfig holds preset file configuration.
type PresetsConfig struct {
	// Path is the YAML file declaring the avatar presets.
	Path string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with SORACAST_ and use underscores for
// nesting. Example: SORACAST_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/soracast")
		v.AddConfigPath("$HOME/.soracast")
	}

	v.SetEnvPrefix("SORACAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyLegacyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyLegacyEnv honours the flat environment variables that predate the
// viper-based configuration. They take precedence over file values.
func applyLegacyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if base := os.Getenv("RESPONSE_PATH_BASE"); base != "" {
		cfg.Server.ResponsePathBase = base
	}
	if bin := os.Getenv("FFMPEG_BIN"); bin != "" {
		cfg.FFmpeg.BinaryPath = bin
	}
	if bin := os.Getenv("FFPROBE_BIN"); bin != "" {
		cfg.FFmpeg.ProbePath = bin
	}
	if ms := os.Getenv("FFPROBE_TIMEOUT_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n > 0 {
			cfg.FFmpeg.ProbeTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("DEBUG_MEDIA_PROBE"); v == "1" || strings.EqualFold(v, "true") {
		cfg.FFmpeg.DebugProbe = true
	}
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.response_path_base", "")
	v.SetDefault("server.generate_rate_per_minute", defaultGenerateRateRPM)

	// Storage defaults
	v.SetDefault("storage.output_dir", "./data/output")
	v.SetDefault("storage.motions_dir", "./data/motions")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.probe_timeout", defaultProbeTimeout)
	v.SetDefault("ffmpeg.debug_probe", false)

	// Stream defaults
	v.SetDefault("stream.min_idle", defaultMinIdle)
	v.SetDefault("stream.cleanup_margin", defaultCleanupMargin)
	v.SetDefault("stream.restart_delay", defaultRestartDelay)
	v.SetDefault("stream.stop_grace", defaultStopGrace)
	v.SetDefault("stream.purge_delay", defaultPurgeDelay)

	// RTMP ingest defaults
	v.SetDefault("rtmp.enabled", true)
	v.SetDefault("rtmp.binary_path", "")
	v.SetDefault("rtmp.config_path", "")

	// Preset defaults
	v.SetDefault("presets.path", "./configs/presets.yaml")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	if c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir is required")
	}
	if c.Storage.MotionsDir == "" {
		return fmt.Errorf("storage.motions_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.FFmpeg.ProbeTimeout <= 0 {
		return fmt.Errorf("ffmpeg.probe_timeout must be positive")
	}
	if c.Stream.MinIdle <= 0 {
		return fmt.Errorf("stream.min_idle must be positive")
	}
	if c.Stream.CleanupMargin <= 0 {
		return fmt.Errorf("stream.cleanup_margin must be positive")
	}

	if c.Presets.Path == "" {
		return fmt.Errorf("presets.path is required")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StreamDir returns the live-stream working directory below the output directory.
func (c *StorageConfig) StreamDir() string {
	return filepath.Join(c.OutputDir, "stream")
}

// RewritePath applies the response path base to an output file path.
// When no base is configured the path is returned unchanged.
func (c *ServerConfig) RewritePath(outputDir, path string) string {
	if c.ResponsePathBase == "" {
		return path
	}
	rel, err := filepath.Rel(outputDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.Join(c.ResponsePathBase, rel)
}

// IngestAppKey derives the RTMP application name and stream key from an
// rtmp:// output URL, for configuring the local ingest server.
func IngestAppKey(rtmpURL string) (app, key string, err error) {
	u, err := url.Parse(rtmpURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing rtmp url: %w", err)
	}
	if u.Scheme != "rtmp" {
		return "", "", fmt.Errorf("unsupported scheme %q (want rtmp)", u.Scheme)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("rtmp url %q must have /app/key path", rtmpURL)
	}
	return parts[0], parts[1], nil
}
