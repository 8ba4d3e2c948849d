// Package config provides configuration management for bruwatch using Viper
// for flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files, environment variable overrides
// with the BRUWATCH_ prefix, and validation. It covers the file watcher,
// the request parsing pipeline, the parsed-file cache, the secret and
// snapshot stores, the UI transport and logging.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultLargeFileThreshold is the size in bytes at or above which request
// files are not fully parsed on discovery.
const DefaultLargeFileThreshold = 2621440

type Config struct {
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Parsing  ParsingConfig  `mapstructure:"parsing"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	// Collections are roots to watch, taken from CLI arguments.
	Collections []string `mapstructure:"-"`
}

type WatcherConfig struct {
	StabilityWindow time.Duration `mapstructure:"stability_window"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Depth           int           `mapstructure:"depth"`
	StartDelay      time.Duration `mapstructure:"start_delay"`
	ForcePolling    bool          `mapstructure:"force_polling"`
	Ignore          []string      `mapstructure:"ignore"`
}

type ParsingConfig struct {
	WorkerThreads      bool  `mapstructure:"worker_threads"`
	Workers            int   `mapstructure:"workers"`
	QueueSize          int   `mapstructure:"queue_size"`
	LargeFileThreshold int64 `mapstructure:"large_file_threshold"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	MaxAge  time.Duration `mapstructure:"max_age"`
}

type SecretsConfig struct {
	Path string `mapstructure:"path"`
	Key  string `mapstructure:"key"`
}

type SnapshotConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("watcher.stability_window", 80*time.Millisecond)
	v.SetDefault("watcher.poll_interval", 100*time.Millisecond)
	v.SetDefault("watcher.depth", 20)
	v.SetDefault("watcher.start_delay", 100*time.Millisecond)
	v.SetDefault("watcher.force_polling", false)
	v.SetDefault("watcher.ignore", []string{})

	v.SetDefault("parsing.worker_threads", true)
	v.SetDefault("parsing.workers", defaultWorkers())
	v.SetDefault("parsing.queue_size", 256)
	v.SetDefault("parsing.large_file_threshold", DefaultLargeFileThreshold)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", filepath.Join(userDir(os.UserCacheDir), "bruwatch", "parsed-file-cache.db"))
	v.SetDefault("cache.max_age", 720*time.Hour)

	v.SetDefault("secrets.path", filepath.Join(userDir(os.UserConfigDir), "bruwatch", "environment-secrets.yml"))
	v.SetDefault("secrets.key", "")
	v.SetDefault("snapshot.path", filepath.Join(userDir(os.UserConfigDir), "bruwatch", "ui-state-snapshot.yml"))

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7878)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func defaultWorkers() int {
	if n := runtime.NumCPU(); n > 1 {
		return n
	}
	return 1
}

func userDir(fn func() (string, error)) string {
	dir, err := fn()
	if err != nil || dir == "" {
		return os.TempDir()
	}
	return dir
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, filling unset keys with
// defaults, and validates it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle ignore patterns set via viper (workaround for viper slice handling)
	if v.IsSet("watcher.ignore") && len(config.Watcher.Ignore) == 0 {
		config.Watcher.Ignore = v.GetStringSlice("watcher.ignore")
	}
	if v.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	// Validate configuration values
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	if err := validateWatcherConfig(&config.Watcher); err != nil {
		return fmt.Errorf("watcher config: %w", err)
	}
	if err := validateParsingConfig(&config.Parsing); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if err := validateCacheConfig(&config.Cache); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateLogConfig(&config.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	return nil
}

func validateWatcherConfig(config *WatcherConfig) error {
	if config.StabilityWindow <= 0 {
		return fmt.Errorf("stability_window must be positive, got %s", config.StabilityWindow)
	}
	if config.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", config.PollInterval)
	}
	if config.StartDelay < 0 {
		return fmt.Errorf("start_delay must not be negative, got %s", config.StartDelay)
	}
	if config.Depth < 1 || config.Depth > 64 {
		return fmt.Errorf("depth %d is not in valid range 1-64", config.Depth)
	}
	for _, pattern := range config.Ignore {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("empty ignore pattern")
		}
	}
	return nil
}

func validateParsingConfig(config *ParsingConfig) error {
	if config.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", config.Workers)
	}
	if config.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", config.QueueSize)
	}
	if config.LargeFileThreshold <= 0 {
		return fmt.Errorf("large_file_threshold must be positive, got %d", config.LargeFileThreshold)
	}
	return nil
}

func validateCacheConfig(config *CacheConfig) error {
	if !config.Enabled {
		return nil
	}
	if config.Path == "" {
		return fmt.Errorf("path is required when the cache is enabled")
	}
	if strings.Contains(filepath.ToSlash(config.Path), "../") {
		return fmt.Errorf("path contains traversal: %s", config.Path)
	}
	if config.MaxAge < 0 {
		return fmt.Errorf("max_age must not be negative, got %s", config.MaxAge)
	}
	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

func validateLogConfig(config *LogConfig) error {
	switch strings.ToLower(config.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown level %q", config.Level)
	}
	switch config.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown format %q", config.Format)
	}
	return nil
}

// Address returns host:port for the UI transport.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
