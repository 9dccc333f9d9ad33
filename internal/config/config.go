package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Global settings
	Format  string `mapstructure:"format"`
	Quiet   bool   `mapstructure:"quiet"`
	Verbose bool   `mapstructure:"verbose"`

	Server    ServerConfig    `mapstructure:"server"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Session   SessionConfig   `mapstructure:"session"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator"`

	// Default values for commands
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

// ServerConfig points at the authoring API
type ServerConfig struct {
	URL string `mapstructure:"url"`
}

// SyncConfig configures the live-sync channel
type SyncConfig struct {
	// URL overrides the channel URL derived from server.url
	URL            string        `mapstructure:"url"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// StrictOrdering drops screen updates older than the held definition
	StrictOrdering bool `mapstructure:"strict_ordering"`
}

// SessionConfig configures active-session resolution
type SessionConfig struct {
	HostRetries  int           `mapstructure:"host_retries"`
	HostInterval time.Duration `mapstructure:"host_interval"`
	SlotPath     string        `mapstructure:"slot_path"`
}

// EvaluatorConfig bounds code evaluation
type EvaluatorConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultsConfig holds default values for various commands
type DefaultsConfig struct {
	// Strategy is "bundle" or "override"
	Strategy    string `mapstructure:"strategy"`
	BaselineDir string `mapstructure:"baseline_dir"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Format:  "ndjson",
		Quiet:   false,
		Verbose: false,
		Server: ServerConfig{
			URL: "http://localhost:3000",
		},
		Sync: SyncConfig{
			MaxRetries:     5,
			BackoffBase:    time.Second,
			ConnectTimeout: 10 * time.Second,
			StrictOrdering: true,
		},
		Session: SessionConfig{
			HostRetries:  5,
			HostInterval: 200 * time.Millisecond,
		},
		Evaluator: EvaluatorConfig{
			Timeout: 2 * time.Second,
		},
		Defaults: DefaultsConfig{
			Strategy: "bundle",
		},
	}
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variables
	v.SetEnvPrefix("HOTSWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Bind specific environment variables
	_ = v.BindEnv("format", "HOTSWAP_FORMAT")
	_ = v.BindEnv("quiet", "HOTSWAP_QUIET")
	_ = v.BindEnv("verbose", "HOTSWAP_VERBOSE")
	_ = v.BindEnv("server.url", "HOTSWAP_SERVER_URL", "HOTSWAP_SERVER")
	_ = v.BindEnv("sync.url", "HOTSWAP_SYNC_URL")
	_ = v.BindEnv("defaults.strategy", "HOTSWAP_STRATEGY")
	_ = v.BindEnv("defaults.baseline_dir", "HOTSWAP_BASELINE_DIR")

	// Set defaults
	cfg := Default()
	setDefaults(v, cfg)

	// Try to read config file (ignore if not found)
	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("format", cfg.Format)
	v.SetDefault("quiet", cfg.Quiet)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("server.url", cfg.Server.URL)
	v.SetDefault("sync.url", cfg.Sync.URL)
	v.SetDefault("sync.max_retries", cfg.Sync.MaxRetries)
	v.SetDefault("sync.backoff_base", cfg.Sync.BackoffBase)
	v.SetDefault("sync.connect_timeout", cfg.Sync.ConnectTimeout)
	v.SetDefault("sync.strict_ordering", cfg.Sync.StrictOrdering)
	v.SetDefault("session.host_retries", cfg.Session.HostRetries)
	v.SetDefault("session.host_interval", cfg.Session.HostInterval)
	v.SetDefault("session.slot_path", cfg.Session.SlotPath)
	v.SetDefault("evaluator.timeout", cfg.Evaluator.Timeout)
	v.SetDefault("defaults.strategy", cfg.Defaults.Strategy)
	v.SetDefault("defaults.baseline_dir", cfg.Defaults.BaselineDir)
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ConfigFile returns the path to the config file that would be loaded
func ConfigFile() string {
	return findConfigFile()
}

// searchDirs lists config directories, highest precedence first
func searchDirs() []string {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(configDir, "hotswap"))
	}
	return append(dirs, "/etc/hotswap")
}

var configNames = []string{"hotswap.yaml", "hotswap.yml", ".hotswap.yaml", ".hotswap.yml", ".hotswaprc"}

// findConfigFile returns the first existing config file, or ""
func findConfigFile() string {
	for _, dir := range searchDirs() {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				if abs, err := filepath.Abs(path); err == nil {
					return abs
				}
				return path
			}
		}
	}
	return ""
}
