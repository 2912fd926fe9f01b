package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/packmill/packmill/internal/catalog"
	"github.com/packmill/packmill/pkg/logger"
)

const (
	defaultBaseURL         = "https://releases.packmill.org"
	defaultMetaTimeout     = 30 * time.Second
	defaultArtifactTimeout = 30 * time.Minute
)

// Config holds all application configuration
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths" yaml:"paths"`
	Releases ReleasesConfig `mapstructure:"releases" yaml:"releases"`
	Updates  UpdatesConfig  `mapstructure:"updates" yaml:"updates"`
	Policy   PolicyConfig   `mapstructure:"policy" yaml:"policy"`
	Launch   LaunchConfig   `mapstructure:"launch" yaml:"launch"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// PathsConfig holds the on-disk layout
type PathsConfig struct {
	InstallRoot string `mapstructure:"install_root" yaml:"install_root"`
	CacheDir    string `mapstructure:"cache_dir" yaml:"cache_dir"`
	StateDir    string `mapstructure:"state_dir" yaml:"state_dir"`
}

// ReleasesConfig holds the remote release endpoint configuration
type ReleasesConfig struct {
	BaseURL         string  `mapstructure:"base_url" yaml:"base_url"`
	Timeout         string  `mapstructure:"timeout" yaml:"timeout"`
	DownloadTimeout string  `mapstructure:"download_timeout" yaml:"download_timeout"`
	RateLimit       float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst       int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// UpdatesConfig holds the update check behavior
type UpdatesConfig struct {
	CheckAtLaunch        bool `mapstructure:"check_at_launch" yaml:"check_at_launch"`
	MinutesBetweenChecks int  `mapstructure:"minutes_between_checks" yaml:"minutes_between_checks"`
	CheckDaily           bool `mapstructure:"check_daily" yaml:"check_daily"`
	CheckBranched        bool `mapstructure:"check_branched" yaml:"check_branched"`
	CheckStable          bool `mapstructure:"check_stable" yaml:"check_stable"`
	CheckLTS             bool `mapstructure:"check_lts" yaml:"check_lts"`
	UseLatestAsDefault   bool `mapstructure:"use_latest_as_default" yaml:"use_latest_as_default"`
}

// PolicyConfig holds the keep-only-latest switches per channel
type PolicyConfig struct {
	KeepOnlyLatestDaily    bool `mapstructure:"keep_only_latest_daily" yaml:"keep_only_latest_daily"`
	KeepOnlyLatestBranched bool `mapstructure:"keep_only_latest_branched" yaml:"keep_only_latest_branched"`
	KeepOnlyLatestStable   bool `mapstructure:"keep_only_latest_stable" yaml:"keep_only_latest_stable"`
	KeepOnlyLatestLTS      bool `mapstructure:"keep_only_latest_lts" yaml:"keep_only_latest_lts"`
}

// LaunchConfig holds how installed builds are started
type LaunchConfig struct {
	Executable string `mapstructure:"executable" yaml:"executable"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Configuration file name and path
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.packmill")
	}

	// Read environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("PACKMILL")

	// Read configuration file
	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Bind configuration to struct
	var config Config
	err = v.Unmarshal(&config)
	if err != nil {
		return nil, err
	}

	// Initialize logger
	err = initLogger(&config.Logging)
	if err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	base := baseDir()

	v.SetDefault("paths.install_root", filepath.Join(base, "builds"))
	v.SetDefault("paths.cache_dir", filepath.Join(base, "cache"))
	v.SetDefault("paths.state_dir", filepath.Join(base, "state"))

	v.SetDefault("releases.base_url", defaultBaseURL)
	v.SetDefault("releases.timeout", "30s")
	v.SetDefault("releases.download_timeout", "30m")
	v.SetDefault("releases.rate_limit", 4.0)
	v.SetDefault("releases.rate_burst", 8)

	v.SetDefault("updates.check_at_launch", true)
	v.SetDefault("updates.minutes_between_checks", 60)
	v.SetDefault("updates.check_daily", true)
	v.SetDefault("updates.check_branched", true)
	v.SetDefault("updates.check_stable", true)
	v.SetDefault("updates.check_lts", true)
	v.SetDefault("updates.use_latest_as_default", true)

	v.SetDefault("policy.keep_only_latest_daily", false)
	v.SetDefault("policy.keep_only_latest_branched", false)
	v.SetDefault("policy.keep_only_latest_stable", false)
	v.SetDefault("policy.keep_only_latest_lts", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// baseDir returns the per-user root under which all mutable data lives.
func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "packmill")
	}
	return filepath.Join(home, ".packmill")
}

// initLogger initializes the logger with the provided configuration
func initLogger(cfg *LoggingConfig) error {
	logConfig := logger.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
		File:   cfg.File,
		Module: "main",
	}

	return logger.Init(logConfig)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	base := baseDir()
	return &Config{
		Paths: PathsConfig{
			InstallRoot: filepath.Join(base, "builds"),
			CacheDir:    filepath.Join(base, "cache"),
			StateDir:    filepath.Join(base, "state"),
		},
		Releases: ReleasesConfig{
			BaseURL:         defaultBaseURL,
			Timeout:         "30s",
			DownloadTimeout: "30m",
			RateLimit:       4,
			RateBurst:       8,
		},
		Updates: UpdatesConfig{
			CheckAtLaunch:        true,
			MinutesBetweenChecks: 60,
			CheckDaily:           true,
			CheckBranched:        true,
			CheckStable:          true,
			CheckLTS:             true,
			UseLatestAsDefault:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// CheckEnabled reports whether the channel participates in update checks.
// Archived builds never do.
func (c *Config) CheckEnabled(ch catalog.Channel) bool {
	switch ch {
	case catalog.ChannelDaily:
		return c.Updates.CheckDaily
	case catalog.ChannelBranched:
		return c.Updates.CheckBranched
	case catalog.ChannelStable:
		return c.Updates.CheckStable
	case catalog.ChannelLTS:
		return c.Updates.CheckLTS
	}
	return false
}

// KeepOnlyLatest reports whether superseded builds of the channel are
// pruned after installs. Archived builds are never pruned.
func (c *Config) KeepOnlyLatest(ch catalog.Channel) bool {
	switch ch {
	case catalog.ChannelDaily:
		return c.Policy.KeepOnlyLatestDaily
	case catalog.ChannelBranched:
		return c.Policy.KeepOnlyLatestBranched
	case catalog.ChannelStable:
		return c.Policy.KeepOnlyLatestStable
	case catalog.ChannelLTS:
		return c.Policy.KeepOnlyLatestLTS
	}
	return false
}

// MetaTimeout returns the per-request timeout for metadata fetches.
func (c *Config) MetaTimeout() time.Duration {
	if d, err := time.ParseDuration(c.Releases.Timeout); err == nil && d > 0 {
		return d
	}
	return defaultMetaTimeout
}

// ArtifactTimeout returns the timeout for one artifact download.
func (c *Config) ArtifactTimeout() time.Duration {
	if d, err := time.ParseDuration(c.Releases.DownloadTimeout); err == nil && d > 0 {
		return d
	}
	return defaultArtifactTimeout
}

// CheckInterval returns the minimum time between automatic update checks.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Updates.MinutesBetweenChecks) * time.Minute
}

// WriteDefault writes a starter configuration file. It refuses to clobber
// an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}

	header := []byte("# packmill configuration\n# Values can be overridden with PACKMILL_* environment variables.\n\n")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, append(header, data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
