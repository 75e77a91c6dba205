// Package config handles configuration loading and management for nimbus.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProjectConfigName is the project-level override file.
const ProjectConfigName = ".nimbus.yaml"

// Config holds all configuration for nimbus.
type Config struct {
	Oracle      OracleConfig      `mapstructure:"oracle"`
	Workspace   WorkspaceConfig   `mapstructure:"workspace"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Loop        LoopConfig        `mapstructure:"loop"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// OracleConfig holds decision oracle settings.
type OracleConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	UseBedrock bool          `mapstructure:"use_bedrock"`
	AWSRegion  string        `mapstructure:"aws_region"`
	AWSProfile string        `mapstructure:"aws_profile"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum number of oracle calls per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
	MaxTokens int64   `mapstructure:"max_tokens"`
}

// WorkspaceConfig holds filesystem locations.
type WorkspaceConfig struct {
	ProjectsDir string `mapstructure:"projects_dir"`
	StateDir    string `mapstructure:"state_dir"`
	// InitGit makes new projects git repositories.
	InitGit bool `mapstructure:"init_git"`
	// Interpreter runs project programs and tests.
	Interpreter string `mapstructure:"interpreter"`
	// CommandTimeout bounds run_code and run_unit_tests.
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// PersistenceConfig holds snapshot settings.
type PersistenceConfig struct {
	// Backend is sqlite or file.
	Backend string `mapstructure:"backend"`
	// Driver is the database/sql driver for the sqlite backend: sqlite
	// (pure Go) or sqlite3 (cgo).
	Driver            string        `mapstructure:"driver"`
	SaveInterval      time.Duration `mapstructure:"save_interval"`
	RecentExperiences int           `mapstructure:"recent_experiences"`
	// SnapshotFile is the JSON file used by the file backend. Relative
	// paths are resolved against the state directory.
	SnapshotFile string `mapstructure:"snapshot_file"`
}

// LoopConfig holds orchestration loop settings.
type LoopConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	MaxIterations int           `mapstructure:"max_iterations"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Textfile is a node-exporter textfile written after each save.
	Textfile string `mapstructure:"textfile"`
}

// Backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, NIMBUS_*)
// 2. Project config (.nimbus.yaml in current directory or parent)
// 3. User config (~/.config/nimbus/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("NIMBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("oracle.api_key", "ANTHROPIC_API_KEY", "NIMBUS_ORACLE_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Oracle.APIKey = expandEnv(cfg.Oracle.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings and ranges.
func (c *Config) Validate() error {
	switch c.Persistence.Backend {
	case BackendSQLite, BackendFile:
	default:
		return fmt.Errorf("persistence.backend: unknown backend %q", c.Persistence.Backend)
	}
	switch c.Persistence.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("persistence.driver: unknown driver %q", c.Persistence.Driver)
	}
	if c.Persistence.SaveInterval <= 0 {
		return fmt.Errorf("persistence.save_interval must be positive")
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle.timeout must be positive")
	}
	if c.Loop.Interval < 0 || c.Loop.MaxIterations < 0 {
		return fmt.Errorf("loop: interval and max_iterations must not be negative")
	}
	return nil
}

// SnapshotPath resolves the file backend's snapshot path.
func (c *Config) SnapshotPath() string {
	p := c.Persistence.SnapshotFile
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Workspace.StateDir, p)
}

// PolicyPath returns the optional stage policy override file.
func (c *Config) PolicyPath() string {
	return filepath.Join(c.Workspace.StateDir, "policy.yaml")
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	return SaveTo(cfg, GetUserConfigPath())
}

// SaveTo writes the configuration to path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("oracle.enabled", cfg.Oracle.Enabled)
	v.Set("oracle.api_key", cfg.Oracle.APIKey)
	v.Set("oracle.model", cfg.Oracle.Model)
	v.Set("oracle.use_bedrock", cfg.Oracle.UseBedrock)
	v.Set("oracle.aws_region", cfg.Oracle.AWSRegion)
	v.Set("oracle.aws_profile", cfg.Oracle.AWSProfile)
	v.Set("oracle.timeout", cfg.Oracle.Timeout.String())
	v.Set("oracle.rate_limit", cfg.Oracle.RateLimit)
	v.Set("oracle.burst", cfg.Oracle.Burst)
	v.Set("oracle.max_tokens", cfg.Oracle.MaxTokens)
	v.Set("workspace.projects_dir", cfg.Workspace.ProjectsDir)
	v.Set("workspace.state_dir", cfg.Workspace.StateDir)
	v.Set("workspace.init_git", cfg.Workspace.InitGit)
	v.Set("workspace.interpreter", cfg.Workspace.Interpreter)
	v.Set("workspace.command_timeout", cfg.Workspace.CommandTimeout.String())
	v.Set("persistence.backend", cfg.Persistence.Backend)
	v.Set("persistence.driver", cfg.Persistence.Driver)
	v.Set("persistence.save_interval", cfg.Persistence.SaveInterval.String())
	v.Set("persistence.recent_experiences", cfg.Persistence.RecentExperiences)
	v.Set("persistence.snapshot_file", cfg.Persistence.SnapshotFile)
	v.Set("loop.interval", cfg.Loop.Interval.String())
	v.Set("loop.max_iterations", cfg.Loop.MaxIterations)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.format", cfg.Logging.Format)
	v.Set("logging.file", cfg.Logging.File)
	v.Set("metrics.textfile", cfg.Metrics.Textfile)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("oracle.enabled", d.Oracle.Enabled)
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", d.Oracle.Model)
	v.SetDefault("oracle.use_bedrock", false)
	v.SetDefault("oracle.aws_region", "")
	v.SetDefault("oracle.aws_profile", "")
	v.SetDefault("oracle.timeout", "30s")
	v.SetDefault("oracle.rate_limit", d.Oracle.RateLimit)
	v.SetDefault("oracle.burst", d.Oracle.Burst)
	v.SetDefault("oracle.max_tokens", d.Oracle.MaxTokens)

	v.SetDefault("workspace.projects_dir", d.Workspace.ProjectsDir)
	v.SetDefault("workspace.state_dir", d.Workspace.StateDir)
	v.SetDefault("workspace.init_git", d.Workspace.InitGit)
	v.SetDefault("workspace.interpreter", d.Workspace.Interpreter)
	v.SetDefault("workspace.command_timeout", "30s")

	v.SetDefault("persistence.backend", d.Persistence.Backend)
	v.SetDefault("persistence.driver", d.Persistence.Driver)
	v.SetDefault("persistence.save_interval", "150s")
	v.SetDefault("persistence.recent_experiences", d.Persistence.RecentExperiences)
	v.SetDefault("persistence.snapshot_file", d.Persistence.SnapshotFile)

	v.SetDefault("loop.interval", "1s")
	v.SetDefault("loop.max_iterations", 0)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", "")

	v.SetDefault("metrics.textfile", "")
}

// getUserConfigDir returns the XDG config directory for nimbus.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nimbus")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "nimbus")
	}
	return filepath.Join(home, ".config", "nimbus")
}

// findProjectConfig searches for .nimbus.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return ""
		}
		cwd = parent
	}
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Oracle: OracleConfig{
			Enabled:   true,
			Model:     "claude-sonnet-4-5-20250929",
			Timeout:   30 * time.Second,
			RateLimit: 0.5,
			Burst:     2,
			MaxTokens: 1024,
		},
		Workspace: WorkspaceConfig{
			ProjectsDir:    "nimbus_projects",
			StateDir:       ".nimbus",
			InitGit:        true,
			Interpreter:    "python3",
			CommandTimeout: 30 * time.Second,
		},
		Persistence: PersistenceConfig{
			Backend:           BackendSQLite,
			Driver:            "sqlite",
			SaveInterval:      150 * time.Second,
			RecentExperiences: 5,
			SnapshotFile:      "snapshot.json",
		},
		Loop: LoopConfig{
			Interval: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
