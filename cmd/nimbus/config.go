package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nimbus/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify nimbus configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/nimbus/config.yaml (or the file given
with --config). Project-specific overrides can be placed in .nimbus.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		out := cmd.OutOrStdout()

		switch len(args) {
		case 0:
			displayAllConfig(out, cfg)
			return nil
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		default:
			return setConfigKey(out, cfg, args[0], args[1])
		}
	},
}

// configKeys lists the displayable keys in output order.
var configKeys = []string{
	"oracle.enabled",
	"oracle.api_key",
	"oracle.model",
	"oracle.use_bedrock",
	"oracle.aws_region",
	"oracle.aws_profile",
	"oracle.timeout",
	"oracle.rate_limit",
	"oracle.burst",
	"oracle.max_tokens",
	"workspace.projects_dir",
	"workspace.state_dir",
	"workspace.init_git",
	"workspace.interpreter",
	"workspace.command_timeout",
	"persistence.backend",
	"persistence.driver",
	"persistence.save_interval",
	"persistence.recent_experiences",
	"persistence.snapshot_file",
	"loop.interval",
	"loop.max_iterations",
	"logging.level",
	"logging.format",
	"logging.file",
	"metrics.textfile",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Fprintf(w, "%s: %s\n", key, value)
	}
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(w io.Writer, cfg *config.Config, key, value string) error {
	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var err error
	if configPath != "" {
		err = config.SaveTo(cfg, configPath)
	} else {
		err = config.Save(cfg)
	}
	if err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	if key == "oracle.api_key" {
		value = config.MaskAPIKey(value)
	}
	fmt.Fprintf(w, "Set %s = %s\n", key, value)
	return nil
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "oracle.enabled":
		return strconv.FormatBool(cfg.Oracle.Enabled), nil
	case "oracle.api_key":
		if cfg.Oracle.APIKey == "" {
			return "(not set)", nil
		}
		return config.MaskAPIKey(cfg.Oracle.APIKey), nil
	case "oracle.model":
		return cfg.Oracle.Model, nil
	case "oracle.use_bedrock":
		return strconv.FormatBool(cfg.Oracle.UseBedrock), nil
	case "oracle.aws_region":
		return cfg.Oracle.AWSRegion, nil
	case "oracle.aws_profile":
		return cfg.Oracle.AWSProfile, nil
	case "oracle.timeout":
		return cfg.Oracle.Timeout.String(), nil
	case "oracle.rate_limit":
		return strconv.FormatFloat(cfg.Oracle.RateLimit, 'g', -1, 64), nil
	case "oracle.burst":
		return strconv.Itoa(cfg.Oracle.Burst), nil
	case "oracle.max_tokens":
		return strconv.FormatInt(cfg.Oracle.MaxTokens, 10), nil
	case "workspace.projects_dir":
		return cfg.Workspace.ProjectsDir, nil
	case "workspace.state_dir":
		return cfg.Workspace.StateDir, nil
	case "workspace.init_git":
		return strconv.FormatBool(cfg.Workspace.InitGit), nil
	case "workspace.interpreter":
		return cfg.Workspace.Interpreter, nil
	case "workspace.command_timeout":
		return cfg.Workspace.CommandTimeout.String(), nil
	case "persistence.backend":
		return cfg.Persistence.Backend, nil
	case "persistence.driver":
		return cfg.Persistence.Driver, nil
	case "persistence.save_interval":
		return cfg.Persistence.SaveInterval.String(), nil
	case "persistence.recent_experiences":
		return strconv.Itoa(cfg.Persistence.RecentExperiences), nil
	case "persistence.snapshot_file":
		return cfg.Persistence.SnapshotFile, nil
	case "loop.interval":
		return cfg.Loop.Interval.String(), nil
	case "loop.max_iterations":
		return strconv.Itoa(cfg.Loop.MaxIterations), nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.format":
		return cfg.Logging.Format, nil
	case "logging.file":
		return cfg.Logging.File, nil
	case "metrics.textfile":
		return cfg.Metrics.Textfile, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "oracle.enabled":
		return parseBool(value, &cfg.Oracle.Enabled)
	case "oracle.api_key":
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.Oracle.APIKey = value
	case "oracle.model":
		cfg.Oracle.Model = value
	case "oracle.use_bedrock":
		return parseBool(value, &cfg.Oracle.UseBedrock)
	case "oracle.aws_region":
		cfg.Oracle.AWSRegion = value
	case "oracle.aws_profile":
		cfg.Oracle.AWSProfile = value
	case "oracle.timeout":
		return parseDuration(value, &cfg.Oracle.Timeout)
	case "oracle.rate_limit":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %s", value)
		}
		cfg.Oracle.RateLimit = f
	case "oracle.burst":
		return parseInt(value, &cfg.Oracle.Burst)
	case "oracle.max_tokens":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %s", value)
		}
		cfg.Oracle.MaxTokens = n
	case "workspace.projects_dir":
		cfg.Workspace.ProjectsDir = value
	case "workspace.state_dir":
		cfg.Workspace.StateDir = value
	case "workspace.init_git":
		return parseBool(value, &cfg.Workspace.InitGit)
	case "workspace.interpreter":
		cfg.Workspace.Interpreter = value
	case "workspace.command_timeout":
		return parseDuration(value, &cfg.Workspace.CommandTimeout)
	case "persistence.backend":
		cfg.Persistence.Backend = value
	case "persistence.driver":
		cfg.Persistence.Driver = value
	case "persistence.save_interval":
		return parseDuration(value, &cfg.Persistence.SaveInterval)
	case "persistence.recent_experiences":
		return parseInt(value, &cfg.Persistence.RecentExperiences)
	case "persistence.snapshot_file":
		cfg.Persistence.SnapshotFile = value
	case "loop.interval":
		return parseDuration(value, &cfg.Loop.Interval)
	case "loop.max_iterations":
		return parseInt(value, &cfg.Loop.MaxIterations)
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.format":
		cfg.Logging.Format = value
	case "logging.file":
		cfg.Logging.File = value
	case "metrics.textfile":
		cfg.Metrics.Textfile = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func parseBool(value string, dst *bool) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean: %s", value)
	}
	*dst = b
	return nil
}

func parseInt(value string, dst *int) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %s", value)
	}
	*dst = n
	return nil
}

func parseDuration(value string, dst *time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %s", value)
	}
	*dst = d
	return nil
}
