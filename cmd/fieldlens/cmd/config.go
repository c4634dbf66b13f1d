package cmd

import (
	"fmt"
	"net/url"

	"github.com/fieldlens-tech/fieldlens/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd groups the configuration inspection subcommands.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and generate configuration",
	Long: `Inspect the resolved configuration or generate a config file.

Configuration is merged from defaults, a config file, FIELDLENS_*
environment variables and command-line flags, in that order.`,
}

// configShowCmd prints the resolved configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration as YAML",
	Long: `Print the configuration the other commands would run with, after
merging defaults, the config file, environment variables and flags.
Secret values are redacted.

Examples:
  fieldlens config show
  fieldlens --config custom.yaml config show`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *GetConfig()
		redactSecrets(&cfg)

		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return fmt.Errorf("failed to render configuration: %w", err)
		}
		if used := GetConfigLoader().GetConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# config file: %s\n", used)
		}
		_, _ = fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

// configInitCmd writes a starter config file with default values.
var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a config file with default values",
	Long: `Write a configuration file populated with the default values.

The file is written to fieldlens.yaml in the current directory unless a
path is given.

Examples:
  fieldlens config init
  fieldlens config init /etc/fieldlens/fieldlens.yaml`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := ""
		if len(args) > 0 {
			filename = args[0]
		}
		if err := config.GenerateDefaultConfigFile(filename); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		if filename == "" {
			filename = "fieldlens.yaml"
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config file written to %s\n", filename)
		return nil
	},
}

// configPathsCmd lists the config file search locations.
var configPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "List config file search paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range config.GetConfigSearchPaths() {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathsCmd)
}

// redactSecrets blanks credential fields before the config is printed.
func redactSecrets(cfg *config.Config) {
	if cfg.Pipeline.Vision.APIKey != "" {
		cfg.Pipeline.Vision.APIKey = "[redacted]"
	}
	if cfg.Storage.AccessKey != "" {
		cfg.Storage.AccessKey = "[redacted]"
	}
	if cfg.Storage.SecretKey != "" {
		cfg.Storage.SecretKey = "[redacted]"
	}
	cfg.Database.URL = redactDSNPassword(cfg.Database.URL)
}

// redactDSNPassword masks the password component of a connection URL.
func redactDSNPassword(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, has := u.User.Password(); !has {
		return dsn
	}
	u.User = url.UserPassword(u.User.Username(), "redacted")
	return u.String()
}
