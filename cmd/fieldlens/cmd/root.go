package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fieldlens-tech/fieldlens/internal/config"
	"github.com/fieldlens-tech/fieldlens/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	loader    *config.Loader
	loadedCfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fieldlens",
	Short: "Form field detection for PDF documents",
	Long: `Fieldlens locates fillable form fields in PDF documents so that blank
regions can be mapped, labeled and filled programmatically.

This tool provides:
- Native AcroForm widget extraction from the document structure
- Geometric detection of drawn field shapes on rendered pages
- Optional vision-model detection for fields neither pass can see
- Ensemble merging with per-source priorities and text filtering
- Both CLI and server modes backed by PostgreSQL and object storage

Examples:
  fieldlens detect form.pdf
  fieldlens process 6d1f9a2e-8c3b-4f7a-9b1e-2a5c8d0e4f6b --force
  fieldlens serve --port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ok, _ := cmd.PersistentFlags().GetBool("version"); ok {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "fieldlens version", version.String())
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the root command. main() delegates here so that all error
// handling lives in one place.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand exposes the root command so tests can drive it without
// going through Execute and its os.Exit.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/fieldlens, /etc/fieldlens)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("version", false, "print version information and exit")

	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if loadedCfg == nil {
			initConfig()
		}
		setupLogging(loadedCfg)
	}
}

// setupLogging installs a JSON slog handler at the configured level as the
// process-wide default.
func setupLogging(cfg *config.Config) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevelFor(cfg),
	})))
}

func logLevelFor(cfg *config.Config) slog.Level {
	if cfg.Verbose {
		return slog.LevelDebug
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// initConfig loads configuration from the --config file when given, or from
// the default search paths otherwise. Called via cobra.OnInitialize.
func initConfig() {
	loader = config.NewLoader()

	var err error
	if cfgFile != "" {
		loadedCfg, err = loader.LoadWithFile(cfgFile)
	} else {
		loadedCfg, err = loader.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}

// GetConfig returns the effective configuration. It re-resolves through the
// loader so that flag values bound after the initial load are picked up.
func GetConfig() *config.Config {
	if loadedCfg == nil {
		initConfig()
	}
	cfg, err := GetConfigLoader().Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving configuration: %v\n", err)
		return loadedCfg
	}
	return cfg
}

// GetConfigLoader returns the shared configuration loader, creating it on
// first use.
func GetConfigLoader() *config.Loader {
	if loader == nil {
		loader = config.NewLoader()
	}
	return loader
}
