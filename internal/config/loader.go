package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/fieldlens-tech/fieldlens/internal/vision"
)

const (
	// ConfigFileName is the stem looked up in each search path, any
	// extension viper understands.
	ConfigFileName = "fieldlens"

	// EnvPrefix marks the environment variables the loader reads.
	EnvPrefix = "FIELDLENS"
)

// Loader merges configuration from defaults, a YAML file, FIELDLENS_*
// environment variables and bound command-line flags.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a loader backed by the global viper instance, so flag
// bindings made elsewhere are visible to it.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// Load reads configuration from the default search paths. A missing config
// file is not an error; defaults and environment variables cover it.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
	l.prepare()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return l.finish()
}

// LoadWithFile reads configuration from a specific file path. Unlike Load,
// the file must exist.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.prepare()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	return l.finish()
}

// prepare wires environment variable handling and installs defaults.
// FIELDLENS_SERVER_PORT style names map onto server.port style keys.
func (l *Loader) prepare() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()
	l.setDefaults()
}

// finish unmarshals, applies provider key fallbacks and validates.
func (l *Loader) finish() (*Config, error) {
	config, err := l.Resolve()
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Resolve unmarshals the current viper state without validating it. Callers
// use it to pick up command-line flag bindings that happen after the initial
// configuration load.
func (l *Loader) Resolve() (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	resolveVisionKey(&config)

	return &config, nil
}

// resolveVisionKey falls back to the provider-native environment variables
// when no API key is configured.
func resolveVisionKey(config *Config) {
	if config.Pipeline.Vision.APIKey != "" {
		return
	}
	switch config.Pipeline.Vision.Provider {
	case vision.ProviderOpenAI:
		config.Pipeline.Vision.APIKey = os.Getenv("OPENAI_API_KEY")
	case vision.ProviderGemini:
		config.Pipeline.Vision.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// GetConfigFileUsed returns the path of the config file viper settled on, or
// an empty string when only defaults and environment variables applied.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// setDefaults installs default values for every configuration key.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	l.v.SetDefault("pipeline.render_dpi", defaults.Pipeline.RenderDPI)
	l.v.SetDefault("pipeline.workers", defaults.Pipeline.Workers)
	l.v.SetDefault("pipeline.geometric.min_field_width_ratio", defaults.Pipeline.Geometric.MinFieldWidthRatio)
	l.v.SetDefault("pipeline.geometric.min_field_height_ratio", defaults.Pipeline.Geometric.MinFieldHeightRatio)
	l.v.SetDefault("pipeline.geometric.max_field_height_ratio", defaults.Pipeline.Geometric.MaxFieldHeightRatio)
	l.v.SetDefault("pipeline.vision.provider", defaults.Pipeline.Vision.Provider)
	l.v.SetDefault("pipeline.vision.model", defaults.Pipeline.Vision.Model)
	l.v.SetDefault("pipeline.vision.dpi", defaults.Pipeline.Vision.DPI)
	l.v.SetDefault("pipeline.vision.confidence", defaults.Pipeline.Vision.Confidence)
	l.v.SetDefault("pipeline.merger.iou_threshold", defaults.Pipeline.Merger.IoUThreshold)
	l.v.SetDefault("pipeline.text_filter.enabled", defaults.Pipeline.TextFilter.Enabled)
	l.v.SetDefault("pipeline.text_filter.overlap_threshold", defaults.Pipeline.TextFilter.OverlapThreshold)

	l.v.SetDefault("database.url", defaults.Database.URL)

	l.v.SetDefault("storage.backend", defaults.Storage.Backend)
	l.v.SetDefault("storage.local_dir", defaults.Storage.LocalDir)
	l.v.SetDefault("storage.bucket", defaults.Storage.Bucket)
	l.v.SetDefault("storage.region", defaults.Storage.Region)
	l.v.SetDefault("storage.endpoint", defaults.Storage.Endpoint)

	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.cors_origin", defaults.Server.CORSOrigin)
	l.v.SetDefault("server.timeout_sec", defaults.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
}

// GenerateDefaultConfigFile writes a config file populated with the default
// values, to fieldlens.yaml when no filename is given.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoader()
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}

	return loader.v.WriteConfigAs(filename)
}

// GetConfigSearchPaths lists the directories searched for a config file, in
// precedence order: working directory, home, XDG config dir, then /etc.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, "/etc/"+ConfigFileName)
}
