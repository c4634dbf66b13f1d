package config

import (
	"fmt"
	"strings"

	"github.com/fieldlens-tech/fieldlens/internal/ensemble"
	"github.com/fieldlens-tech/fieldlens/internal/geometric"
	"github.com/fieldlens-tech/fieldlens/internal/pipeline"
	"github.com/fieldlens-tech/fieldlens/internal/render"
	"github.com/fieldlens-tech/fieldlens/internal/server"
	"github.com/fieldlens-tech/fieldlens/internal/storage"
	"github.com/fieldlens-tech/fieldlens/internal/textfilter"
	"github.com/fieldlens-tech/fieldlens/internal/vision"
)

// Config represents the complete configuration for the fieldlens service.
// It covers all commands (detect, process, serve) and supports loading from
// configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Detection pipeline configuration
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`

	// Database configuration (for process and serve commands)
	Database DatabaseConfig `mapstructure:"database" yaml:"database" json:"database"`

	// Document storage configuration
	Storage StorageConfig `mapstructure:"storage" yaml:"storage" json:"storage"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// PipelineConfig contains field detection pipeline settings.
type PipelineConfig struct {
	// Rasterization resolution for the geometric pass
	RenderDPI float64 `mapstructure:"render_dpi" yaml:"render_dpi" json:"render_dpi"`

	// Concurrent page scans in the geometric pass (0 = one per CPU)
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`

	// Geometric detector settings
	Geometric GeometricConfig `mapstructure:"geometric" yaml:"geometric" json:"geometric"`

	// Vision detector settings
	Vision VisionConfig `mapstructure:"vision" yaml:"vision" json:"vision"`

	// Detection merger settings
	Merger MergerConfig `mapstructure:"merger" yaml:"merger" json:"merger"`

	// Printed-text overlap filter settings
	TextFilter TextFilterConfig `mapstructure:"text_filter" yaml:"text_filter" json:"text_filter"`
}

// GeometricConfig contains geometric detector settings.
type GeometricConfig struct {
	MinFieldWidthRatio  float64 `mapstructure:"min_field_width_ratio" yaml:"min_field_width_ratio" json:"min_field_width_ratio"`
	MinFieldHeightRatio float64 `mapstructure:"min_field_height_ratio" yaml:"min_field_height_ratio" json:"min_field_height_ratio"`
	MaxFieldHeightRatio float64 `mapstructure:"max_field_height_ratio" yaml:"max_field_height_ratio" json:"max_field_height_ratio"`
}

// VisionConfig contains vision detector settings.
type VisionConfig struct {
	Provider   string  `mapstructure:"provider" yaml:"provider" json:"provider"`
	APIKey     string  `mapstructure:"api_key" yaml:"api_key" json:"-"`
	Model      string  `mapstructure:"model" yaml:"model" json:"model"`
	DPI        float64 `mapstructure:"dpi" yaml:"dpi" json:"dpi"`
	Confidence float64 `mapstructure:"confidence" yaml:"confidence" json:"confidence"`
}

// MergerConfig contains detection merger settings.
type MergerConfig struct {
	IoUThreshold float64 `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold"`
}

// TextFilterConfig contains printed-text overlap filter settings.
type TextFilterConfig struct {
	Enabled          bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	OverlapThreshold float64 `mapstructure:"overlap_threshold" yaml:"overlap_threshold" json:"overlap_threshold"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url" json:"-"`
}

// StorageConfig contains document storage settings.
type StorageConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend" json:"backend"`
	LocalDir  string `mapstructure:"local_dir" yaml:"local_dir" json:"local_dir"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Region    string `mapstructure:"region" yaml:"region" json:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key" json:"-"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key" json:"-"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Pipeline: PipelineConfig{
			RenderDPI:  render.DefaultDPI,
			Geometric:  defaultGeometricConfig(),
			Vision:     defaultVisionConfig(),
			Merger:     defaultMergerConfig(),
			TextFilter: defaultTextFilterConfig(),
		},
		Storage: StorageConfig{
			Backend:  storage.BackendLocal,
			LocalDir: "data/storage",
			Region:   "us-east-1",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			CORSOrigin:      "*",
			TimeoutSec:      300,
			ShutdownTimeout: 10,
		},
	}
}

// defaultGeometricConfig returns default geometric detector configuration.
func defaultGeometricConfig() GeometricConfig {
	cfg := geometric.DefaultConfig()
	return GeometricConfig{
		MinFieldWidthRatio:  cfg.MinFieldWidthRatio,
		MinFieldHeightRatio: cfg.MinFieldHeightRatio,
		MaxFieldHeightRatio: cfg.MaxFieldHeightRatio,
	}
}

// defaultVisionConfig returns default vision detector configuration.
func defaultVisionConfig() VisionConfig {
	cfg := vision.DefaultConfig()
	return VisionConfig{
		DPI:        cfg.DPI,
		Confidence: cfg.Confidence,
	}
}

// defaultMergerConfig returns default merger configuration.
func defaultMergerConfig() MergerConfig {
	cfg := ensemble.DefaultConfig()
	return MergerConfig{IoUThreshold: cfg.IoUThreshold}
}

// defaultTextFilterConfig returns default text filter configuration.
func defaultTextFilterConfig() TextFilterConfig {
	cfg := textfilter.DefaultConfig()
	return TextFilterConfig{
		Enabled:          false,
		OverlapThreshold: cfg.OverlapThreshold,
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Pipeline.RenderDPI <= 0 {
		return fmt.Errorf("invalid render dpi: %g (must be positive)", c.Pipeline.RenderDPI)
	}

	if err := validateThreshold(c.Pipeline.Geometric.MinFieldWidthRatio, "geometric.min_field_width_ratio"); err != nil {
		return err
	}
	if err := validateThreshold(c.Pipeline.Geometric.MinFieldHeightRatio, "geometric.min_field_height_ratio"); err != nil {
		return err
	}
	if err := validateThreshold(c.Pipeline.Geometric.MaxFieldHeightRatio, "geometric.max_field_height_ratio"); err != nil {
		return err
	}
	if err := validateThreshold(c.Pipeline.Merger.IoUThreshold, "merger.iou_threshold"); err != nil {
		return err
	}
	if err := validateThreshold(c.Pipeline.TextFilter.OverlapThreshold, "text_filter.overlap_threshold"); err != nil {
		return err
	}
	if err := validateThreshold(c.Pipeline.Vision.Confidence, "vision.confidence"); err != nil {
		return err
	}

	validProviders := []string{"", vision.ProviderOpenAI, vision.ProviderGemini}
	if !contains(validProviders, c.Pipeline.Vision.Provider) {
		return fmt.Errorf("invalid vision provider: %s (must be one of: %s, %s)",
			c.Pipeline.Vision.Provider, vision.ProviderOpenAI, vision.ProviderGemini)
	}

	validBackends := []string{"", storage.BackendLocal, storage.BackendS3}
	if !contains(validBackends, c.Storage.Backend) {
		return fmt.Errorf("invalid storage backend: %s (must be one of: %s, %s)",
			c.Storage.Backend, storage.BackendLocal, storage.BackendS3)
	}
	if c.Storage.Backend == storage.BackendS3 && c.Storage.Bucket == "" {
		return fmt.Errorf("storage backend s3 requires a bucket")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must be positive)", c.Server.ShutdownTimeout)
	}

	return nil
}

// ToPipelineConfig converts the config to the internal pipeline configuration format.
func (c *Config) ToPipelineConfig() pipeline.Config {
	return pipeline.Config{
		RenderDPI:        c.Pipeline.RenderDPI,
		Workers:          c.Pipeline.Workers,
		Geometric:        c.toGeometricConfig(),
		Vision:           c.toVisionConfig(),
		Merger:           c.toMergerConfig(),
		TextFilter:       c.toTextFilterConfig(),
		EnableTextFilter: c.Pipeline.TextFilter.Enabled,
	}
}

// toGeometricConfig converts to geometric.Config.
func (c *Config) toGeometricConfig() geometric.Config {
	cfg := geometric.DefaultConfig()
	if c.Pipeline.Geometric.MinFieldWidthRatio > 0 {
		cfg.MinFieldWidthRatio = c.Pipeline.Geometric.MinFieldWidthRatio
	}
	if c.Pipeline.Geometric.MinFieldHeightRatio > 0 {
		cfg.MinFieldHeightRatio = c.Pipeline.Geometric.MinFieldHeightRatio
	}
	if c.Pipeline.Geometric.MaxFieldHeightRatio > 0 {
		cfg.MaxFieldHeightRatio = c.Pipeline.Geometric.MaxFieldHeightRatio
	}
	return cfg
}

// toVisionConfig converts to vision.Config.
func (c *Config) toVisionConfig() vision.Config {
	cfg := vision.DefaultConfig()
	cfg.Provider = c.Pipeline.Vision.Provider
	cfg.APIKey = c.Pipeline.Vision.APIKey
	cfg.Model = c.Pipeline.Vision.Model
	if c.Pipeline.Vision.DPI > 0 {
		cfg.DPI = c.Pipeline.Vision.DPI
	}
	if c.Pipeline.Vision.Confidence > 0 {
		cfg.Confidence = c.Pipeline.Vision.Confidence
	}
	return cfg
}

// toMergerConfig converts to ensemble.Config.
func (c *Config) toMergerConfig() ensemble.Config {
	cfg := ensemble.DefaultConfig()
	if c.Pipeline.Merger.IoUThreshold > 0 {
		cfg.IoUThreshold = c.Pipeline.Merger.IoUThreshold
	}
	return cfg
}

// toTextFilterConfig converts to textfilter.Config.
func (c *Config) toTextFilterConfig() textfilter.Config {
	cfg := textfilter.DefaultConfig()
	if c.Pipeline.TextFilter.OverlapThreshold > 0 {
		cfg.OverlapThreshold = c.Pipeline.TextFilter.OverlapThreshold
	}
	return cfg
}

// ToStorageConfig converts to storage.Config.
func (c *Config) ToStorageConfig() storage.Config {
	return storage.Config{
		Backend:   c.Storage.Backend,
		LocalDir:  c.Storage.LocalDir,
		Bucket:    c.Storage.Bucket,
		Region:    c.Storage.Region,
		Endpoint:  c.Storage.Endpoint,
		AccessKey: c.Storage.AccessKey,
		SecretKey: c.Storage.SecretKey,
	}
}

// ToServerConfig converts to server.Config.
func (c *Config) ToServerConfig() server.Config {
	return server.Config{
		Host:       c.Server.Host,
		Port:       c.Server.Port,
		CORSOrigin: c.Server.CORSOrigin,
		TimeoutSec: c.Server.TimeoutSec,
	}
}

// Helper functions

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
