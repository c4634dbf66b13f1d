package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldlens-tech/fieldlens/internal/ensemble"
	"github.com/fieldlens-tech/fieldlens/internal/geometric"
	"github.com/fieldlens-tech/fieldlens/internal/render"
	"github.com/fieldlens-tech/fieldlens/internal/storage"
	"github.com/fieldlens-tech/fieldlens/internal/textfilter"
	"github.com/fieldlens-tech/fieldlens/internal/vision"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Verbose)
	assert.InDelta(t, render.DefaultDPI, cfg.Pipeline.RenderDPI, 0.001)
	assert.InDelta(t, ensemble.DefaultConfig().IoUThreshold, cfg.Pipeline.Merger.IoUThreshold, 0.001)
	assert.InDelta(t, textfilter.DefaultConfig().OverlapThreshold, cfg.Pipeline.TextFilter.OverlapThreshold, 0.001)
	assert.False(t, cfg.Pipeline.TextFilter.Enabled)
	assert.Empty(t, cfg.Pipeline.Vision.Provider)
	assert.Equal(t, storage.BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, 8080, cfg.Server.Port)

	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default config is valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: "invalid log level",
		},
		{
			name:    "zero render dpi",
			mutate:  func(c *Config) { c.Pipeline.RenderDPI = 0 },
			wantErr: "invalid render dpi",
		},
		{
			name:    "iou threshold out of range",
			mutate:  func(c *Config) { c.Pipeline.Merger.IoUThreshold = 1.5 },
			wantErr: "merger.iou_threshold",
		},
		{
			name:    "overlap threshold negative",
			mutate:  func(c *Config) { c.Pipeline.TextFilter.OverlapThreshold = -0.1 },
			wantErr: "text_filter.overlap_threshold",
		},
		{
			name:    "unknown vision provider",
			mutate:  func(c *Config) { c.Pipeline.Vision.Provider = "azure" },
			wantErr: "invalid vision provider",
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *Config) { c.Storage.Backend = "ftp" },
			wantErr: "invalid storage backend",
		},
		{
			name: "s3 backend without bucket",
			mutate: func(c *Config) {
				c.Storage.Backend = storage.BackendS3
				c.Storage.Bucket = ""
			},
			wantErr: "requires a bucket",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Server.TimeoutSec = 0 },
			wantErr: "invalid timeout",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "invalid shutdown timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.RenderDPI = 200
	cfg.Pipeline.Merger.IoUThreshold = 0.4
	cfg.Pipeline.TextFilter.Enabled = true
	cfg.Pipeline.TextFilter.OverlapThreshold = 0.5
	cfg.Pipeline.Vision.Provider = vision.ProviderOpenAI
	cfg.Pipeline.Vision.APIKey = "sk-test"
	cfg.Pipeline.Vision.Model = "gpt-4o"

	pc := cfg.ToPipelineConfig()

	assert.InDelta(t, 200.0, pc.RenderDPI, 0.001)
	assert.InDelta(t, 0.4, pc.Merger.IoUThreshold, 0.001)
	assert.True(t, pc.EnableTextFilter)
	assert.InDelta(t, 0.5, pc.TextFilter.OverlapThreshold, 0.001)
	assert.Equal(t, vision.ProviderOpenAI, pc.Vision.Provider)
	assert.Equal(t, "sk-test", pc.Vision.APIKey)
	assert.Equal(t, "gpt-4o", pc.Vision.Model)

	// Zero geometric ratios fall back to detector defaults
	assert.InDelta(t, geometric.DefaultConfig().MinFieldWidthRatio, pc.Geometric.MinFieldWidthRatio, 0.0001)
	assert.InDelta(t, vision.DefaultDPI, pc.Vision.DPI, 0.001)
}

func TestToStorageConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage = StorageConfig{
		Backend:   storage.BackendS3,
		Bucket:    "forms",
		Region:    "eu-central-1",
		Endpoint:  "http://localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
	}

	sc := cfg.ToStorageConfig()

	assert.Equal(t, storage.BackendS3, sc.Backend)
	assert.Equal(t, "forms", sc.Bucket)
	assert.Equal(t, "eu-central-1", sc.Region)
	assert.Equal(t, "http://localhost:9000", sc.Endpoint)
	assert.Equal(t, "minio", sc.AccessKey)
	assert.Equal(t, "minio123", sc.SecretKey)
}

func TestToServerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 9090
	cfg.Server.CORSOrigin = "https://app.example.com"
	cfg.Server.TimeoutSec = 60

	sc := cfg.ToServerConfig()

	assert.Equal(t, "127.0.0.1", sc.Host)
	assert.Equal(t, 9090, sc.Port)
	assert.Equal(t, "https://app.example.com", sc.CORSOrigin)
	assert.Equal(t, 60, sc.TimeoutSec)
	assert.Equal(t, "127.0.0.1:9090", sc.Addr())
}

func TestResolveVisionKey(t *testing.T) {
	t.Run("openai fallback", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-env")
		cfg := DefaultConfig()
		cfg.Pipeline.Vision.Provider = vision.ProviderOpenAI

		resolveVisionKey(&cfg)

		assert.Equal(t, "sk-env", cfg.Pipeline.Vision.APIKey)
	})

	t.Run("gemini fallback", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "g-env")
		cfg := DefaultConfig()
		cfg.Pipeline.Vision.Provider = vision.ProviderGemini

		resolveVisionKey(&cfg)

		assert.Equal(t, "g-env", cfg.Pipeline.Vision.APIKey)
	})

	t.Run("explicit key wins", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-env")
		cfg := DefaultConfig()
		cfg.Pipeline.Vision.Provider = vision.ProviderOpenAI
		cfg.Pipeline.Vision.APIKey = "sk-explicit"

		resolveVisionKey(&cfg)

		assert.Equal(t, "sk-explicit", cfg.Pipeline.Vision.APIKey)
	})

	t.Run("no provider no key", func(t *testing.T) {
		cfg := DefaultConfig()

		resolveVisionKey(&cfg)

		assert.Empty(t, cfg.Pipeline.Vision.APIKey)
	})
}
