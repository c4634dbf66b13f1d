package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fieldlens-tech/fieldlens/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCommand(t *testing.T) {
	assert.NotNil(t, configCmd)
	assert.Equal(t, "config", configCmd.Use)

	subcommands := configCmd.Commands()
	names := make([]string, len(subcommands))
	for i, subcmd := range subcommands {
		names[i] = subcmd.Name()
	}
	assert.Contains(t, names, "show")
	assert.Contains(t, names, "init")
	assert.Contains(t, names, "paths")
}

func TestConfigShowCommand(t *testing.T) {
	root := GetRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"config", "show"})

	require.NoError(t, root.Execute())

	output := buf.String()
	assert.Contains(t, output, "log_level:")
	assert.Contains(t, output, "pipeline:")
	assert.Contains(t, output, "render_dpi:")
	assert.Contains(t, output, "server:")
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldlens.yaml")

	root := GetRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"config", "init", path})

	require.NoError(t, root.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "log_level")
	assert.Contains(t, buf.String(), path)
}

func TestConfigPathsCommand(t *testing.T) {
	root := GetRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"config", "paths"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), ".")
	assert.Contains(t, buf.String(), "/etc/fieldlens")
}

func TestRedactSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pipeline.Vision.APIKey = "sk-secret"
	cfg.Storage.AccessKey = "AKIA123"
	cfg.Storage.SecretKey = "shhh"
	cfg.Database.URL = "postgres://worker:hunter2@db:5432/fieldlens?sslmode=disable"

	redactSecrets(&cfg)

	assert.Equal(t, "[redacted]", cfg.Pipeline.Vision.APIKey)
	assert.Equal(t, "[redacted]", cfg.Storage.AccessKey)
	assert.Equal(t, "[redacted]", cfg.Storage.SecretKey)
	assert.NotContains(t, cfg.Database.URL, "hunter2")
	assert.Contains(t, cfg.Database.URL, "worker")
}

func TestRedactDSNPassword(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "url with password",
			dsn:  "postgres://worker:hunter2@db:5432/fieldlens",
			want: "postgres://worker:redacted@db:5432/fieldlens",
		},
		{
			name: "url without password",
			dsn:  "postgres://db:5432/fieldlens",
			want: "postgres://db:5432/fieldlens",
		},
		{
			name: "empty",
			dsn:  "",
			want: "",
		},
		{
			name: "keyword form untouched",
			dsn:  "host=localhost dbname=fieldlens",
			want: "host=localhost dbname=fieldlens",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, redactDSNPassword(tt.dsn))
		})
	}
}
