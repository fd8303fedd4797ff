package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "visd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Visualization.Port)
	assert.Equal(t, 0, cfg.Visualization.MaxClients)
	assert.Equal(t, "", cfg.Visualization.BindAddress)
	assert.Equal(t, 3*time.Second, cfg.Visualization.ReapInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
visualization:
  max_clients: 4
  bind_to_address: 127.0.0.1
  port: 9100
  reap_interval: 500ms
log:
  level: debug
  format: json
audio:
  sample_rate: 48000
  channels: 1
  bit_depth: 24
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Visualization.MaxClients)
	assert.Equal(t, "127.0.0.1", cfg.Visualization.BindAddress)
	assert.Equal(t, 9100, cfg.Visualization.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Visualization.ReapInterval)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, 1, cfg.Audio.Channels)
	assert.Equal(t, 24, cfg.Audio.BitDepth)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VISD_VISUALIZATION_PORT", "9200")
	t.Setenv("VISD_VISUALIZATION_MAX_CLIENTS", "7")

	cfg, err := Load(writeConfig(t, "visualization:\n  port: 9100\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Visualization.Port)
	assert.Equal(t, 7, cfg.Visualization.MaxClients)
}

func TestLoadFlagOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	flags.String("bind", "", "")
	require.NoError(t, flags.Parse([]string{"--port", "9300", "--bind", "/tmp/vis.sock"}))

	cfg, err := Load(writeConfig(t, "visualization:\n  port: 9100\n"), flags)
	require.NoError(t, err)
	assert.Equal(t, 9300, cfg.Visualization.Port)
	assert.Equal(t, "/tmp/vis.sock", cfg.Visualization.BindAddress)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative max clients", func(c *Config) { c.Visualization.MaxClients = -1 }},
		{"port too large", func(c *Config) { c.Visualization.Port = 70000 }},
		{"reap interval too short", func(c *Config) { c.Visualization.ReapInterval = time.Millisecond }},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"status without listen", func(c *Config) { c.Status = StatusConfig{Enabled: true} }},
		{"mdns without name", func(c *Config) { c.MDNS = MDNSConfig{Enabled: true} }},
		{"bad tone format", func(c *Config) { c.Audio.BitDepth = 12 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Visualization.MaxClients = 3

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "max_clients: 3")
	assert.Contains(t, string(out), "reap_interval: 3s")

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Contains(t, back, "visualization")
	assert.Contains(t, back, "audio")

	path := writeConfig(t, string(out))
	loaded, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}
