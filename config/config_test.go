package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, FormatText, cfg.Format)
	assert.Positive(t, cfg.Parallel)
	assert.InDelta(t, 0.5, cfg.ShiftThreshold, 1e-9)
	assert.Contains(t, cfg.Extensions, ".txt.gz")
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.Console.Enabled)
	assert.Zero(t, cfg.StatusPort)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ZONEDIFF_FORMAT", "JSON")
	t.Setenv("ZONEDIFF_PARALLEL", "3")
	t.Setenv("ZONEDIFF_INHERIT_TTL", "true")
	t.Setenv("ZONEDIFF_LOG_LEVEL", "debug")

	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.Equal(t, 3, cfg.Parallel)
	assert.True(t, cfg.InheritTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zonediff.yaml")
	content := `origin: example.com.
format: yaml
sorted: true
shift_threshold: 0.25
extensions:
  - .zone
log:
  level: warn
  file:
    enabled: true
    path: /var/log/zonediff
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	SetDefaults(v)
	require.NoError(t, ReadFile(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "example.com.", cfg.Origin)
	assert.Equal(t, FormatYAML, cfg.Format)
	assert.True(t, cfg.Sorted)
	assert.InDelta(t, 0.25, cfg.ShiftThreshold, 1e-9)
	assert.Equal(t, []string{".zone"}, cfg.Extensions)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Log.File.Enabled)
	assert.Equal(t, "/var/log/zonediff", cfg.Log.File.Path)
	assert.Equal(t, 100, cfg.Log.File.MaxSize)

	assert.Error(t, ReadFile(viper.New(), filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
		err  error
	}{
		{"zero parallel", "parallel", 0, ErrParallel},
		{"bad format", "format", "xml", ErrFormat},
		{"negative threshold", "shift_threshold", -0.1, ErrThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
