package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("toml", func(t *testing.T) {
		path := writeConfig(t, "stress.toml", `
duration = "3s"
entities = 500

[logging]
format = "json"

[jobs]
workers = 3
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 3*time.Second, cfg.Duration)
		assert.Equal(t, 500, cfg.Entities)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, "info", cfg.Logging.Level, "unset values keep their defaults")
		assert.Equal(t, 3, cfg.Jobs.Workers)
		assert.Equal(t, defaults().Jobs.QueueCapacity, cfg.Jobs.QueueCapacity)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("yaml", func(t *testing.T) {
		path := writeConfig(t, "stress.yaml", `
duration: 250ms
systems: 4
profile: cpu
jobs:
  queue_capacity: 1024
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 250*time.Millisecond, cfg.Duration)
		assert.Equal(t, 4, cfg.Systems)
		assert.Equal(t, "cpu", cfg.Profile)
		assert.Equal(t, 1024, cfg.Jobs.QueueCapacity)
		assert.Equal(t, defaults().Components, cfg.Components)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
		assert.ErrorContains(t, err, "read config")

		_, err = Load(writeConfig(t, "stress.json", `{}`))
		assert.ErrorContains(t, err, "unsupported format")

		_, err = Load(writeConfig(t, "bad.toml", `duration = [`))
		assert.ErrorContains(t, err, "parse config")
	})
}

func TestValidate(t *testing.T) {
	assert.NoError(t, defaults().Validate())

	cfg := defaults()
	cfg.Duration = 0
	cfg.Components = maxGeneratedComps + 1
	cfg.Profile = "heap"
	cfg.Logging.Format = "xml"
	cfg.Jobs.QueueCapacity = 1000

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 5)
	assert.ErrorContains(t, err, "duration must be positive")
	assert.ErrorContains(t, err, `unknown profile mode "heap"`)
	assert.ErrorContains(t, err, "queue_capacity must be a power of two")
}
