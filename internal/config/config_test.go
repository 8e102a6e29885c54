package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultDBURL, cfg.DBURL)
	assert.Equal(t, "8083", cfg.OrchPort)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, "@every 10s", cfg.ReconcileSchedule)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.False(t, cfg.StrictGlobs)
}

func TestLoad_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_URL", "postgresql://x@db/x")
	t.Setenv("ORCH_PORT", "9000")
	t.Setenv("POLL_INTERVAL", "3s")
	t.Setenv("STRICT_GLOBS", "true")
	t.Setenv("BATCH_SIZE", "5")
	t.Setenv("DATA_ROOT", "/srv/batchflow")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgresql://x@db/x", cfg.DBURL)
	assert.Equal(t, "9000", cfg.OrchPort)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.True(t, cfg.StrictGlobs)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, "/srv/batchflow", cfg.DataRoot)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	data := "orch_port: \"7000\"\nreconcile_schedule: \"*/5 * * * *\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "batchflow.yaml"), []byte(data), 0o644))

	// Окружение важнее файла
	t.Setenv("ORCH_PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7001", cfg.OrchPort)
	assert.Equal(t, "*/5 * * * *", cfg.ReconcileSchedule)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			DataRoot:          "/data",
			PollInterval:      time.Second,
			BatchSize:         1,
			DBMaxConns:        1,
			ReconcileSchedule: "@every 1m",
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"relative data root", func(c *Config) { c.DataRoot = "data" }},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"zero db conns", func(c *Config) { c.DBMaxConns = 0 }},
		{"bad schedule", func(c *Config) { c.ReconcileSchedule = "every minute" }},
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}
