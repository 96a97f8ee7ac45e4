package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("recall", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(parse(t))
	require.NoError(t, err)

	assert.Equal(t, &Config{
		DB:       "recall.db",
		Addr:     ":8080",
		LogLevel: "info",
		DueLimit: 100,
		NewLimit: 100,
		Seed:     true,
		ReposDir: "repos",
	}, cfg)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, "db: file.db\ndue-limit: 20\nnew-limit: 5\nlog-level: debug\n")

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := Load(parse(t, "--config", path))
		require.NoError(t, err)
		assert.Equal(t, "file.db", cfg.DB)
		assert.Equal(t, 20, cfg.DueLimit)
		assert.Equal(t, 5, cfg.NewLimit)
		assert.Equal(t, ":8080", cfg.Addr)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("RECALL_DUE_LIMIT", "30")
		t.Setenv("RECALL_SEED", "false")
		cfg, err := Load(parse(t, "--config", path))
		require.NoError(t, err)
		assert.Equal(t, 30, cfg.DueLimit)
		assert.False(t, cfg.Seed)
		assert.Equal(t, "file.db", cfg.DB)
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("RECALL_DUE_LIMIT", "30")
		cfg, err := Load(parse(t, "--config", path, "--due-limit", "7", "--db", ":memory:"))
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.DueLimit)
		assert.Equal(t, ":memory:", cfg.DB)
	})
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(parse(t, "--new-limit", "-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NewLimit")

	_, err = Load(parse(t, "--log-level", "loud"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LogLevel")

	_, err = Load(parse(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		cfg := Config{LogLevel: name}
		assert.Equal(t, want, cfg.Level(), name)
	}
}
