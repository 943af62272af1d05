package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 2, cfg.MailboxCapacity)
	assert.Equal(t, uint16(10), cfg.IDMin)
	assert.Equal(t, uint16(999), cfg.IDMax)
	assert.Equal(t, 100, cfg.IDAllocMaxRetries)
}

func TestLoad(t *testing.T) {
	t.Run("NoFileUsesDefaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("MissingFileFallsBackToDefaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("FileOverridesDefaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("port: 9090\nlog_level: debug\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Port)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 2, cfg.MailboxCapacity, "fields absent from the file keep their default")
	})

	t.Run("EnvOverridesFile", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("port: 9090\n"), 0o600))

		t.Setenv("PORT", "7070")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Port)
	})

	t.Run("InvalidIDRangeRejected", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("id_min: 500\nid_max: 10\n"), 0o600))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("InvalidMailboxCapacityRejected", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mailbox_capacity: 0\n"), 0o600))

		_, err := Load(path)
		assert.Error(t, err)
	})
}
