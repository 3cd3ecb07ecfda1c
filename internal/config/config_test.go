package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, Validate(cfg))
}

func TestLoadConfigWithEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Mailbox.Backend = BackendIMAP
	cfg.IMAP.Host = "imap.example.com"
	cfg.IMAP.Username = "user@example.com"
	cfg.IMAP.Password = "secret"
	cfg.Run.Window = 2 * time.Hour

	path, err := Save(cfg, "")
	require.NoError(t, err)

	t.Setenv("MAILTRIAGE_IMAP_HOST", "env.imap.local")
	t.Setenv("MAILTRIAGE_RUN_CONCURRENCY", "4")

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "env.imap.local", loaded.IMAP.Host)
	assert.Equal(t, 4, loaded.Run.Concurrency)
	assert.Equal(t, 2*time.Hour, loaded.Run.Window)
	assert.Equal(t, "secret", loaded.IMAP.Password)
	assert.NoError(t, Validate(loaded))
}

func TestLoadFileRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := Save(DefaultConfig(), path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("run: [unclosed"), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mailbox.Backend = "pop3"
	assert.ErrorContains(t, Validate(cfg), "mailbox.backend")

	cfg = DefaultConfig()
	cfg.Mailbox.Backend = BackendIMAP
	assert.ErrorContains(t, Validate(cfg), "imap.host")

	cfg = DefaultConfig()
	cfg.Run.Concurrency = 0
	assert.ErrorContains(t, Validate(cfg), "run.concurrency")

	cfg = DefaultConfig()
	cfg.Run.Window = 0
	assert.ErrorContains(t, Validate(cfg), "run.window")
}

func TestRedact(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IMAP.Password = "secret"

	masked := Redact(cfg)
	assert.Equal(t, "****", masked.IMAP.Password)
	assert.Equal(t, "secret", cfg.IMAP.Password)
}
