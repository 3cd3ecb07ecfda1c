package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/auth"
	"github.com/daviddao/mailtriage/internal/config"
)

func TestOpenMailboxWithoutCredentials(t *testing.T) {
	t.Setenv(auth.EnvCredentials, "")
	cfg := config.DefaultConfig()
	cfg.Store.Path = StoreDisabled

	_, err := OpenMailbox(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.True(t, IsInitError(err))
	assert.ErrorIs(t, err, auth.ErrMissingCredentials)
}

func TestOpenMailboxIncompleteCredentials(t *testing.T) {
	t.Setenv(auth.EnvCredentials, `{"token":"t","client_id":"c"}`)
	cfg := config.DefaultConfig()
	cfg.Store.Path = StoreDisabled

	_, err := OpenMailbox(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.True(t, IsInitError(err))

	var mf *auth.MissingFieldsError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, []string{"refresh_token", "token_uri", "client_secret"}, mf.Fields)
}

func TestOpenMailboxRejectsUnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mailbox.Backend = "pop3"
	_, err := OpenMailbox(context.Background(), cfg, zap.NewNop())
	assert.True(t, IsInitError(err))
}

func TestOpenMailboxIMAPNeedsHost(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mailbox.Backend = config.BackendIMAP
	_, err := OpenMailbox(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.True(t, IsInitError(err))
	assert.Contains(t, err.Error(), "imap.host")
}

func TestGmailSource(t *testing.T) {
	t.Setenv(auth.EnvCredentials, "{}")
	cfg := config.DefaultConfig()
	cfg.Mailbox.CredentialsFile = "/tmp/credentials.json"

	src := GmailSource(cfg)
	assert.Equal(t, "{}", src.JSON)
	assert.Equal(t, "/tmp/credentials.json", src.CredentialsPath)
	assert.Nil(t, src.Keyring)

	cfg.Mailbox.UseKeyring = true
	assert.NotNil(t, GmailSource(cfg).Keyring)
}

func TestOpenLabelCache(t *testing.T) {
	assert.Nil(t, OpenLabelCache(StoreDisabled, zap.NewNop()))

	path := filepath.Join(t.TempDir(), "labels.db")
	store := OpenLabelCache(path, zap.NewNop())
	require.NotNil(t, store)
	defer store.Close()
	assert.Equal(t, path, store.Path())
}

func TestIsInitError(t *testing.T) {
	err := fmt.Errorf("run: %w", &InitError{Err: errors.New("boom")})
	assert.True(t, IsInitError(err))
	assert.Equal(t, "run: initialization failed: boom", err.Error())
	assert.False(t, IsInitError(errors.New("boom")))
}
