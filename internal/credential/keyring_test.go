package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useArrayKeyring(t *testing.T) {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	orig := openFunc
	openFunc = func(keyring.Config) (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { openFunc = orig })
}

func TestSetGetDelete(t *testing.T) {
	useArrayKeyring(t)

	require.NoError(t, Set(GmailKey, `{"token":"t"}`))
	got, err := GmailCredentials()
	require.NoError(t, err)
	assert.Equal(t, `{"token":"t"}`, got)

	require.NoError(t, Delete(GmailKey))
	_, err = Get(GmailKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilePasswordFromEnv(t *testing.T) {
	t.Setenv(envFilePassword, "from-env")
	pw, err := filePassword("prompt")
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)
}
