package credential_test

import (
	"taskflow/internal/credential"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	store := credential.New(keyring.NewArrayKeyring(nil))

	_, err := store.APIKey()
	assert.ErrorIs(t, err, credential.ErrNotFound)

	require.NoError(t, store.Set(credential.ParserKey, "sk-test"))
	key, err := store.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)

	require.NoError(t, store.Delete(credential.ParserKey))
	require.NoError(t, store.Delete(credential.ParserKey))
	_, err = store.Get(credential.ParserKey)
	assert.ErrorIs(t, err, credential.ErrNotFound)
}
