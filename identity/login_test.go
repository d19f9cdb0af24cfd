package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPreviousLogin_MissingFileReturnsNilNoError(t *testing.T) {
	dir := t.TempDir()
	login, err := LoadPreviousLogin(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Nil(t, login)
}

func TestSaveThenLoadPreviousLogin_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "login.json")

	pub, priv, err := GenerateEphemeralKey()
	require.NoError(t, err)

	var addr Address
	addr[0] = 7
	original := &PreviousLogin{
		Address:       addr,
		EphemeralPub:  pub,
		EphemeralPriv: priv,
		AuthChainJSON: `[{"type":"SIGNER"}]`,
	}

	require.NoError(t, SavePreviousLogin(path, original))

	loaded, err := LoadPreviousLogin(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, original.Address, loaded.Address)
	assert.Equal(t, original.AuthChainJSON, loaded.AuthChainJSON)
	assert.Equal(t, []byte(original.EphemeralPub), []byte(loaded.EphemeralPub))
}
