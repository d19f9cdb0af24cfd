package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "explorer.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[realm]
url = "https://example.test"
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test", cfg.Realm.URL)
	assert.Equal(t, 4, cfg.Realm.LoadDistance)
	assert.Equal(t, 16, cfg.Scheduler.FrameBudgetMS)
	assert.Equal(t, 3, cfg.Transport.ConnectAttempts)
}

func TestLoadFromFile_InvalidRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "explorer.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[scheduler]
frame_budget_ms = 0
`), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	good, err := LoadFromFile(writeTempConfig(t, ""))
	require.NoError(t, err)
	require.NoError(t, good.Validate())

	good.Realm.LoadDistance = 0
	assert.Error(t, good.Validate())
}

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "explorer.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}
