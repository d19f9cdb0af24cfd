package commands

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandContentCacheDir_ExpandsHomePrefix(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	assert.Equal(t, home+"/.explorer/content", expandContentCacheDir("~/.explorer/content"))
}

func TestExpandContentCacheDir_LeavesAbsolutePathUnchanged(t *testing.T) {
	assert.Equal(t, "/var/lib/explorer/content", expandContentCacheDir("/var/lib/explorer/content"))
}
