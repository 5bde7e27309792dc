package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSecret(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "machine-id")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadServerID(t *testing.T) {
	path := writeSecret(t, "e2fd8c9a41af4a3d9ab2d8f84d51a5c7\n")

	id, err := LoadServerID(path)
	require.NoError(t, err)
	assert.Len(t, id, 64, "sha256 hex digest")
	assert.NotContains(t, id, "e2fd8c9a", "raw secret must not leak into the id")

	// stable across reads
	again, err := LoadServerID(path)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestLoadServerIDUsesFirstLineOnly(t *testing.T) {
	a, err := LoadServerID(writeSecret(t, "secret\n"))
	require.NoError(t, err)
	b, err := LoadServerID(writeSecret(t, "secret\ntrailing junk\n"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLoadServerIDMissingFile(t *testing.T) {
	_, err := LoadServerID(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoadServerIDEmptySecret(t *testing.T) {
	_, err := LoadServerID(writeSecret(t, "\n"))
	assert.Error(t, err)
}
