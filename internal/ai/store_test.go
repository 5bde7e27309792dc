package ai

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *PolicyStore {
	t.Helper()
	s, err := OpenPolicyStore(filepath.Join(t.TempDir(), "data", "ai.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPolicyStoreSaveLoad(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save("AbCdEfGhIj", "s3cret", "random", []byte(`{"seed":42}`)))

	secret, policy, state, err := s.Load("AbCdEfGhIj")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", secret)
	assert.Equal(t, "random", policy)
	assert.JSONEq(t, `{"seed":42}`, string(state))
}

func TestPolicyStoreSaveOverwrites(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save("AbCdEfGhIj", "s3cret", "random", []byte(`{"seed":1}`)))
	require.NoError(t, s.Save("AbCdEfGhIj", "s3cret", "random", []byte(`{"seed":2}`)))

	_, _, state, err := s.Load("AbCdEfGhIj")
	require.NoError(t, err)
	assert.JSONEq(t, `{"seed":2}`, string(state))

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"AbCdEfGhIj"}, keys)
}

func TestPolicyStoreLoadMissing(t *testing.T) {
	s := openTestStore(t)

	_, _, _, err := s.Load("nosuchkey1")
	assert.ErrorIs(t, err, ErrNoState)
}

func TestPolicyStoreDelete(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save("AbCdEfGhIj", "s3cret", "random", []byte(`{}`)))
	require.NoError(t, s.Delete("AbCdEfGhIj"))
	require.NoError(t, s.Delete("AbCdEfGhIj"), "deleting twice is fine")

	_, _, _, err := s.Load("AbCdEfGhIj")
	assert.ErrorIs(t, err, ErrNoState)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}
