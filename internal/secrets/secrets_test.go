package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelKeyRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	key, err := s.ModelKey()
	require.NoError(t, err)
	assert.Empty(t, key)

	require.NoError(t, s.SetModelKey("sk-test-123"))
	key, err = s.ModelKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", key)

	// The file holds the key by value with owner-only permissions.
	info, err := os.Stat(filepath.Join(s.Dir, modelKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSetModelKeyRequiresValue(t *testing.T) {
	s := NewStore(t.TempDir())
	assert.Error(t, s.SetModelKey(""))
}

func TestIntegrationKeyLifecycle(t *testing.T) {
	s := NewStore(t.TempDir())

	_, err := s.VerifyIntegrationKey("pl_whatever")
	assert.ErrorIs(t, err, ErrNoIntegrationKey)

	key, err := s.IssueIntegrationKey("alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, integrationPrefix))

	userID, err := s.VerifyIntegrationKey(key)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	_, err = s.VerifyIntegrationKey("pl_forged")
	assert.ErrorIs(t, err, ErrInvalidIntegrationKey)

	// Only the hash is persisted, never the plaintext.
	data, err := os.ReadFile(filepath.Join(s.Dir, integrationFile))
	require.NoError(t, err)
	assert.NotContains(t, string(data), key)

	require.NoError(t, s.RevokeIntegrationKey())
	_, err = s.VerifyIntegrationKey(key)
	assert.ErrorIs(t, err, ErrNoIntegrationKey)

	// Revoking twice is fine.
	require.NoError(t, s.RevokeIntegrationKey())
}

func TestReissueInvalidatesPreviousKey(t *testing.T) {
	s := NewStore(t.TempDir())

	first, err := s.IssueIntegrationKey("alice")
	require.NoError(t, err)
	second, err := s.IssueIntegrationKey("bob")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = s.VerifyIntegrationKey(first)
	assert.ErrorIs(t, err, ErrInvalidIntegrationKey)

	userID, err := s.VerifyIntegrationKey(second)
	require.NoError(t, err)
	assert.Equal(t, "bob", userID)
}
