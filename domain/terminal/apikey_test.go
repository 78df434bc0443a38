package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey_UniqueAndOpaque(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 48)
}

func TestHashAPIKey_StableDigest(t *testing.T) {
	digest := HashAPIKey("secret-key")
	assert.Equal(t, digest, HashAPIKey("secret-key"))
	assert.NotEqual(t, digest, HashAPIKey("other-key"))
	assert.NotContains(t, digest, "secret")
}

func TestVerifyAPIKey(t *testing.T) {
	digest := HashAPIKey("secret-key")
	assert.True(t, VerifyAPIKey(digest, "secret-key"))
	assert.False(t, VerifyAPIKey(digest, "wrong-key"))
}
