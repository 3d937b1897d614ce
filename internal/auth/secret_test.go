package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSecretHashRoundTrip verifies the right secret matches and a wrong one
// fails without error.
func TestSecretHashRoundTrip(t *testing.T) {
	encoded, err := CreateSecretHash("hunter2", Params)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := CompareSecretAndHash("hunter2", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CompareSecretAndHash("hunter3", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestMalformedHashRejected covers the decode error paths.
func TestMalformedHashRejected(t *testing.T) {
	_, err := CompareSecretAndHash("x", "not-a-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)

	encoded, err := CreateSecretHash("x", Params)
	require.NoError(t, err)

	// Bump the embedded version number to something incompatible.
	tampered := strings.Replace(encoded, "$v=", "$v=9", 1)
	_, err = CompareSecretAndHash("x", tampered)
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}
