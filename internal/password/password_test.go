package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	for _, p := range []string{"2301769", "", "pässwörd", strings.Repeat("x", 72)} {
		digest, err := h.Hash(p)
		require.NoError(t, err)
		assert.NotEqual(t, p, digest)
		assert.True(t, h.Verify(p, digest), "verify(%q, hash(%q))", p, p)
	}
}

func TestHashUsesFreshSalt(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	first, err := h.Hash("2301769")
	require.NoError(t, err)
	second, err := h.Hash("2301769")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, h.Verify("2301769", first))
	assert.True(t, h.Verify("2301769", second))
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	digest, err := h.Hash("2301769")
	require.NoError(t, err)

	assert.False(t, h.Verify("2301768", digest))
	assert.False(t, h.Verify("", digest))
}

func TestVerifyRejectsMalformedDigest(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	assert.False(t, h.Verify("2301769", ""))
	assert.False(t, h.Verify("2301769", "2301769"))
	assert.False(t, h.Verify("2301769", "$2a$10$notarealhash"))
}

func TestHashRejectsTooLong(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	_, err := h.Hash(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestNewHasherClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.MinCost, NewHasher(1).cost)
	assert.Equal(t, bcrypt.MaxCost, NewHasher(99).cost)

	digest, err := NewHasher(0).Hash("2301769")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(digest))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}
