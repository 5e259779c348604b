package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	h, err := NewHasher(testParams())
	require.NoError(t, err)

	encoded, err := h.Hash("correct horse battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := h.Verify("correct horse battery", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong horse battery", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashRejectsShortPassword(t *testing.T) {
	h, err := NewHasher(testParams())
	require.NoError(t, err)

	_, err = h.Hash("short")
	assert.Error(t, err)
}

func TestHashesAreSalted(t *testing.T) {
	h, err := NewHasher(testParams())
	require.NoError(t, err)

	a, err := h.Hash("same password here")
	require.NoError(t, err)
	b, err := h.Hash("same password here")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestNeedsUpgrade(t *testing.T) {
	weak, err := NewHasher(testParams())
	require.NoError(t, err)

	encoded, err := weak.Hash("long enough password")
	require.NoError(t, err)

	stronger := testParams()
	stronger.Memory = 64 * 1024
	strong, err := NewHasher(stronger)
	require.NoError(t, err)

	needs, err := strong.NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.True(t, needs)

	needs, err = weak.NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	h, err := NewHasher(testParams())
	require.NoError(t, err)

	for _, bad := range []string{
		"",
		"not-a-phc-string",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	} {
		_, err := h.Verify("whatever password", bad)
		assert.Error(t, err, bad)
	}
}

func TestNewHasherValidatesParams(t *testing.T) {
	p := testParams()
	p.Memory = 1024
	_, err := NewHasher(p)
	assert.Error(t, err)
}
