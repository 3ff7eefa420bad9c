package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$"))

	assert.True(t, Verify("correct horse", encoded))
	assert.False(t, Verify("wrong horse", encoded))
}

func TestHashRejectsShortPassword(t *testing.T) {
	_, err := Hash("short")
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	assert.False(t, Verify("anything", "not-a-hash"))
	assert.False(t, Verify("anything", "$argon2id$v=19$m=1$salt$hash"))
}
