package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractUnverifiedIdentity(t *testing.T) {
	t.Parallel()

	// alg=none, unsigned: the point is that no signature is checked at all.
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":   "user-123",
		"name":  "Ada",
		"email": "ada@example.com",
	})
	signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	identity, err := ExtractUnverifiedIdentity(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-123", identity.Subject)
	assert.Equal(t, "Ada", identity.Name)
	assert.Equal(t, "ada@example.com", identity.Email)
	assert.Equal(t, signed, identity.Token)
}

func TestExtractUnverifiedIdentityRequiresSubject(t *testing.T) {
	t.Parallel()

	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"name": "Ada"})
	signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ExtractUnverifiedIdentity(signed)
	assert.Error(t, err)
}

func TestExtractUnverifiedIdentityRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ExtractUnverifiedIdentity("not-a-jwt")
	assert.Error(t, err)
}
