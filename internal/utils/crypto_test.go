// internal/utils/crypto_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCipherRoundTrip(t *testing.T) {
	cipher, err := NewTokenCipher("unit-test-secret")
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("raw-api-key")
	require.NoError(t, err)
	assert.NotEqual(t, "raw-api-key", encrypted)

	decrypted, err := cipher.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "raw-api-key", decrypted)
}

func TestTokenCipherNonDeterministic(t *testing.T) {
	cipher, err := NewTokenCipher("unit-test-secret")
	require.NoError(t, err)

	first, err := cipher.Encrypt("raw-api-key")
	require.NoError(t, err)
	second, err := cipher.Encrypt("raw-api-key")
	require.NoError(t, err)

	// Fresh nonce per encryption.
	assert.NotEqual(t, first, second)
}

func TestTokenCipherWrongSecret(t *testing.T) {
	cipher, err := NewTokenCipher("unit-test-secret")
	require.NoError(t, err)
	encrypted, err := cipher.Encrypt("raw-api-key")
	require.NoError(t, err)

	other, err := NewTokenCipher("a-different-secret")
	require.NoError(t, err)

	_, err = other.Decrypt(encrypted)
	assert.Error(t, err)
}

func TestTokenCipherRejectsGarbage(t *testing.T) {
	cipher, err := NewTokenCipher("unit-test-secret")
	require.NoError(t, err)

	_, err = cipher.Decrypt("not-base64!!!")
	assert.Error(t, err)
}
