package credentials

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher([]byte("correct horse battery staple"), "k1")
	require.NoError(t, err)

	sealed, err := c.Seal("s3cret", aad(PasswordKey, "corp"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, envelopePrefix))
	assert.NotContains(t, sealed, "s3cret")

	plain, err := c.Open(sealed, aad(PasswordKey, "corp"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)

	// Fresh nonce per seal
	again, err := c.Seal("s3cret", aad(PasswordKey, "corp"))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}

func TestCipherOpenFailures(t *testing.T) {
	c, err := NewCipher([]byte("key-one"), "k1")
	require.NoError(t, err)
	sealed, err := c.Seal("s3cret", aad(PasswordKey, "corp"))
	require.NoError(t, err)

	otherKey, err := NewCipher([]byte("key-two"), "k1")
	require.NoError(t, err)
	otherID, err := NewCipher([]byte("key-one"), "k2")
	require.NoError(t, err)

	tests := []struct {
		name    string
		cipher  *Cipher
		sealed  string
		aad     string
		wantErr string
	}{
		{name: "moved to another realm", cipher: c, sealed: sealed, aad: aad(PasswordKey, "lab"), wantErr: "decrypt payload"},
		{name: "wrong key", cipher: otherKey, sealed: sealed, aad: aad(PasswordKey, "corp"), wantErr: "decrypt payload"},
		{name: "key id mismatch", cipher: otherID, sealed: sealed, aad: aad(PasswordKey, "corp"), wantErr: "key id mismatch"},
		{name: "plaintext row", cipher: c, sealed: "s3cret", aad: aad(PasswordKey, "corp"), wantErr: "unrecognized envelope"},
		{name: "garbage envelope", cipher: c, sealed: envelopePrefix + "{", aad: aad(PasswordKey, "corp"), wantErr: "decode envelope"},
		{
			name:    "unsupported algorithm",
			cipher:  c,
			sealed:  envelopePrefix + `{"kid":"k1","alg":"rot13","nonce":"","ciphertext":""}`,
			aad:     aad(PasswordKey, "corp"),
			wantErr: "unsupported algorithm",
		},
		{
			name:    "short nonce",
			cipher:  c,
			sealed:  envelopePrefix + `{"kid":"k1","alg":"aes-256-gcm","nonce":"AAAA","ciphertext":""}`,
			aad:     aad(PasswordKey, "corp"),
			wantErr: "invalid nonce length",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cipher.Open(tt.sealed, tt.aad)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewCipher(t *testing.T) {
	_, err := NewCipher([]byte("   "), "k1")
	assert.Error(t, err)

	c, err := NewCipher([]byte("material"), "")
	require.NoError(t, err)
	assert.Equal(t, "default", c.KeyID())
}
