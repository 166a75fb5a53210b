package credentials

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	jsonpool "github.com/ajitpratap0/gridfeed/pkg/json"
)

const (
	envelopePrefix = "gridfeed.secret.v1:"
	algorithm      = "aes-256-gcm"
	hkdfInfo       = "gridfeed credential store"
)

// Cipher seals stored secrets in a versioned AES-256-GCM envelope
type Cipher struct {
	aead  cipher.AEAD
	keyID string
}

type envelope struct {
	KeyID      string `json:"kid"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// NewCipher derives a 256-bit key from keyMaterial with HKDF-SHA256
func NewCipher(keyMaterial []byte, keyID string) (*Cipher, error) {
	material := bytes.TrimSpace(keyMaterial)
	if len(material) == 0 {
		return nil, fmt.Errorf("credentials: key material is required")
	}
	if keyID = strings.TrimSpace(keyID); keyID == "" {
		keyID = "default"
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("credentials: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credentials: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credentials: create gcm: %w", err)
	}
	return &Cipher{aead: aead, keyID: keyID}, nil
}

// KeyID returns the label written into envelopes
func (c *Cipher) KeyID() string {
	return c.keyID
}

// Seal encrypts plaintext. The (username, realm) pair is bound as additional
// data so a ciphertext cannot be moved to another row.
func (c *Cipher) Seal(plaintext, aad string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("credentials: nonce generation failed: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), []byte(aad))
	data, err := jsonpool.Marshal(envelope{
		KeyID:      c.keyID,
		Algorithm:  algorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return "", fmt.Errorf("credentials: encode envelope: %w", err)
	}
	return envelopePrefix + string(data), nil
}

// Open decrypts an envelope produced by Seal with the same aad
func (c *Cipher) Open(sealed, aad string) (string, error) {
	payload, ok := strings.CutPrefix(sealed, envelopePrefix)
	if !ok {
		return "", fmt.Errorf("credentials: unrecognized envelope")
	}

	var env envelope
	if err := jsonpool.Unmarshal([]byte(payload), &env); err != nil {
		return "", fmt.Errorf("credentials: decode envelope: %w", err)
	}
	if env.Algorithm != algorithm {
		return "", fmt.Errorf("credentials: unsupported algorithm %q", env.Algorithm)
	}
	if env.KeyID != c.keyID {
		return "", fmt.Errorf("credentials: key id mismatch: got %q want %q", env.KeyID, c.keyID)
	}

	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", fmt.Errorf("credentials: decode nonce: %w", err)
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("credentials: invalid nonce length %d", len(nonce))
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("credentials: decode ciphertext: %w", err)
	}

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte(aad))
	if err != nil {
		return "", fmt.Errorf("credentials: decrypt payload: %w", err)
	}
	return string(plaintext), nil
}
