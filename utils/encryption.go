package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

var errCiphertextTooShort = errors.New("encrypted credentials are too short or malformed")

const credentialKeyInfo = "account-credentials-v1"

// TokenCipher seals account credential bundles with AES-256-GCM.
// A nil or keyless cipher passes values through unchanged.
type TokenCipher struct {
	key []byte
}

// NewTokenCipher derives a 32 byte AES key from secret using HKDF-SHA256.
// An empty secret disables encryption (not recommended for production).
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if secret == "" {
		return &TokenCipher{}, nil
	}

	key := make([]byte, 32)
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(credentialKeyInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return &TokenCipher{key: key}, nil
}

func (c *TokenCipher) Enabled() bool {
	return c != nil && len(c.key) > 0
}

// Encrypt returns base64(nonce || ciphertext).
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if !c.Enabled() {
		return plaintext, nil
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt.
func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	if !c.Enabled() {
		return encoded, nil
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize+gcm.Overhead() {
		return "", errCiphertextTooShort
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

func (c *TokenCipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
