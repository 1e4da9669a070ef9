package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var ErrInvalidKey = errors.New("secret key must be base64-encoded 32 bytes")

// DecryptionError is returned when a stored credential cannot be opened.
type DecryptionError struct {
	Reason string
}

func (e *DecryptionError) Error() string {
	return "decrypt credential: " + e.Reason
}

// Codec seals credentials with AES-256-GCM. Blobs are base64(nonce | tag | ciphertext).
type Codec struct {
	aead   cipher.AEAD
	random io.Reader
}

// NewCodec builds a codec from a base64-encoded 32 byte key.
func NewCodec(encodedKey string) (*Codec, error) {
	if encodedKey == "" {
		return nil, fmt.Errorf("missing ECHOTREE_SECRET_KEY: %w", ErrInvalidKey)
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(key) != keySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead, random: rand.Reader}, nil
}

// GenerateKey returns a fresh base64 key suitable for NewCodec.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("encrypt credential: %w", err)
	}
	// Seal appends the tag after the ciphertext; the stored layout keeps it in front.
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+tagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *Codec) Decrypt(blob string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", &DecryptionError{Reason: "invalid base64 payload"}
	}
	if len(payload) < nonceSize+tagSize+1 {
		return "", &DecryptionError{Reason: "payload too short"}
	}
	nonce := payload[:nonceSize]
	tag := payload[nonceSize : nonceSize+tagSize]
	ct := payload[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &DecryptionError{Reason: "authentication failed"}
	}
	return string(plain), nil
}
