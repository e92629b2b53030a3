package cryptox

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/TimurCravtov/CraftHub/pkg/slogx"
)

var (
	// ErrInvalidKeyLength is returned when the field key is not a valid AES key size.
	ErrInvalidKeyLength = errors.New("cryptox: field key must be 16, 24 or 32 bytes")

	ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")
)

// FieldCodec encrypts individual column values (TOTP secrets and the like)
// before they are persisted. The output format is base64(nonce || ciphertext || tag).
type FieldCodec struct {
	aead cipher.AEAD
}

// NewFieldCodec builds a codec from raw key bytes. The key length selects
// AES-128, AES-192 or AES-256.
func NewFieldCodec(key []byte) (*FieldCodec, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &FieldCodec{aead: gcm}, nil
}

// Encrypt seals plaintext with a fresh random nonce. Empty input maps to
// empty output so nullable columns stay empty.
func (c *FieldCodec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *FieldCodec) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	return string(plaintext), nil
}

// DecryptOrEmpty is the read-path variant of Decrypt. Corrupt or foreign
// ciphertext is logged and reported as an empty value so that a bad column
// never makes the rest of the record unreadable.
func (c *FieldCodec) DecryptOrEmpty(ctx context.Context, encoded string) string {
	plaintext, err := c.Decrypt(encoded)
	if err != nil {
		slogx.FromContext(ctx).Warn("field decrypt failed, treating value as empty", "err", err)
		return ""
	}
	return plaintext
}
