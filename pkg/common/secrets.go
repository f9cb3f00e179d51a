package common

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	secretKeySize = 32
	nonceSize     = 24
)

var ErrDecrypt = errors.New("secret could not be decrypted")

// SecretBox seals credentials stored at rest. A nil *SecretBox or one created
// with an empty key passes values through unchanged, which is what local mode uses.
type SecretBox struct {
	key *[secretKeySize]byte
}

// NewSecretBox parses a base64 encoded 32-byte key
func NewSecretBox(encodedKey string) (*SecretBox, error) {
	if encodedKey == "" {
		return &SecretBox{}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(raw) != secretKeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", secretKeySize, len(raw))
	}

	var key [secretKeySize]byte
	copy(key[:], raw)
	return &SecretBox{key: &key}, nil
}

func (s *SecretBox) Enabled() bool {
	return s != nil && s.key != nil
}

// Seal encrypts plaintext and prefixes the random nonce
func (s *SecretBox) Seal(plaintext string) ([]byte, error) {
	if !s.Enabled() {
		return []byte(plaintext), nil
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, s.key), nil
}

func (s *SecretBox) Open(sealed []byte) (string, error) {
	if !s.Enabled() {
		return string(sealed), nil
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, s.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
