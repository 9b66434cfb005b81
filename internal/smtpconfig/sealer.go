package smtpconfig

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "sb1:"

// ErrUnseal is returned when a stored password cannot be decrypted.
var ErrUnseal = errors.New("smtpconfig: failed to unseal password")

// Sealer encrypts stored SMTP passwords with NaCl secretbox. A nil key
// leaves passwords as they are.
type Sealer struct {
	key *[32]byte
}

// NewSealer creates a sealer. key may be nil.
func NewSealer(key *[32]byte) *Sealer {
	return &Sealer{key: key}
}

// Seal encrypts plaintext as "sb1:" + base64(nonce || box).
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s.key == nil || plaintext == "" {
		return plaintext, nil
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("smtpconfig: generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, s.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(box), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is.
func (s *Sealer) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if s.key == nil {
		return "", fmt.Errorf("%w: no secret key configured", ErrUnseal)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(raw) < 24 {
		return "", ErrUnseal
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, s.key)
	if !ok {
		return "", ErrUnseal
	}
	return string(plain), nil
}
