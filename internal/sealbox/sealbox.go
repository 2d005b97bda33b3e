package sealbox

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeySize  = chacha20poly1305.KeySize
	SaltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 1
)

var ErrMalformed = errors.New("malformed sealed box")

func RandomBytes(n int) ([]byte, error) {
	data := make([]byte, n)
	if _, err := rand.Read(data); err != nil {
		return nil, fmt.Errorf("could not read random bytes: %w", err)
	}
	return data, nil
}

func NewSalt() ([]byte, error) {
	return RandomBytes(SaltSize)
}

// DeriveKey stretches a password into a sealing key with argon2id.
func DeriveKey(password []byte, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("invalid salt length: %d", len(salt))
	}
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, KeySize), nil
}

// Seal encrypts data with XChaCha20-Poly1305. The output is nonce || ciphertext.
func Seal(data []byte, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("could not create cipher: %w", err)
	}

	nonce, err := RandomBytes(aead.NonceSize())
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(nonce)+len(data)+aead.Overhead())
	sealed = append(sealed, nonce...)
	return aead.Seal(sealed, nonce, data, nil), nil
}

func Open(sealed []byte, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("could not create cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(sealed))
	}

	opened, err := aead.Open(nil, sealed[:aead.NonceSize()], sealed[aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return opened, nil
}
