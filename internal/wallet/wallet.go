package wallet

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/JRI98/smartchat/internal/identity"
)

const (
	PrivateKeySize = ed25519.PrivateKeySize
	SignatureSize  = ed25519.SignatureSize
)

// Wallet holds the ed25519 key that identifies a participant.
type Wallet struct {
	privateKey ed25519.PrivateKey
	identity   identity.Identity
}

func Generate() (*Wallet, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return FromPrivateKey(privateKey)
}

func FromPrivateKey(bytes []byte) (*Wallet, error) {
	if len(bytes) != PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: %d", len(bytes))
	}

	privateKey := make(ed25519.PrivateKey, PrivateKeySize)
	copy(privateKey, bytes)

	id, err := identity.FromPublicKey(privateKey.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}

	return &Wallet{privateKey: privateKey, identity: id}, nil
}

func (w *Wallet) Identity() identity.Identity {
	return w.identity
}

func (w *Wallet) PrivateKey() []byte {
	out := make([]byte, len(w.privateKey))
	copy(out, w.privateKey)
	return out
}

func (w *Wallet) Sign(message []byte) []byte {
	return ed25519.Sign(w.privateKey, message)
}

func Verify(signer identity.Identity, message []byte, signature []byte) bool {
	if len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(signer.PublicKey(), message, signature)
}

// DiffieHellman returns the X25519 shared secret between this wallet and
// other. Both ed25519 keys are mapped to their Montgomery form, so
// a.DiffieHellman(b) == b.DiffieHellman(a).
func (w *Wallet) DiffieHellman(other identity.Identity) ([]byte, error) {
	digest := sha512.Sum512(w.privateKey.Seed())
	privateKey, err := ecdh.X25519().NewPrivateKey(digest[:32])
	if err != nil {
		return nil, fmt.Errorf("could not convert private key: %w", err)
	}

	point, err := new(edwards25519.Point).SetBytes(other.Bytes())
	if err != nil {
		return nil, fmt.Errorf("could not decode public key: %w", err)
	}

	publicKey, err := ecdh.X25519().NewPublicKey(point.BytesMontgomery())
	if err != nil {
		return nil, fmt.Errorf("could not convert public key: %w", err)
	}

	secret, err := privateKey.ECDH(publicKey)
	if err != nil {
		return nil, fmt.Errorf("could not compute shared secret: %w", err)
	}

	return secret, nil
}
