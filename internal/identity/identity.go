package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const Size = ed25519.PublicKeySize

var ErrInvalid = errors.New("invalid identity")

// Identity is a participant's ed25519 public key. Its text form is the
// base58 Solana address.
type Identity struct {
	key solana.PublicKey
}

func FromPublicKey(publicKey ed25519.PublicKey) (Identity, error) {
	return FromBytes(publicKey)
}

func FromBytes(bytes []byte) (Identity, error) {
	if len(bytes) != Size {
		return Identity{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalid, Size, len(bytes))
	}
	return Identity{key: solana.PublicKeyFromBytes(bytes)}, nil
}

func Parse(address string) (Identity, error) {
	key, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return Identity{key: key}, nil
}

func MustParse(address string) Identity {
	id, err := Parse(address)
	if err != nil {
		panic(err)
	}
	return id
}

func (i Identity) String() string {
	return i.key.String()
}

func (i Identity) Bytes() []byte {
	return i.key.Bytes()
}

func (i Identity) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(i.key.Bytes())
}

func (i Identity) Equal(other Identity) bool {
	return i.key.Equals(other.key)
}

func (i Identity) IsZero() bool {
	return i.key.IsZero()
}

func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Identity) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
