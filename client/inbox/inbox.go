// Package inbox renders threads, messages and notifications as text.
package inbox

import (
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/JRI98/smartchat/internal/identity"
	"github.com/JRI98/smartchat/internal/sealbox"
	"github.com/JRI98/smartchat/internal/wallet"
	"golang.org/x/crypto/hkdf"
)

const timeLayout = "Jan 2 15:04"

// Contacts maps base58 identities to local names.
type Contacts map[string]string

func shortAddress(id identity.Identity) string {
	address := id.String()
	if len(address) <= 9 {
		return address
	}
	return address[:4] + "…" + address[len(address)-4:]
}

// Name returns how id is shown to me: "You", a contact name or a short address.
func (c Contacts) Name(id identity.Identity, me identity.Identity) string {
	if id.Equal(me) {
		return "You"
	}
	if name, ok := c[id.String()]; ok && name != "" {
		return name
	}
	return shortAddress(id)
}

func (c Contacts) names(ids []identity.Identity, me identity.Identity) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, c.Name(id, me))
	}
	return strings.Join(names, ", ")
}

const directMessageInfo = "smartchat-dm-v1"

// sharedKey expands the X25519 secret between w and other into a sealing key.
func sharedKey(w *wallet.Wallet, other identity.Identity) ([]byte, error) {
	secret, err := w.DiffieHellman(other)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}

	key := make([]byte, sealbox.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(directMessageInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive shared key: %w", err)
	}
	return key, nil
}

// Seal encrypts text for the other member of a direct thread.
func Seal(w *wallet.Wallet, other identity.Identity, text string) ([]byte, error) {
	key, err := sharedKey(w, other)
	if err != nil {
		return nil, err
	}
	return sealbox.Seal([]byte(text), key)
}

// Open decrypts a message sealed between w and other, in either direction.
func Open(w *wallet.Wallet, other identity.Identity, ciphertext []byte) (string, error) {
	key, err := sharedKey(w, other)
	if err != nil {
		return "", err
	}

	text, err := sealbox.Open(ciphertext, key)
	if err != nil {
		return "", err
	}
	return string(text), nil
}
