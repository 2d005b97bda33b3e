package wallet

import (
	"bytes"
	"encoding/base64"
	"errors"

	"github.com/JRI98/smartchat/internal/identity"
)

var ErrUnauthorized = errors.New("unauthorized")

func signedMessage(method string, requestURI string, body []byte) []byte {
	message := bytes.Buffer{}
	message.WriteString(method)
	message.WriteByte(' ')
	message.WriteString(requestURI)
	message.WriteByte('\n')
	message.Write(body)
	return message.Bytes()
}

// Authorize returns the Authorization header value for a request:
// base64(public key || signature over "METHOD URI\nbody").
func (w *Wallet) Authorize(method string, requestURI string, body []byte) string {
	signature := w.Sign(signedMessage(method, requestURI, body))

	payload := make([]byte, 0, identity.Size+len(signature))
	payload = append(payload, w.identity.Bytes()...)
	payload = append(payload, signature...)

	return base64.StdEncoding.EncodeToString(payload)
}

func Authenticate(header string, method string, requestURI string, body []byte) (identity.Identity, error) {
	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return identity.Identity{}, ErrUnauthorized
	}

	if len(decoded) != identity.Size+SignatureSize {
		return identity.Identity{}, ErrUnauthorized
	}

	signer, err := identity.FromBytes(decoded[:identity.Size])
	if err != nil {
		return identity.Identity{}, ErrUnauthorized
	}

	if !Verify(signer, signedMessage(method, requestURI, body), decoded[identity.Size:]) {
		return identity.Identity{}, ErrUnauthorized
	}

	return signer, nil
}
