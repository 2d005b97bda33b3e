// Package smartmessage tells plain chat messages apart from payment requests
// embedded as solana: transfer URIs.
package smartmessage

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode"

	"github.com/JRI98/smartchat/internal/identity"
	"github.com/shopspring/decimal"
)

const ImageURL = "https://solanapay.com/_next/image?url=%2F_next%2Fstatic%2Fmedia%2Fsolanapay-logo.e34e7b7f.svg&w=384&q=75"

var ErrInvalidStructuredPayload = errors.New("invalid structured payload")

type Kind string

const (
	KindPlain             Kind = "plain"
	KindStructuredRequest Kind = "structured_request"
)

type TransferRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Token     string `json:"token"`
	Reference string `json:"reference,omitempty"`
	Label     string `json:"label"`
	ImageURL  string `json:"image_url"`
}

type ParsedMessage struct {
	Text    string           `json:"text"`
	Kind    Kind             `json:"kind"`
	Request *TransferRequest `json:"request,omitempty"`
}

func (m ParsedMessage) IsStructured() bool {
	return m.Kind == KindStructuredRequest
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidStructuredPayload, fmt.Sprintf(format, args...))
}

// Parse classifies text as seen by viewer. Text that matches the transfer
// request markers but does not carry a usable URI fails with
// ErrInvalidStructuredPayload; the caller picks the fallback.
func Parse(text string, viewer identity.Identity) (ParsedMessage, error) {
	if !IsCandidate(text) {
		return ParsedMessage{Text: text, Kind: KindPlain}, nil
	}

	start := strings.Index(text, Scheme)
	caption := strings.TrimRightFunc(text[:start], unicode.IsSpace)

	rawURI := text[start:]
	if end := strings.IndexFunc(rawURI, unicode.IsSpace); end >= 0 {
		rawURI = rawURI[:end]
	}

	uri, err := url.Parse(rawURI)
	if err != nil {
		return ParsedMessage{}, fmt.Errorf("%w: could not parse uri: %w", ErrInvalidStructuredPayload, err)
	}

	recipient := uri.Opaque
	if recipient == "" {
		recipient = uri.Path
	}

	query, err := url.ParseQuery(uri.RawQuery)
	if err != nil {
		return ParsedMessage{}, fmt.Errorf("%w: could not parse query: %w", ErrInvalidStructuredPayload, err)
	}

	amount := query.Get("amount")
	if amount == "" {
		return ParsedMessage{}, invalid("missing amount")
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return ParsedMessage{}, invalid("amount %q is not a decimal", amount)
	}
	if value.IsNegative() {
		return ParsedMessage{}, invalid("amount %q is negative", amount)
	}

	if !query.Has("spl-token") {
		return ParsedMessage{}, invalid("missing spl-token")
	}
	token := query.Get("spl-token")

	label := fmt.Sprintf("%s %s", amount, TokenSymbol(token))
	if recipient == viewer.String() {
		label = "Requested " + label
	} else {
		label = "Send " + label
	}

	request := &TransferRequest{
		Recipient: recipient,
		Amount:    amount,
		Token:     token,
		Reference: query.Get("reference"),
		Label:     label,
		ImageURL:  ImageURL,
	}

	slog.Debug("Parsed transfer request",
		slog.String("caption", caption),
		slog.String("recipient", recipient),
		slog.String("amount", amount),
		slog.String("token", token))

	return ParsedMessage{
		Text:    caption,
		Kind:    KindStructuredRequest,
		Request: request,
	}, nil
}
