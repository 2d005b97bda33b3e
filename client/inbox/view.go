package inbox

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/JRI98/smartchat/internal/smartmessage"
	"github.com/JRI98/smartchat/internal/thread"
	"github.com/JRI98/smartchat/internal/wallet"
)

const (
	invalidPaymentMarker     = "[invalid payment request]"
	unsupportedRequestMarker = "[transaction request not supported]"
	lockedMarker             = "🔒 Encrypted message"
)

type ThreadView struct {
	Thread thread.Thread
	// Messages are newest first, as the relay returns them.
	Messages []thread.Message
	Wallet   *wallet.Wallet
	Contacts Contacts
}

func (view ThreadView) text(message thread.Message) (string, bool) {
	if !message.IsEncrypted() {
		return message.Text, true
	}

	recipient, ok := view.Thread.Recipient()
	if view.Wallet == nil || !ok {
		return "", false
	}

	text, err := Open(view.Wallet, recipient.Identity, message.Ciphertext)
	if err != nil {
		return "", false
	}
	return text, true
}

func renderCard(w io.Writer, request *smartmessage.TransferRequest) {
	fmt.Fprintf(w, "    ┌ %s\n", request.Label)
	fmt.Fprintf(w, "    │ amount: %s %s\n", request.Amount, smartmessage.TokenSymbol(request.Token))
	fmt.Fprintf(w, "    │ recipient: %s\n", request.Recipient)
	if request.Reference != "" {
		fmt.Fprintf(w, "    │ reference: %s\n", request.Reference)
	}
	fmt.Fprintf(w, "    └ %s\n", request.ImageURL)
}

// RenderThread prints the conversation oldest first, so the latest message
// ends up at the bottom, followed by the compose hint when writable.
func RenderThread(w io.Writer, view ThreadView) error {
	bw := bufio.NewWriter(w)

	me := view.Thread.Me.Identity
	header := Title(view.Thread, me, view.Contacts)
	if view.Thread.EncryptionEnabled {
		header += " [encrypted]"
	}
	fmt.Fprintln(bw, header)

	if len(view.Messages) == 0 {
		fmt.Fprintln(bw, "No messages yet")
	}

	for i := len(view.Messages) - 1; i >= 0; i-- {
		message := view.Messages[i]
		author := view.Contacts.Name(message.Author, me)
		timestamp := message.Timestamp.Local().Format(timeLayout)

		text, ok := view.text(message)
		if !ok {
			fmt.Fprintf(bw, "[%s] %s: %s\n", timestamp, author, lockedMarker)
			continue
		}

		parsed, err := smartmessage.Parse(text, me)
		if err != nil {
			if !errors.Is(err, smartmessage.ErrInvalidStructuredPayload) {
				return err
			}
			fmt.Fprintf(bw, "[%s] %s: %s %s\n", timestamp, author, text, invalidPaymentMarker)
			continue
		}

		if parsed.IsStructured() {
			fmt.Fprintf(bw, "[%s] %s: %s\n", timestamp, author, parsed.Text)
			renderCard(bw, parsed.Request)
			continue
		}

		if smartmessage.IsTransactionRequest(parsed.Text) {
			fmt.Fprintf(bw, "[%s] %s: %s %s\n", timestamp, author, parsed.Text, unsupportedRequestMarker)
			continue
		}
		fmt.Fprintf(bw, "[%s] %s: %s\n", timestamp, author, parsed.Text)
	}

	if !view.Thread.IsWritable() {
		fmt.Fprintln(bw, "(read only)")
	}

	return bw.Flush()
}
