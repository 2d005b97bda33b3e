package inbox

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/JRI98/smartchat/client/api"
	"github.com/JRI98/smartchat/internal/identity"
	"github.com/JRI98/smartchat/internal/thread"
	"github.com/JRI98/smartchat/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	threadAddress = identity.MustParse("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	otherAddress  = identity.MustParse("4WLSCEkDt3UYEhKqzajDww7NAu9kUgS4yfgjY1CEoH7m")
)

func newWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.Generate()
	require.NoError(t, err)
	return w
}

func directThread(address identity.Identity, me, other identity.Identity, admin bool, encrypted bool) thread.Thread {
	scopes := []thread.Scope{thread.ScopeWrite}
	if admin {
		scopes = append(scopes, thread.ScopeAdmin)
	}
	return thread.Thread{
		ID:                thread.ID{Address: address, Backend: thread.BackendCloud},
		Me:                thread.Member{Identity: me, Scopes: scopes},
		OtherMembers:      []thread.Member{{Identity: other, Scopes: []thread.Scope{thread.ScopeWrite}}},
		EncryptionEnabled: encrypted,
	}
}

func render(t *testing.T, f func(w *bytes.Buffer) error) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, f(&out))
	return out.String()
}

func TestContactsName(t *testing.T) {
	alice, bob := newWallet(t).Identity(), newWallet(t).Identity()
	contacts := Contacts{bob.String(): "Bob"}

	assert.Equal(t, "You", contacts.Name(alice, alice))
	assert.Equal(t, "Bob", contacts.Name(bob, alice))

	short := contacts.Name(threadAddress, alice)
	assert.Equal(t, "EPjF…Dt1v", short)
}

func TestSealOpen(t *testing.T) {
	alice, bob, mallory := newWallet(t), newWallet(t), newWallet(t)

	sealed, err := Seal(alice, bob.Identity(), "gm")
	require.NoError(t, err)

	text, err := Open(bob, alice.Identity(), sealed)
	require.NoError(t, err)
	assert.Equal(t, "gm", text)

	text, err = Open(alice, bob.Identity(), sealed)
	require.NoError(t, err)
	assert.Equal(t, "gm", text)

	_, err = Open(mallory, alice.Identity(), sealed)
	assert.Error(t, err)
}

func TestRenderThreadList(t *testing.T) {
	alice, bob := newWallet(t).Identity(), newWallet(t).Identity()
	contacts := Contacts{bob.String(): "Bob"}

	plain := directThread(threadAddress, alice, bob, true, false)
	encrypted := directThread(otherAddress, alice, bob, false, true)

	list := ThreadList{
		Summaries: []api.Summary{
			{Thread: plain, LatestMessage: &thread.Message{Author: alice, Text: "gm"}},
			{Thread: encrypted, LatestMessage: &thread.Message{Author: bob, Ciphertext: []byte{1}}},
		},
		Selected:   &plain.ID,
		CanEncrypt: false,
		Me:         alice,
		Contacts:   contacts,
	}

	out := render(t, func(w *bytes.Buffer) error { return RenderThreadList(w, list) })
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, []string{
		encryptedWarning,
		"> 1. Bob",
		"     You: gm",
		"  2. Bob (locked)",
		"     Encrypted message",
	}, lines)

	list.CanEncrypt = true
	list.Selected = nil
	out = render(t, func(w *bytes.Buffer) error { return RenderThreadList(w, list) })
	assert.NotContains(t, out, encryptedWarning)
	assert.NotContains(t, out, "(locked)")
	assert.NotContains(t, out, "> ")

	out = render(t, func(w *bytes.Buffer) error { return RenderThreadList(w, ThreadList{Me: alice}) })
	assert.Equal(t, "No messages yet\n", out)
}

func TestThreadListSelection(t *testing.T) {
	alice, bob := newWallet(t).Identity(), newWallet(t).Identity()
	first := directThread(threadAddress, alice, bob, true, false)
	second := directThread(otherAddress, alice, bob, true, false)

	list := ThreadList{
		Summaries: []api.Summary{{Thread: first}, {Thread: second}},
		Me:        alice,
	}
	assert.Nil(t, list.SelectedThread())

	assert.False(t, list.Click(second.ID))
	require.NotNil(t, list.SelectedThread())
	assert.True(t, list.SelectedThread().ID.Equal(second.ID))

	out := render(t, func(w *bytes.Buffer) error { return RenderThreadList(w, list) })
	assert.Contains(t, out, "> 2. ")

	assert.False(t, list.Click(first.ID))
	assert.True(t, list.Selected.Equal(first.ID))

	assert.True(t, list.Click(first.ID))
	assert.True(t, list.Selected.Equal(first.ID))

	list.Summaries = []api.Summary{{Thread: second}}
	assert.Nil(t, list.SelectedThread())
}

func TestRenderThread(t *testing.T) {
	alice, bob := newWallet(t), newWallet(t)
	contacts := Contacts{bob.Identity().String(): "Bob"}
	view := directThread(threadAddress, alice.Identity(), bob.Identity(), true, false)
	at := time.Unix(1700000000, 0)

	payTo := bob.Identity().String()
	messages := []thread.Message{
		{Author: bob.Identity(), Text: "pay me solana:xyz spl-token= amount=", Timestamp: at.Add(3 * time.Minute)},
		{Author: bob.Identity(), Text: "lunch solana:" + payTo + "?amount=12&spl-token=&reference=" + otherAddress.String(), Timestamp: at.Add(2 * time.Minute)},
		{Author: alice.Identity(), Text: "gm", Timestamp: at},
	}

	out := render(t, func(w *bytes.Buffer) error {
		return RenderThread(w, ThreadView{Thread: view, Messages: messages, Wallet: alice, Contacts: contacts})
	})

	assert.True(t, strings.HasPrefix(out, "Bob\n"))
	assert.Contains(t, out, "You: gm\n")
	assert.Contains(t, out, "Bob: lunch\n")
	assert.Contains(t, out, "    ┌ Send 12 ◎\n")
	assert.Contains(t, out, "    │ amount: 12 ◎\n")
	assert.Contains(t, out, "    │ recipient: "+payTo+"\n")
	assert.Contains(t, out, "    │ reference: "+otherAddress.String()+"\n")
	assert.Contains(t, out, "Bob: pay me solana:xyz spl-token= amount= "+invalidPaymentMarker+"\n")

	assert.Less(t, strings.Index(out, "You: gm"), strings.Index(out, "Bob: lunch"))
	assert.Less(t, strings.Index(out, "Bob: lunch"), strings.Index(out, invalidPaymentMarker))
	assert.NotContains(t, out, unsupportedRequestMarker)
	assert.NotContains(t, out, "(read only)")
}

func TestRenderThreadRequestedLabel(t *testing.T) {
	alice, bob := newWallet(t), newWallet(t)
	view := directThread(threadAddress, alice.Identity(), bob.Identity(), true, false)

	messages := []thread.Message{
		{Author: alice.Identity(), Text: "solana:" + alice.Identity().String() + "?amount=1.5&spl-token=EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
	}

	out := render(t, func(w *bytes.Buffer) error {
		return RenderThread(w, ThreadView{Thread: view, Messages: messages, Wallet: alice})
	})
	assert.Contains(t, out, "    ┌ Requested 1.5 USDC\n")
}

func TestRenderThreadTransactionRequest(t *testing.T) {
	alice, bob := newWallet(t), newWallet(t)
	view := directThread(threadAddress, alice.Identity(), bob.Identity(), true, false)

	messages := []thread.Message{
		{Author: bob.Identity(), Text: "checkout solana:https://merchant.example.com/api/pay?order=42"},
		{Author: alice.Identity(), Text: "see solana:https://"},
	}

	out := render(t, func(w *bytes.Buffer) error {
		return RenderThread(w, ThreadView{Thread: view, Messages: messages, Wallet: alice})
	})
	assert.Contains(t, out, ": checkout solana:https://merchant.example.com/api/pay?order=42 "+unsupportedRequestMarker+"\n")
	assert.Contains(t, out, "You: see solana:https://\n")
	assert.Equal(t, 1, strings.Count(out, unsupportedRequestMarker))
	assert.NotContains(t, out, invalidPaymentMarker)
	assert.NotContains(t, out, "┌")
}

func TestRenderEncryptedThread(t *testing.T) {
	alice, bob := newWallet(t), newWallet(t)
	view := directThread(threadAddress, alice.Identity(), bob.Identity(), true, true)

	sealed, err := Seal(bob, alice.Identity(), "secret")
	require.NoError(t, err)
	messages := []thread.Message{{Author: bob.Identity(), Ciphertext: sealed}}

	out := render(t, func(w *bytes.Buffer) error {
		return RenderThread(w, ThreadView{Thread: view, Messages: messages, Wallet: alice})
	})
	assert.Contains(t, out, "[encrypted]")
	assert.Contains(t, out, ": secret\n")

	out = render(t, func(w *bytes.Buffer) error {
		return RenderThread(w, ThreadView{Thread: view, Messages: messages})
	})
	assert.Contains(t, out, lockedMarker)
	assert.NotContains(t, out, "secret")

	out = render(t, func(w *bytes.Buffer) error {
		return RenderThread(w, ThreadView{Thread: view, Messages: messages, Wallet: newWallet(t)})
	})
	assert.Contains(t, out, lockedMarker)
}

func TestRenderThreadReadOnly(t *testing.T) {
	alice, bob := newWallet(t), newWallet(t)
	view := directThread(threadAddress, alice.Identity(), bob.Identity(), false, false)
	view.Me.Scopes = nil

	out := render(t, func(w *bytes.Buffer) error {
		return RenderThread(w, ThreadView{Thread: view, Wallet: alice})
	})
	assert.Contains(t, out, "No messages yet\n")
	assert.Contains(t, out, "(read only)\n")
}

func TestRenderSettings(t *testing.T) {
	alice, bob := newWallet(t).Identity(), newWallet(t).Identity()

	admin := directThread(threadAddress, alice, bob, true, true)
	out := render(t, func(w *bytes.Buffer) error { return RenderSettings(w, admin, Contacts{}) })
	assert.Contains(t, out, "Messages account address: "+threadAddress.String()+"\n")
	assert.Contains(t, out, "Encryption: enabled\n")
	assert.Contains(t, out, "Delete history is available\n")
	assert.Contains(t, out, "  You "+alice.String()+" (WRITE, ADMIN)\n")

	member := directThread(threadAddress, alice, bob, false, false)
	out = render(t, func(w *bytes.Buffer) error { return RenderSettings(w, member, Contacts{}) })
	assert.Contains(t, out, "Encryption: disabled\n")
	assert.Contains(t, out, "Only thread admins can delete history\n")
}

func TestNotificationCenter(t *testing.T) {
	alice, publisher := newWallet(t).Identity(), newWallet(t).Identity()
	notifications := directThread(threadAddress, alice, publisher, true, false)
	other := directThread(otherAddress, alice, newWallet(t).Identity(), true, false)

	summaries := []api.Summary{{Thread: other}, {Thread: notifications}}
	found := FindNotificationsThread(summaries, publisher)
	require.NotNil(t, found)
	assert.True(t, found.ID.Equal(notifications.ID))
	assert.Nil(t, FindNotificationsThread(summaries[:1], publisher))

	tests := []struct {
		name   string
		center NotificationCenter
		state  NotificationState
		output string
	}{
		{
			name:   "not connected",
			center: NotificationCenter{},
			state:  NotificationsNotConnected,
			output: "Wallet not connected",
		},
		{
			name:   "no thread",
			center: NotificationCenter{WalletConnected: true},
			state:  NotificationsNoThread,
			output: "Create notifications thread",
		},
		{
			name:   "empty",
			center: NotificationCenter{WalletConnected: true, Thread: found},
			state:  NotificationsEmpty,
			output: "No notifications yet",
		},
		{
			name: "ready",
			center: NotificationCenter{WalletConnected: true, Thread: found, Messages: []thread.Message{
				{Author: publisher, Text: "Deposit confirmed"},
			}},
			state:  NotificationsReady,
			output: "Deposit confirmed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.state, tt.center.State())
			out := render(t, func(w *bytes.Buffer) error { return RenderNotifications(w, tt.center) })
			assert.True(t, strings.HasPrefix(out, "Notifications\n"))
			assert.Contains(t, out, tt.output)
		})
	}
}
