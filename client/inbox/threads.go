package inbox

import (
	"bufio"
	"fmt"
	"io"

	"github.com/JRI98/smartchat/client/api"
	"github.com/JRI98/smartchat/internal/identity"
	"github.com/JRI98/smartchat/internal/thread"
)

const encryptedWarning = "⚠ You have encrypted messages in your inbox. Unlock an encryption capable wallet to read them."

type ThreadList struct {
	Summaries  []api.Summary
	Selected   *thread.ID
	CanEncrypt bool
	Me         identity.Identity
	Contacts   Contacts
}

// SelectedThread returns the selected thread if it is still in the list.
func (list ThreadList) SelectedThread() *thread.Thread {
	if list.Selected == nil {
		return nil
	}
	for _, summary := range list.Summaries {
		if thread.SameThread(list.Selected, &summary.Thread.ID) {
			t := summary.Thread
			return &t
		}
	}
	return nil
}

// Click selects the clicked thread. Clicking the thread that is already
// selected keeps the selection and reports that it should be opened.
func (list *ThreadList) Click(clicked thread.ID) (open bool) {
	if thread.ShouldOpen(list.Selected, clicked) {
		list.Selected = &clicked
		return false
	}
	return true
}

func memberIdentities(members []thread.Member) []identity.Identity {
	ids := make([]identity.Identity, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.Identity)
	}
	return ids
}

// Title names a thread after its other members.
func Title(t thread.Thread, me identity.Identity, contacts Contacts) string {
	return contacts.names(memberIdentities(t.OtherMembers), me)
}

func RenderThreadList(w io.Writer, list ThreadList) error {
	bw := bufio.NewWriter(w)

	threads := make([]thread.Thread, 0, len(list.Summaries))
	latest := make(map[string]*thread.Message, len(list.Summaries))
	for _, summary := range list.Summaries {
		threads = append(threads, summary.Thread)
		latest[summary.Thread.ID.Address.String()] = summary.LatestMessage
	}

	items, warnEncrypted := thread.List(threads, list.Selected, list.CanEncrypt)

	if warnEncrypted {
		fmt.Fprintln(bw, encryptedWarning)
	}

	if len(items) == 0 {
		fmt.Fprintln(bw, "No messages yet")
	}

	for i, item := range items {
		marker := "  "
		if item.Selected {
			marker = "> "
		}

		suffix := ""
		if item.Disabled {
			suffix = " (locked)"
		}

		fmt.Fprintf(bw, "%s%d. %s%s\n", marker, i+1, Title(item.Thread, list.Me, list.Contacts), suffix)
		fmt.Fprintf(bw, "     %s\n", thread.Preview(item.Thread, latest[item.Thread.ID.Address.String()], list.Me))
	}

	return bw.Flush()
}
