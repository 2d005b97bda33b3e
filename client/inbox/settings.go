package inbox

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/JRI98/smartchat/internal/thread"
)

func RenderSettings(w io.Writer, t thread.Thread, contacts Contacts) error {
	bw := bufio.NewWriter(w)
	me := t.Me.Identity

	fmt.Fprintf(bw, "Messages account address: %s\n", t.ID.Address)
	fmt.Fprintf(bw, "Backend: %s\n", t.ID.Backend)
	if t.EncryptionEnabled {
		fmt.Fprintln(bw, "Encryption: enabled")
	} else {
		fmt.Fprintln(bw, "Encryption: disabled")
	}

	fmt.Fprintln(bw, "Members:")
	for _, member := range append([]thread.Member{t.Me}, t.OtherMembers...) {
		scopes := make([]string, 0, len(member.Scopes))
		for _, scope := range member.Scopes {
			scopes = append(scopes, string(scope))
		}
		fmt.Fprintf(bw, "  %s %s (%s)\n", contacts.Name(member.Identity, me), member.Identity, strings.Join(scopes, ", "))
	}

	if t.IsAdminable() {
		fmt.Fprintln(bw, "Delete history is available")
	} else {
		fmt.Fprintln(bw, "Only thread admins can delete history")
	}

	return bw.Flush()
}
