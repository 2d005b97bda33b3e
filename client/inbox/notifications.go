package inbox

import (
	"bufio"
	"fmt"
	"io"

	"github.com/JRI98/smartchat/client/api"
	"github.com/JRI98/smartchat/internal/identity"
	"github.com/JRI98/smartchat/internal/thread"
)

type NotificationState int

const (
	NotificationsNotConnected NotificationState = iota
	NotificationsNoThread
	NotificationsEmpty
	NotificationsReady
)

// NotificationCenter is the inbox of messages from a single publisher.
type NotificationCenter struct {
	WalletConnected bool
	Thread          *thread.Thread
	// Messages are newest first.
	Messages []thread.Message
}

func (center NotificationCenter) State() NotificationState {
	switch {
	case !center.WalletConnected:
		return NotificationsNotConnected
	case center.Thread == nil:
		return NotificationsNoThread
	case len(center.Messages) == 0:
		return NotificationsEmpty
	default:
		return NotificationsReady
	}
}

// FindNotificationsThread returns the direct thread with publisher, if any.
func FindNotificationsThread(summaries []api.Summary, publisher identity.Identity) *thread.Thread {
	for _, summary := range summaries {
		t := summary.Thread
		if len(t.OtherMembers) == 1 && t.OtherMembers[0].Identity.Equal(publisher) {
			return &t
		}
	}
	return nil
}

func RenderNotifications(w io.Writer, center NotificationCenter) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "Notifications")

	switch center.State() {
	case NotificationsNotConnected:
		fmt.Fprintln(bw, "Wallet not connected")
	case NotificationsNoThread:
		fmt.Fprintln(bw, "Create notifications thread")
		fmt.Fprintln(bw, "Notifications are delivered to a thread shared with the publisher.")
	case NotificationsEmpty:
		fmt.Fprintln(bw, "No notifications yet")
	case NotificationsReady:
		for _, message := range center.Messages {
			fmt.Fprintf(bw, "[%s] %s\n", message.Timestamp.Local().Format(timeLayout), message.Text)
		}
	}

	return bw.Flush()
}
