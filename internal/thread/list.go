package thread

import (
	"slices"

	"github.com/JRI98/smartchat/internal/identity"
)

type ListItem struct {
	Thread   Thread
	Selected bool
	Disabled bool
}

// List lays out an inbox. Encrypted threads are disabled when the viewer
// cannot decrypt, and warnEncrypted is set if any such thread exists.
func List(threads []Thread, selected *ID, canEncrypt bool) (items []ListItem, warnEncrypted bool) {
	items = make([]ListItem, 0, len(threads))
	for _, t := range threads {
		disabled := !canEncrypt && t.EncryptionEnabled
		if disabled {
			warnEncrypted = true
		}

		id := t.ID
		items = append(items, ListItem{
			Thread:   t,
			Selected: SameThread(selected, &id),
			Disabled: disabled,
		})
	}
	return items, warnEncrypted
}

// ShouldOpen reports whether clicking a thread should navigate to it.
func ShouldOpen(selected *ID, clicked ID) bool {
	return !SameThread(selected, &clicked)
}

func SortByActivity(threads []Thread) {
	slices.SortStableFunc(threads, func(a, b Thread) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
}

func Preview(t Thread, latest *Message, viewer identity.Identity) string {
	if t.EncryptionEnabled {
		return "Encrypted message"
	}
	if latest == nil {
		return "No messages yet"
	}
	if latest.Author.Equal(viewer) {
		return "You: " + latest.Text
	}
	return latest.Text
}
