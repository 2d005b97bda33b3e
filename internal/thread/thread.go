package thread

import (
	"errors"
	"fmt"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/JRI98/smartchat/internal/identity"
)

const MaxMessageLength = 280

var (
	ErrNotMember   = errors.New("not a thread member")
	ErrInvalidText = errors.New("invalid message text")
)

type Backend string

const (
	BackendSolana Backend = "solana"
	BackendCloud  Backend = "cloud"
)

type Scope string

const (
	ScopeAdmin Scope = "ADMIN"
	ScopeWrite Scope = "WRITE"
)

type ID struct {
	Address identity.Identity `json:"address"`
	Backend Backend           `json:"backend"`
}

func (id ID) Equal(other ID) bool {
	return id.Address.Equal(other.Address) && id.Backend == other.Backend
}

// SameThread compares two optional thread ids. A missing id never matches.
func SameThread(a, b *ID) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Equal(*b)
}

type Member struct {
	Identity identity.Identity `json:"identity"`
	Scopes   []Scope           `json:"scopes"`
}

func (m Member) Can(scope Scope) bool {
	return slices.Contains(m.Scopes, scope)
}

// Record is a thread as stored by the relay.
type Record struct {
	Address   identity.Identity `json:"address"`
	Backend   Backend           `json:"backend"`
	Members   []Member          `json:"members"`
	Encrypted bool              `json:"encrypted"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (r Record) ID() ID {
	return ID{Address: r.Address, Backend: r.Backend}
}

func (r Record) Member(id identity.Identity) (Member, bool) {
	for _, member := range r.Members {
		if member.Identity.Equal(id) {
			return member, true
		}
	}
	return Member{}, false
}

// View projects the record for one of its members.
func (r Record) View(viewer identity.Identity) (Thread, error) {
	me, ok := r.Member(viewer)
	if !ok {
		return Thread{}, ErrNotMember
	}

	others := make([]Member, 0, len(r.Members)-1)
	for _, member := range r.Members {
		if !member.Identity.Equal(viewer) {
			others = append(others, member)
		}
	}

	return Thread{
		ID:                r.ID(),
		Me:                me,
		OtherMembers:      others,
		EncryptionEnabled: r.Encrypted,
		UpdatedAt:         r.UpdatedAt,
	}, nil
}

// Thread is a record as seen by one member.
type Thread struct {
	ID                ID        `json:"id"`
	Me                Member    `json:"me"`
	OtherMembers      []Member  `json:"other_members"`
	EncryptionEnabled bool      `json:"encryption_enabled"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (t Thread) IsWritable() bool {
	return t.Me.Can(ScopeWrite)
}

func (t Thread) IsAdminable() bool {
	return t.Me.Can(ScopeAdmin)
}

// Recipient is the first other member, the counterpart in a direct thread.
func (t Thread) Recipient() (Member, bool) {
	if len(t.OtherMembers) == 0 {
		return Member{}, false
	}
	return t.OtherMembers[0], true
}

type Message struct {
	Author     identity.Identity `json:"author"`
	Text       string            `json:"text,omitempty"`
	Ciphertext []byte            `json:"ciphertext,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

func (m Message) IsEncrypted() bool {
	return len(m.Ciphertext) > 0
}

func ValidateText(text string) error {
	length := utf8.RuneCountInString(text)
	if length == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidText)
	}
	if length > MaxMessageLength {
		return fmt.Errorf("%w: %d characters, at most %d allowed", ErrInvalidText, length, MaxMessageLength)
	}
	return nil
}
