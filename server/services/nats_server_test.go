package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/JRI98/smartchat/internal/identity"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestService starts an in-process JetStream server and a service with a
// clock that advances one second per call.
func newTestService(t *testing.T) *NATSService {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewNATSService(ctx, ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	clock := time.Unix(1700000000, 0).UTC()
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	return s
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func sendTexts(t *testing.T, s *NATSService, address identity.Identity, author identity.Identity, bodies ...string) {
	t.Helper()
	for _, text := range bodies {
		require.NoError(t, s.SendMessage(testContext(t), SendMessageParams{
			Address: address,
			Author:  author,
			Data:    []byte(text),
		}))
	}
}

func texts(messages []Message) []string {
	out := make([]string, 0, len(messages))
	for _, message := range messages {
		out = append(out, string(message.Data))
	}
	return out
}

func TestNATSServiceThreads(t *testing.T) {
	s := newTestService(t)
	ctx := testContext(t)

	records, err := s.ListThreads(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, records)

	created, err := s.CreateThread(ctx, CreateThreadParams{Creator: alice, OtherMembers: []identity.Identity{bob}})
	require.NoError(t, err)

	found, err := s.FindThread(ctx, created.Address)
	require.NoError(t, err)
	assert.True(t, found.Address.Equal(created.Address))
	require.Len(t, found.Members, 2)

	_, err = s.CreateThread(ctx, CreateThreadParams{Creator: alice})
	assert.ErrorIs(t, err, ErrInvalidThread)

	_, err = s.FindThread(ctx, address)
	assert.ErrorIs(t, err, ErrThreadNotFound)

	forBob, err := s.ListThreads(ctx, bob)
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	assert.True(t, forBob[0].Address.Equal(created.Address))

	forCarol, err := s.ListThreads(ctx, carol)
	require.NoError(t, err)
	assert.Empty(t, forCarol)
}

func TestNATSServiceListMessages(t *testing.T) {
	s := newTestService(t)
	ctx := testContext(t)

	first, err := s.CreateThread(ctx, CreateThreadParams{Creator: alice, OtherMembers: []identity.Identity{bob}})
	require.NoError(t, err)
	second, err := s.CreateThread(ctx, CreateThreadParams{Creator: carol, OtherMembers: []identity.Identity{bob}})
	require.NoError(t, err)
	empty, err := s.CreateThread(ctx, CreateThreadParams{Creator: alice, OtherMembers: []identity.Identity{carol}})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		author := alice
		if i%2 == 1 {
			author = bob
		}
		sendTexts(t, s, first.Address, author, fmt.Sprintf("m%d", i))
		sendTexts(t, s, second.Address, carol, fmt.Sprintf("other%d", i))
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"latest only", 1, []string{"m4"}},
		{"fewer than stored", 3, []string{"m4", "m3", "m2"}},
		{"exactly stored", 5, []string{"m4", "m3", "m2", "m1", "m0"}},
		{"more than stored", 10, []string{"m4", "m3", "m2", "m1", "m0"}},
		{"default limit", 0, []string{"m4", "m3", "m2", "m1", "m0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, err := s.ListMessages(testContext(t), first.Address, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, texts(messages))
		})
	}

	messages, err := s.ListMessages(ctx, first.Address, 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.True(t, messages[0].Author.Equal(alice))
	assert.True(t, messages[1].Author.Equal(bob))
	assert.False(t, messages[0].CreatedAt.Before(messages[1].CreatedAt))

	for _, limit := range []int{1, DefaultMessageLimit} {
		messages, err := s.ListMessages(ctx, empty.Address, limit)
		require.NoError(t, err)
		assert.Empty(t, messages)
	}

	found, err := s.FindThread(ctx, first.Address)
	require.NoError(t, err)
	assert.True(t, found.UpdatedAt.After(found.CreatedAt))
}

func TestNATSServiceListMessagesAcrossBatches(t *testing.T) {
	s := newTestService(t)
	ctx := testContext(t)

	created, err := s.CreateThread(ctx, CreateThreadParams{Creator: alice, OtherMembers: []identity.Identity{bob}})
	require.NoError(t, err)

	count := fetchBatchSize + 44
	for i := 0; i < count; i++ {
		_, err := s.js.Publish(ctx, messageSubject(created.Address, alice), []byte(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
	}

	messages, err := s.ListMessages(ctx, created.Address, fetchBatchSize+4)
	require.NoError(t, err)
	require.Len(t, messages, fetchBatchSize+4)
	assert.Equal(t, fmt.Sprintf("m%d", count-1), string(messages[0].Data))
	assert.Equal(t, "m40", string(messages[len(messages)-1].Data))
}

func TestNATSServiceDeleteThread(t *testing.T) {
	s := newTestService(t)
	ctx := testContext(t)

	doomed, err := s.CreateThread(ctx, CreateThreadParams{Creator: alice, OtherMembers: []identity.Identity{bob}})
	require.NoError(t, err)
	kept, err := s.CreateThread(ctx, CreateThreadParams{Creator: alice, OtherMembers: []identity.Identity{carol}})
	require.NoError(t, err)

	sendTexts(t, s, doomed.Address, alice, "gm", "gn")
	sendTexts(t, s, kept.Address, carol, "hello")

	require.NoError(t, s.DeleteThread(ctx, doomed.Address))

	_, err = s.FindThread(ctx, doomed.Address)
	assert.ErrorIs(t, err, ErrThreadNotFound)

	messages, err := s.ListMessages(ctx, doomed.Address, DefaultMessageLimit)
	require.NoError(t, err)
	assert.Empty(t, messages)

	records, err := s.ListThreads(ctx, alice)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Address.Equal(kept.Address))

	messages, err = s.ListMessages(ctx, kept.Address, DefaultMessageLimit)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, texts(messages))
}

func TestNATSServiceTouchRetriesOnConflict(t *testing.T) {
	s := newTestService(t)
	ctx := testContext(t)

	created, err := s.CreateThread(ctx, CreateThreadParams{Creator: alice, OtherMembers: []identity.Identity{bob}})
	require.NoError(t, err)

	stamp := time.Unix(1800000000, 0).UTC()
	calls := 0
	s.now = func() time.Time {
		calls++
		if calls == 1 {
			// A concurrent writer changes the record between read and update.
			entry, err := s.threads.Get(ctx, created.Address.String())
			require.NoError(t, err)
			_, err = s.threads.Put(ctx, created.Address.String(), entry.Value())
			require.NoError(t, err)
		}
		return stamp
	}

	sendTexts(t, s, created.Address, alice, "gm")
	assert.Equal(t, 2, calls)

	found, err := s.FindThread(ctx, created.Address)
	require.NoError(t, err)
	assert.Equal(t, stamp, found.UpdatedAt)
}

func TestNATSServiceSendMessageSurvivesTouchFailure(t *testing.T) {
	s := newTestService(t)
	ctx := testContext(t)

	// No thread record exists, so the activity update fails after publishing.
	sendTexts(t, s, address, alice, "orphan")

	messages, err := s.ListMessages(ctx, address, DefaultMessageLimit)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, texts(messages))
}
