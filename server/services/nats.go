package services

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/JRI98/smartchat/internal/identity"
	"github.com/JRI98/smartchat/internal/sealbox"
	"github.com/JRI98/smartchat/internal/thread"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	threadsBucket  = "THREADS"
	messagesStream = "MESSAGES"

	DefaultMessageLimit = 50
	MaxMessageLimit     = 500

	fetchBatchSize   = 256
	maxTouchAttempts = 3
)

var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrInvalidThread  = errors.New("invalid thread")
)

type NATSService struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	threads jetstream.KeyValue
	stream  jetstream.Stream
	now     func() time.Time
}

func NewNATSService(ctx context.Context, natsURL string) (*NATSService, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("could not connect to NATS JetStream: %w", err)
	}

	threads, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      threadsBucket,
		Description: "Thread records keyed by address",
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("could not create threads bucket: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      messagesStream,
		Subjects:  []string{messagesStream + ".>"},
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("could not create messages stream: %w", err)
	}

	return &NATSService{
		nc:      nc,
		js:      js,
		threads: threads,
		stream:  stream,
		now:     time.Now,
	}, nil
}

func threadSubject(address identity.Identity) string {
	return fmt.Sprintf("%s.%x.*", messagesStream, address.Bytes())
}

func messageSubject(address identity.Identity, author identity.Identity) string {
	return fmt.Sprintf("%s.%x.%x", messagesStream, address.Bytes(), author.Bytes())
}

type CreateThreadParams struct {
	Creator      identity.Identity
	OtherMembers []identity.Identity
	Encrypted    bool
}

// NewRecord validates the members of a new thread and builds its record.
// The creator administers the thread; everyone can write.
func NewRecord(params CreateThreadParams, address identity.Identity, now time.Time) (thread.Record, error) {
	if len(params.OtherMembers) == 0 {
		return thread.Record{}, fmt.Errorf("%w: no other members", ErrInvalidThread)
	}
	if params.Encrypted && len(params.OtherMembers) != 1 {
		return thread.Record{}, fmt.Errorf("%w: encrypted threads have exactly two members", ErrInvalidThread)
	}

	members := make([]thread.Member, 0, len(params.OtherMembers)+1)
	members = append(members, thread.Member{
		Identity: params.Creator,
		Scopes:   []thread.Scope{thread.ScopeAdmin, thread.ScopeWrite},
	})

	seen := map[string]bool{params.Creator.String(): true}
	for _, member := range params.OtherMembers {
		if seen[member.String()] {
			return thread.Record{}, fmt.Errorf("%w: duplicate member %s", ErrInvalidThread, member)
		}
		seen[member.String()] = true

		members = append(members, thread.Member{
			Identity: member,
			Scopes:   []thread.Scope{thread.ScopeWrite},
		})
	}

	return thread.Record{
		Address:   address,
		Backend:   thread.BackendCloud,
		Members:   members,
		Encrypted: params.Encrypted,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *NATSService) CreateThread(ctx context.Context, params CreateThreadParams) (thread.Record, error) {
	addressBytes, err := sealbox.RandomBytes(identity.Size)
	if err != nil {
		return thread.Record{}, fmt.Errorf("could not generate thread address: %w", err)
	}

	address, err := identity.FromBytes(addressBytes)
	if err != nil {
		return thread.Record{}, err
	}

	record, err := NewRecord(params, address, s.now().UTC())
	if err != nil {
		return thread.Record{}, err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return thread.Record{}, fmt.Errorf("could not marshal thread: %w", err)
	}

	if _, err := s.threads.Create(ctx, address.String(), data); err != nil {
		return thread.Record{}, fmt.Errorf("could not store thread: %w", err)
	}

	return record, nil
}

func (s *NATSService) FindThread(ctx context.Context, address identity.Identity) (thread.Record, error) {
	record, _, err := s.getThread(ctx, address)
	return record, err
}

func (s *NATSService) getThread(ctx context.Context, address identity.Identity) (thread.Record, uint64, error) {
	entry, err := s.threads.Get(ctx, address.String())
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return thread.Record{}, 0, ErrThreadNotFound
		}
		return thread.Record{}, 0, fmt.Errorf("could not get thread: %w", err)
	}

	var record thread.Record
	if err := json.Unmarshal(entry.Value(), &record); err != nil {
		return thread.Record{}, 0, fmt.Errorf("could not unmarshal thread: %w", err)
	}

	return record, entry.Revision(), nil
}

func (s *NATSService) ListThreads(ctx context.Context, member identity.Identity) ([]thread.Record, error) {
	keys, err := s.threads.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []thread.Record{}, nil
		}
		return nil, fmt.Errorf("could not list threads: %w", err)
	}

	records := make([]thread.Record, 0, len(keys))
	for _, key := range keys {
		address, err := identity.Parse(key)
		if err != nil {
			continue
		}

		record, err := s.FindThread(ctx, address)
		if err != nil {
			if errors.Is(err, ErrThreadNotFound) {
				continue
			}
			return nil, err
		}

		if _, ok := record.Member(member); ok {
			records = append(records, record)
		}
	}

	return records, nil
}

func (s *NATSService) DeleteThread(ctx context.Context, address identity.Identity) error {
	if err := s.stream.Purge(ctx, jetstream.WithPurgeSubject(threadSubject(address))); err != nil {
		return fmt.Errorf("could not purge messages: %w", err)
	}

	if err := s.threads.Delete(ctx, address.String()); err != nil {
		return fmt.Errorf("could not delete thread: %w", err)
	}

	return nil
}

type SendMessageParams struct {
	Address identity.Identity
	Author  identity.Identity
	Data    []byte
}

// SendMessage stores the message and then bumps the thread's activity time.
// Once the publish succeeds the message is delivered, so a failed bump is
// logged and not reported; a retry by the caller would store it twice.
func (s *NATSService) SendMessage(ctx context.Context, params SendMessageParams) error {
	_, err := s.js.Publish(ctx, messageSubject(params.Address, params.Author), params.Data)
	if err != nil {
		return fmt.Errorf("could not publish message: %w", err)
	}

	if err := s.touchThread(ctx, params.Address); err != nil {
		slog.Warn("Could not update thread activity",
			slog.String("address", params.Address.String()),
			slog.Any("err", err))
	}

	return nil
}

// touchThread bumps UpdatedAt, retrying when a concurrent send won the race.
func (s *NATSService) touchThread(ctx context.Context, address identity.Identity) error {
	for attempt := 0; attempt < maxTouchAttempts; attempt++ {
		record, revision, err := s.getThread(ctx, address)
		if err != nil {
			return err
		}

		record.UpdatedAt = s.now().UTC()
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("could not marshal thread: %w", err)
		}

		_, err = s.threads.Update(ctx, address.String(), data, revision)
		if err == nil {
			return nil
		}
		if !isRevisionConflict(err) {
			return fmt.Errorf("could not update thread: %w", err)
		}
	}

	return fmt.Errorf("could not update thread: too many concurrent updates")
}

func isRevisionConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

type Message struct {
	Author    identity.Identity
	Data      []byte
	CreatedAt time.Time
}

// ListMessages returns up to limit of the thread's latest messages, newest
// first. It reads the thread's subjects once, in stream order, through a
// short-lived pull consumer and keeps a sliding window of the last limit
// messages.
func (s *NATSService) ListMessages(ctx context.Context, address identity.Identity, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	limit = min(limit, MaxMessageLimit)

	deliverPolicy := jetstream.DeliverAllPolicy
	if limit == 1 {
		deliverPolicy = jetstream.DeliverLastPolicy
	}

	consumer, err := s.stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject:     threadSubject(address),
		DeliverPolicy:     deliverPolicy,
		AckPolicy:         jetstream.AckNonePolicy,
		InactiveThreshold: time.Minute,
		MemoryStorage:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create consumer: %w", err)
	}
	defer func() {
		if err := s.stream.DeleteConsumer(context.WithoutCancel(ctx), consumer.CachedInfo().Name); err != nil {
			slog.Debug("Could not delete consumer", slog.Any("err", err))
		}
	}()

	window := make([]Message, 0, limit)
	for {
		batch, err := consumer.FetchNoWait(fetchBatchSize)
		if err != nil {
			return nil, fmt.Errorf("could not fetch messages: %w", err)
		}

		fetched := 0
		pending := uint64(0)
		for msg := range batch.Messages() {
			fetched++

			var message Message
			message, pending, err = decodeMessage(msg)
			if err != nil {
				return nil, err
			}

			if len(window) == limit {
				copy(window, window[1:])
				window = window[:limit-1]
			}
			window = append(window, message)
		}
		if err := batch.Error(); err != nil {
			return nil, fmt.Errorf("could not fetch messages: %w", err)
		}

		if fetched == 0 || pending == 0 {
			break
		}
	}

	slices.Reverse(window)
	return window, nil
}

// decodeMessage also returns how many messages of the thread are left after
// this one.
func decodeMessage(msg jetstream.Msg) (Message, uint64, error) {
	parts := strings.Split(msg.Subject(), ".")
	if len(parts) != 3 {
		return Message{}, 0, fmt.Errorf("unexpected subject %q", msg.Subject())
	}

	authorBytes, err := hex.DecodeString(parts[2])
	if err != nil {
		return Message{}, 0, fmt.Errorf("could not decode author: %w", err)
	}

	author, err := identity.FromBytes(authorBytes)
	if err != nil {
		return Message{}, 0, fmt.Errorf("could not decode author: %w", err)
	}

	metadata, err := msg.Metadata()
	if err != nil {
		return Message{}, 0, fmt.Errorf("could not get metadata: %w", err)
	}

	return Message{
		Author:    author,
		Data:      msg.Data(),
		CreatedAt: metadata.Timestamp,
	}, metadata.NumPending, nil
}

func (s *NATSService) Close() {
	s.nc.Close()
}
