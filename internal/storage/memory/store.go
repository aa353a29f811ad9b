// Package memory is an in-process implementation of storage.Store.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/eternisai/agent-stream/internal/storage"
	"github.com/google/uuid"
)

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu           sync.RWMutex
	chats        map[string]storage.Chat
	messages     map[string][]storage.Message
	entitlements map[string]storage.Entitlement
	facts        map[string][]storage.Fact

	// FailCreateMessage makes CreateMessage fail for the given role.
	FailCreateMessage map[storage.Role]error
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		chats:        make(map[string]storage.Chat),
		messages:     make(map[string][]storage.Message),
		entitlements: make(map[string]storage.Entitlement),
		facts:        make(map[string][]storage.Fact),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateChat(_ context.Context, userID, title string) (storage.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	chat := storage.Chat{ID: uuid.NewString(), UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}
	s.chats[chat.ID] = chat
	return chat, nil
}

func (s *Store) FindChat(_ context.Context, chatID string) (storage.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return storage.Chat{}, storage.ErrNotFound
	}
	return chat, nil
}

func (s *Store) ListChats(_ context.Context, userID string) ([]storage.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chats []storage.Chat
	for _, c := range s.chats {
		if c.UserID == userID {
			chats = append(chats, c)
		}
	}
	slices.SortFunc(chats, func(a, b storage.Chat) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return chats, nil
}

func (s *Store) TouchChat(_ context.Context, chatID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return storage.ErrNotFound
	}
	chat.UpdatedAt = at.UTC()
	s.chats[chatID] = chat
	return nil
}

func (s *Store) CreateMessage(_ context.Context, params storage.CreateMessageParams) (storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.FailCreateMessage[params.Role]; err != nil {
		return storage.Message{}, err
	}
	if _, ok := s.chats[params.ChatID]; !ok {
		return storage.Message{}, fmt.Errorf("chat %s: %w", params.ChatID, storage.ErrNotFound)
	}

	msg := storage.Message{
		ID:        uuid.NewString(),
		ChatID:    params.ChatID,
		Role:      params.Role,
		Content:   params.Content,
		Metadata:  maps.Clone(params.Metadata),
		CreatedAt: time.Now().UTC(),
	}
	s.messages[params.ChatID] = append(s.messages[params.ChatID], msg)
	return msg, nil
}

func (s *Store) ListMessages(_ context.Context, chatID string, limit int) ([]storage.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return slices.Clone(msgs), nil
}

// Messages returns every message of a chat filtered by role. An empty role
// matches all messages.
func (s *Store) Messages(chatID string, role storage.Role) []storage.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Message
	for _, m := range s.messages[chatID] {
		if role == "" || m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

func (s *Store) GetEntitlement(_ context.Context, userID string) (storage.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entitlements[userID]
	if !ok {
		return storage.Entitlement{}, storage.ErrNotFound
	}
	return ent, nil
}

func (s *Store) UpsertEntitlement(_ context.Context, ent storage.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent.UpdatedAt = time.Now().UTC()
	s.entitlements[ent.UserID] = ent
	return nil
}

func (s *Store) AddFact(_ context.Context, userID, factType, body string) (storage.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fact := storage.Fact{ID: uuid.NewString(), UserID: userID, FactType: factType, FactBody: body, CreatedAt: time.Now().UTC()}
	s.facts[userID] = append(s.facts[userID], fact)
	return fact, nil
}

func (s *Store) ListFacts(_ context.Context, userID string) ([]storage.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.facts[userID]), nil
}
