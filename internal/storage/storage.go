// Package storage defines the persisted records of the chat service and the
// interface the streaming layer uses to read and write them.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Chat is a conversation owned by one user.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one persisted chat message.
type Message struct {
	ID        string         `json:"id"`
	ChatID    string         `json:"chatId"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Entitlement is the subscription state of a user.
type Entitlement struct {
	UserID       string     `json:"userId"`
	Tier         string     `json:"tier"`
	ProExpiresAt *time.Time `json:"proExpiresAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsActivePro reports whether the entitlement grants Pro at now.
func (e Entitlement) IsActivePro(now time.Time) bool {
	if e.Tier != "pro" {
		return false
	}
	return e.ProExpiresAt == nil || e.ProExpiresAt.After(now)
}

// Fact is a remembered fact about a user.
type Fact struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	FactType  string    `json:"factType"`
	FactBody  string    `json:"factBody"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateMessageParams holds the fields of a new message.
type CreateMessageParams struct {
	ChatID   string
	Role     Role
	Content  string
	Metadata map[string]any
}

// ChatStore persists chats.
type ChatStore interface {
	CreateChat(ctx context.Context, userID, title string) (Chat, error)
	// FindChat returns ErrNotFound when the chat does not exist.
	FindChat(ctx context.Context, chatID string) (Chat, error)
	ListChats(ctx context.Context, userID string) ([]Chat, error)
	// TouchChat sets the chat's UpdatedAt to at.
	TouchChat(ctx context.Context, chatID string, at time.Time) error
}

// MessageStore persists messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	// ListMessages returns the last limit messages of a chat, oldest first.
	// A limit of zero or less returns every message.
	ListMessages(ctx context.Context, chatID string, limit int) ([]Message, error)
}

// EntitlementStore persists subscription state.
type EntitlementStore interface {
	// GetEntitlement returns ErrNotFound for users without a record.
	GetEntitlement(ctx context.Context, userID string) (Entitlement, error)
	UpsertEntitlement(ctx context.Context, ent Entitlement) error
}

// FactStore persists user facts.
type FactStore interface {
	AddFact(ctx context.Context, userID, factType, body string) (Fact, error)
	ListFacts(ctx context.Context, userID string) ([]Fact, error)
}

// Store is the full persistence interface.
type Store interface {
	ChatStore
	MessageStore
	EntitlementStore
	FactStore
	Close() error
}
