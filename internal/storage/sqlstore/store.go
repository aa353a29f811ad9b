// Package sqlstore implements storage.Store on database/sql for Postgres and
// SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/eternisai/agent-stream/internal/storage"
	"github.com/google/uuid"
)

// Store is a SQL implementation of storage.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New wraps an open, migrated database.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{
		db:      db,
		dialect: d,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) CreateChat(ctx context.Context, userID, title string) (storage.Chat, error) {
	now := s.now()
	chat := storage.Chat{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.exec(ctx,
		`INSERT INTO chats (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.Title, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return storage.Chat{}, fmt.Errorf("failed to insert chat: %w", err)
	}
	return chat, nil
}

func (s *Store) FindChat(ctx context.Context, chatID string) (storage.Chat, error) {
	var chat storage.Chat
	err := s.queryRow(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chats WHERE id = ?`, chatID,
	).Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Chat{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Chat{}, fmt.Errorf("failed to query chat: %w", err)
	}
	return chat, nil
}

func (s *Store) ListChats(ctx context.Context, userID string) ([]storage.Chat, error) {
	rows, err := s.query(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chats WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var chats []storage.Chat
	for rows.Next() {
		var chat storage.Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (s *Store) TouchChat(ctx context.Context, chatID string, at time.Time) error {
	res, err := s.exec(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, at.UTC(), chatID)
	if err != nil {
		return fmt.Errorf("failed to update chat: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, params storage.CreateMessageParams) (storage.Message, error) {
	msg := storage.Message{
		ID:        uuid.NewString(),
		ChatID:    params.ChatID,
		Role:      params.Role,
		Content:   params.Content,
		Metadata:  params.Metadata,
		CreatedAt: s.now(),
	}

	var metadata sql.NullString
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return storage.Message{}, fmt.Errorf("failed to encode message metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.exec(ctx,
		`INSERT INTO messages (id, chat_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ChatID, string(msg.Role), msg.Content, metadata, msg.CreatedAt)
	if err != nil {
		return storage.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, chatID string, limit int) ([]storage.Message, error) {
	const columns = `SELECT id, chat_id, role, content, metadata, created_at FROM messages WHERE chat_id = ?`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.query(ctx, columns+` ORDER BY seq DESC LIMIT ?`, chatID, limit)
	} else {
		rows, err = s.query(ctx, columns+` ORDER BY seq DESC`, chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var messages []storage.Message
	for rows.Next() {
		var (
			msg      storage.Message
			role     string
			metadata sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.ChatID, &role, &msg.Content, &metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = storage.Role(role)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of message %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(messages)
	return messages, nil
}

func (s *Store) GetEntitlement(ctx context.Context, userID string) (storage.Entitlement, error) {
	var (
		ent     storage.Entitlement
		expires sql.NullTime
	)
	err := s.queryRow(ctx,
		`SELECT user_id, tier, pro_expires_at, updated_at FROM entitlements WHERE user_id = ?`, userID,
	).Scan(&ent.UserID, &ent.Tier, &expires, &ent.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Entitlement{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Entitlement{}, fmt.Errorf("failed to query entitlement: %w", err)
	}
	if expires.Valid {
		ent.ProExpiresAt = &expires.Time
	}
	return ent, nil
}

func (s *Store) UpsertEntitlement(ctx context.Context, ent storage.Entitlement) error {
	var expires sql.NullTime
	if ent.ProExpiresAt != nil {
		expires = sql.NullTime{Time: ent.ProExpiresAt.UTC(), Valid: true}
	}

	_, err := s.exec(ctx, `
		INSERT INTO entitlements (user_id, tier, pro_expires_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			tier = excluded.tier,
			pro_expires_at = excluded.pro_expires_at,
			updated_at = excluded.updated_at`,
		ent.UserID, ent.Tier, expires, s.now())
	if err != nil {
		return fmt.Errorf("failed to upsert entitlement: %w", err)
	}
	return nil
}

func (s *Store) AddFact(ctx context.Context, userID, factType, body string) (storage.Fact, error) {
	fact := storage.Fact{
		ID:        uuid.NewString(),
		UserID:    userID,
		FactType:  factType,
		FactBody:  body,
		CreatedAt: s.now(),
	}

	_, err := s.exec(ctx,
		`INSERT INTO user_facts (id, user_id, fact_type, fact_body, created_at) VALUES (?, ?, ?, ?, ?)`,
		fact.ID, fact.UserID, fact.FactType, fact.FactBody, fact.CreatedAt)
	if err != nil {
		return storage.Fact{}, fmt.Errorf("failed to insert fact: %w", err)
	}
	return fact, nil
}

func (s *Store) ListFacts(ctx context.Context, userID string) ([]storage.Fact, error) {
	rows, err := s.query(ctx,
		`SELECT id, user_id, fact_type, fact_body, created_at FROM user_facts WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var facts []storage.Fact
	for rows.Next() {
		var f storage.Fact
		if err := rows.Scan(&f.ID, &f.UserID, &f.FactType, &f.FactBody, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
