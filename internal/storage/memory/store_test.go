package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/eternisai/agent-stream/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreMessages(t *testing.T) {
	ctx := context.Background()
	s := New()

	chat, err := s.CreateChat(ctx, "user-1", "")
	require.NoError(t, err)

	for _, c := range []string{"a", "b", "c"} {
		_, err := s.CreateMessage(ctx, storage.CreateMessageParams{ChatID: chat.ID, Role: storage.RoleUser, Content: c})
		require.NoError(t, err)
	}
	_, err = s.CreateMessage(ctx, storage.CreateMessageParams{ChatID: chat.ID, Role: storage.RoleAssistant, Content: "d"})
	require.NoError(t, err)

	tail, err := s.ListMessages(ctx, chat.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "c", tail[0].Content)
	assert.Equal(t, "d", tail[1].Content)

	assert.Len(t, s.Messages(chat.ID, storage.RoleAssistant), 1)
	assert.Len(t, s.Messages(chat.ID, ""), 4)
}

func TestStoreFailCreateMessage(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("disk full")
	s.FailCreateMessage = map[storage.Role]error{storage.RoleUser: boom}

	chat, err := s.CreateChat(ctx, "user-1", "")
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, storage.CreateMessageParams{ChatID: chat.ID, Role: storage.RoleUser})
	assert.ErrorIs(t, err, boom)
	_, err = s.CreateMessage(ctx, storage.CreateMessageParams{ChatID: chat.ID, Role: storage.RoleAssistant})
	assert.NoError(t, err)
}

func TestStoreNotFound(t *testing.T) {
	s := New()

	_, err := s.FindChat(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetEntitlement(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
