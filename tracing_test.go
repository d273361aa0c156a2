package chathistory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingConversationStorage(t *testing.T) {
	storage := NewTracingConversationStorage(NewInMemoryConversationStorage())
	ctx := context.Background()

	conv, err := storage.FindConversation(ctx, "traced")
	require.NoError(t, err)

	require.NoError(t, storage.SetPrompt(ctx, conv.ID, "prompt"))

	prompt, ok, err := storage.Prompt(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "prompt", prompt)

	model, err := storage.Model(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, model)

	maxTokens, err := storage.MaxTokens(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxTokens, maxTokens)

	require.NoError(t, storage.AddMessage(ctx, conv.ID, NewMessage(RoleUser, "hello")))

	history, err := storage.History(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)

	got, err := storage.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.Name, got.Name)

	// Errors pass through the decorator unchanged.
	_, err = storage.GetConversation(ctx, 9999)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	assert.NoError(t, storage.Close())
}
