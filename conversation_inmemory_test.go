package chathistory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryFindConversation(t *testing.T) {
	storage := NewInMemoryConversationStorage()
	ctx := context.Background()

	c1, err := storage.FindConversation(ctx, "test")
	require.NoError(t, err)
	c2, err := storage.FindConversation(ctx, "test")
	require.NoError(t, err)

	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, DefaultMaxTokens, c1.MaxTokens)
	assert.Equal(t, DefaultModel, c1.Model)
	assert.Nil(t, c1.Prompt)

	other, err := storage.FindConversation(ctx, "other")
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, other.ID)
}

func TestInMemoryPrompt(t *testing.T) {
	storage := NewInMemoryConversationStorage()
	ctx := context.Background()

	conv, err := storage.FindConversation(ctx, "test")
	require.NoError(t, err)

	_, ok, err := storage.Prompt(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, storage.SetPrompt(ctx, conv.ID, "prompt"))

	prompt, ok, err := storage.Prompt(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "prompt", prompt)

	assert.ErrorIs(t, storage.SetPrompt(ctx, 42, "x"), ErrConversationNotFound)
}

func TestInMemoryHistory(t *testing.T) {
	storage := NewInMemoryConversationStorage()
	ctx := context.Background()

	conv, err := storage.FindConversation(ctx, "test")
	require.NoError(t, err)

	messages := []Message{
		NewMessage(RoleUser, "hello"),
		NewMessage(RoleAssistant, "hi there"),
	}
	for _, msg := range messages {
		require.NoError(t, storage.AddMessage(ctx, conv.ID, msg))
	}

	history, err := storage.History(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, messages, history)

	// The returned slice is a copy; mutating it must not affect the store.
	history[0].Content = "mutated"
	history, err = storage.History(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", history[0].Content)

	assert.ErrorIs(t, storage.AddMessage(ctx, 42, NewMessage(RoleUser, "x")), ErrConversationNotFound)

	_, err = storage.History(ctx, 42)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestInMemorySettings(t *testing.T) {
	storage := NewInMemoryConversationStorage()
	ctx := context.Background()

	conv, err := storage.FindConversation(ctx, "test")
	require.NoError(t, err)

	maxTokens, err := storage.MaxTokens(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 256, maxTokens)

	model, err := storage.Model(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo", model)

	_, err = storage.GetConversation(ctx, 42)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	assert.NoError(t, storage.Close())
}
