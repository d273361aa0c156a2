package chathistory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTranscriptDB(t *testing.T) *SQLiteTranscriptStorage {
	storage, err := NewSQLiteTranscriptStorage(t.TempDir()+"/transcript.db", NewNullLogger())
	require.NoError(t, err)

	t.Cleanup(func() {
		storage.Close()
	})

	return storage
}

func TestTranscriptInitSchema(t *testing.T) {
	storage := setupTranscriptDB(t)

	ctx := context.Background()

	var count int
	err := storage.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('conversation', 'history', 'template')").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "Expected 3 tables to be created")
}

func TestTranscriptFindConversationIdempotent(t *testing.T) {
	storage := setupTranscriptDB(t)

	ctx := context.Background()

	c1, err := storage.FindConversation(ctx, "test")
	require.NoError(t, err)
	c2, err := storage.FindConversation(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, c1, c2)

	other, err := storage.FindConversation(ctx, "other")
	require.NoError(t, err)
	assert.NotEqual(t, c1, other)
}

func TestTranscriptNameUnique(t *testing.T) {
	storage := setupTranscriptDB(t)

	ctx := context.Background()

	_, err := storage.db.ExecContext(ctx, `INSERT INTO conversation (name) VALUES ('dup')`)
	require.NoError(t, err)

	_, err = storage.db.ExecContext(ctx, `INSERT INTO conversation (name) VALUES ('dup')`)
	assert.Error(t, err, "duplicate name must violate the unique constraint")
}

func TestTranscriptHistoryForeignKey(t *testing.T) {
	storage := setupTranscriptDB(t)

	ctx := context.Background()

	_, err := storage.db.ExecContext(ctx, `INSERT INTO history (conversation, role, content) VALUES (9999, 1, 'orphan')`)
	assert.Error(t, err, "history row referencing a missing conversation must violate the foreign key")
}

func TestTranscriptTurns(t *testing.T) {
	storage := setupTranscriptDB(t)

	ctx := context.Background()

	conversation, err := storage.FindConversation(ctx, "test")
	require.NoError(t, err)

	require.NoError(t, storage.AddTurn(ctx, conversation, RoleSystem, "be brief"))
	require.NoError(t, storage.AddTurn(ctx, conversation, RoleUser, "hello"))
	require.NoError(t, storage.AddTurn(ctx, conversation, RoleAssistant, "hi there"))

	turns, err := storage.History(ctx, conversation)
	require.NoError(t, err)
	require.Len(t, turns, 3)

	assert.Equal(t, RoleSystem, turns[0].Role)
	assert.Equal(t, "be brief", turns[0].Content)
	assert.Equal(t, RoleUser, turns[1].Role)
	assert.Equal(t, "hello", turns[1].Content)
	assert.Equal(t, RoleAssistant, turns[2].Role)
	assert.Equal(t, "hi there", turns[2].Content)

	assert.Less(t, turns[0].ID, turns[1].ID, "turns should come back in insertion order")

	err = storage.AddTurn(ctx, 9999, RoleUser, "nope")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestTranscriptHistoryInvalidRole(t *testing.T) {
	storage := setupTranscriptDB(t)

	ctx := context.Background()

	conversation, err := storage.FindConversation(ctx, "test")
	require.NoError(t, err)

	_, err = storage.db.ExecContext(ctx, `INSERT INTO history (conversation, role, content) VALUES (?, 9, 'bad')`, conversation)
	require.NoError(t, err)

	_, err = storage.History(ctx, conversation)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestTemplates(t *testing.T) {
	storage := setupTranscriptDB(t)

	ctx := context.Background()

	_, err := storage.Template(ctx, "greeting")
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	require.NoError(t, storage.SetTemplate(ctx, "greeting", "Hello, {{ user }}!"))

	content, err := storage.Template(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "Hello, {{ user }}!", content)

	// Setting an existing name replaces the content.
	require.NoError(t, storage.SetTemplate(ctx, "greeting", "Howdy, {{ user }}!"))

	content, err = storage.Template(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "Howdy, {{ user }}!", content)
}
