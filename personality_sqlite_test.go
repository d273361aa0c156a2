package chathistory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPersonalityDB(t *testing.T) *SQLitePersonalityStorage {
	storage, err := NewSQLitePersonalityStorage(t.TempDir()+"/personality.db", NewNullLogger())
	require.NoError(t, err)

	t.Cleanup(func() {
		storage.Close()
	})

	return storage
}

func TestCreateAndGetPersonality(t *testing.T) {
	storage := setupPersonalityDB(t)

	ctx := context.Background()

	created, err := storage.CreatePersonality(ctx, "horse", "You are a helpful horse.")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	got, err := storage.GetPersonality(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got, "personality must round-trip unchanged by primary key")

	found, err := storage.FindPersonality(ctx, "horse")
	require.NoError(t, err)
	assert.Equal(t, created, found)
}

func TestCreatePersonalityDuplicateName(t *testing.T) {
	storage := setupPersonalityDB(t)

	ctx := context.Background()

	_, err := storage.CreatePersonality(ctx, "horse", "first")
	require.NoError(t, err)

	_, err = storage.CreatePersonality(ctx, "horse", "second")
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestPersonalityPromptRequired(t *testing.T) {
	storage := setupPersonalityDB(t)

	ctx := context.Background()

	_, err := storage.db.ExecContext(ctx, `INSERT INTO personalities (name) VALUES ('promptless')`)
	assert.Error(t, err, "omitting the prompt must violate the not-null constraint")
}

func TestPersonalityHistoryForeignKey(t *testing.T) {
	storage := setupPersonalityDB(t)

	ctx := context.Background()

	_, err := storage.db.ExecContext(ctx, `INSERT INTO history (personality, role, content) VALUES (9999, 1, 'orphan')`)
	assert.Error(t, err, "history row referencing a missing personality must violate the foreign key")
}

func TestPersonalityTurns(t *testing.T) {
	storage := setupPersonalityDB(t)

	ctx := context.Background()

	p, err := storage.CreatePersonality(ctx, "horse", "You are a helpful horse.")
	require.NoError(t, err)

	require.NoError(t, storage.AddTurn(ctx, p.ID, RoleUser, "hello"))
	require.NoError(t, storage.AddTurn(ctx, p.ID, RoleAssistant, "neigh"))

	turns, err := storage.History(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, turns, 2)

	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, "neigh", turns[1].Content)

	err = storage.AddTurn(ctx, 9999, RoleUser, "nope")
	assert.ErrorIs(t, err, ErrPersonalityNotFound)
}

func TestPersonalityNotFound(t *testing.T) {
	storage := setupPersonalityDB(t)

	ctx := context.Background()

	_, err := storage.FindPersonality(ctx, "missing")
	assert.ErrorIs(t, err, ErrPersonalityNotFound)

	_, err = storage.GetPersonality(ctx, 9999)
	assert.ErrorIs(t, err, ErrPersonalityNotFound)
}
