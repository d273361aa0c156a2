package chathistory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgreSQL error codes checked when mapping constraint violations.
const (
	pqForeignKeyViolation = pq.ErrorCode("23503")
	pqUniqueViolation     = pq.ErrorCode("23505")
)

// PostgresConversationStorage is a PostgreSQL implementation of
// ConversationStorage. It takes an already opened *sql.DB backed by the
// lib/pq driver.
type PostgresConversationStorage struct {
	db     *sql.DB
	logger Logger
}

// NewPostgresConversationStorage creates a new instance of
// PostgresConversationStorage and ensures the schema exists.
func NewPostgresConversationStorage(db *sql.DB, logger Logger) (*PostgresConversationStorage, error) {
	storage := &PostgresConversationStorage{
		db:     db,
		logger: logger,
	}

	if err := storage.initSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return storage, nil
}

// initSchema creates the necessary tables if they don't exist
func (s *PostgresConversationStorage) initSchema(ctx context.Context) error {
	createConversationTableSQL := `
    CREATE TABLE IF NOT EXISTS conversation (
        id BIGSERIAL PRIMARY KEY,
        name TEXT NOT NULL UNIQUE,
        max_tokens INTEGER NOT NULL DEFAULT 256,
        model TEXT NOT NULL DEFAULT 'gpt-3.5-turbo',
        prompt TEXT
    );`

	createHistoryTableSQL := `
    CREATE TABLE IF NOT EXISTS history (
        id BIGSERIAL PRIMARY KEY,
        conversation BIGINT NOT NULL REFERENCES conversation (id),
        message TEXT NOT NULL
    );`

	createHistoryIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_history_conversation ON history (conversation);
	`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for schema init: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createConversationTableSQL); err != nil {
		return fmt.Errorf("failed to create conversation table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, createHistoryTableSQL); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, createHistoryIndexSQL); err != nil {
		return fmt.Errorf("failed to create history conversation index: %w", err)
	}

	return tx.Commit()
}

// FindConversation returns the conversation with the given name, inserting a
// new row with default settings when the name is unseen.
func (s *PostgresConversationStorage) FindConversation(ctx context.Context, name string) (*Conversation, error) {
	insertSQL := `INSERT INTO conversation (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, insertSQL, name); err != nil {
		return nil, fmt.Errorf("failed to insert conversation (name: %s): %w", name, err)
	}

	conv, err := scanConversation(s.db.QueryRowContext(
		ctx,
		`SELECT id, name, max_tokens, model, prompt FROM conversation WHERE name = $1`,
		name,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to read back conversation (name: %s): %w", name, err)
	}

	s.logger.WithFields(map[string]interface{}{"conversation_id": conv.ID, "name": name}).Debug("conversation resolved")
	return conv, nil
}

// GetConversation retrieves a conversation by its primary key.
func (s *PostgresConversationStorage) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	conv, err := scanConversation(s.db.QueryRowContext(
		ctx,
		`SELECT id, name, max_tokens, model, prompt FROM conversation WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
		}
		return nil, fmt.Errorf("failed to query conversation %d: %w", id, err)
	}

	return conv, nil
}

// SetPrompt sets or replaces the system prompt of an existing conversation.
func (s *PostgresConversationStorage) SetPrompt(ctx context.Context, id int64, prompt string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE conversation SET prompt = $1 WHERE id = $2`, prompt, id)
	if err != nil {
		return fmt.Errorf("failed to update prompt for conversation %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for prompt update: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
	}

	return nil
}

// Prompt returns the conversation's system prompt and whether one is set.
func (s *PostgresConversationStorage) Prompt(ctx context.Context, id int64) (string, bool, error) {
	var prompt sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT prompt FROM conversation WHERE id = $1`, id).Scan(&prompt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
		}
		return "", false, fmt.Errorf("failed to query prompt for conversation %d: %w", id, err)
	}

	return prompt.String, prompt.Valid, nil
}

// Model returns the conversation's model identifier.
func (s *PostgresConversationStorage) Model(ctx context.Context, id int64) (string, error) {
	var model string
	err := s.db.QueryRowContext(ctx, `SELECT model FROM conversation WHERE id = $1`, id).Scan(&model)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
		}
		return "", fmt.Errorf("failed to query model for conversation %d: %w", id, err)
	}

	return model, nil
}

// MaxTokens returns the conversation's max_tokens setting.
func (s *PostgresConversationStorage) MaxTokens(ctx context.Context, id int64) (int, error) {
	var maxTokens int
	err := s.db.QueryRowContext(ctx, `SELECT max_tokens FROM conversation WHERE id = $1`, id).Scan(&maxTokens)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
		}
		return 0, fmt.Errorf("failed to query max_tokens for conversation %d: %w", id, err)
	}

	return maxTokens, nil
}

// AddMessage appends a JSON-encoded message to the conversation's history.
// A foreign key violation from the engine is reported as
// ErrConversationNotFound; no separate existence check is issued.
func (s *PostgresConversationStorage) AddMessage(ctx context.Context, id int64, message Message) error {
	encoded, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	insertSQL := `INSERT INTO history (conversation, message) VALUES ($1, $2)`
	if _, err := s.db.ExecContext(ctx, insertSQL, id, string(encoded)); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
		}
		return fmt.Errorf("failed to insert message for conversation %d: %w", id, err)
	}

	return nil
}

// History returns all messages of a conversation ordered by history id.
func (s *PostgresConversationStorage) History(ctx context.Context, id int64) ([]Message, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversation WHERE id = $1 LIMIT 1`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
		}
		return nil, fmt.Errorf("failed to check conversation existence (id: %d): %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT message FROM history WHERE conversation = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for conversation %d: %w", id, err)
	}
	defer rows.Close()

	messages := []Message{}

	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("failed to scan history row for conversation %d: %w", id, err)
		}

		var message Message
		if err := json.Unmarshal([]byte(encoded), &message); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message for conversation %d: %w", id, err)
		}

		messages = append(messages, message)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows for conversation %d: %w", id, err)
	}

	return messages, nil
}

// Close releases the database connection.
func (s *PostgresConversationStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
