package chathistory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConversationStorage is an SQLite implementation of ConversationStorage
type SQLiteConversationStorage struct {
	db     *sql.DB
	mu     sync.RWMutex // Protects against concurrent access issues if needed, though transactions help
	logger Logger
}

// NewSQLiteConversationStorage creates a new instance of SQLiteConversationStorage.
// It takes the path to the SQLite database file. Foreign key enforcement is
// switched on so orphaned history rows are rejected by the engine.
func NewSQLiteConversationStorage(databasePath string, logger Logger) (*SQLiteConversationStorage, error) {
	db, err := sql.Open("sqlite3", databasePath+"?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	storage := &SQLiteConversationStorage{
		db:     db,
		logger: logger,
	}

	if err := storage.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return storage, nil
}

// initSchema creates the necessary tables if they don't exist
func (s *SQLiteConversationStorage) initSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createConversationTableSQL := `
    CREATE TABLE IF NOT EXISTS conversation (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE,
        max_tokens INTEGER NOT NULL DEFAULT 256,
        model TEXT NOT NULL DEFAULT 'gpt-3.5-turbo',
        prompt TEXT
    );`

	createHistoryTableSQL := `
    CREATE TABLE IF NOT EXISTS history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        conversation INTEGER NOT NULL REFERENCES conversation (id),
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
// new row with default settings when the name is unseen. The insert-then-read
// runs in one transaction so two callers racing on the same name observe the
// same row.
func (s *SQLiteConversationStorage) FindConversation(ctx context.Context, name string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for finding conversation: %w", err)
	}
	defer tx.Rollback()

	insertSQL := `INSERT INTO conversation (name) VALUES (?) ON CONFLICT (name) DO NOTHING`
	if _, err := tx.ExecContext(ctx, insertSQL, name); err != nil {
		return nil, fmt.Errorf("failed to insert conversation (name: %s): %w", name, err)
	}

	conv, err := scanConversation(tx.QueryRowContext(
		ctx,
		`SELECT id, name, max_tokens, model, prompt FROM conversation WHERE name = ?`,
		name,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to read back conversation (name: %s): %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction for finding conversation: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{"conversation_id": conv.ID, "name": name}).Debug("conversation resolved")
	return conv, nil
}

// GetConversation retrieves a conversation by its primary key.
func (s *SQLiteConversationStorage) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, err := scanConversation(s.db.QueryRowContext(
		ctx,
		`SELECT id, name, max_tokens, model, prompt FROM conversation WHERE id = ?`,
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
func (s *SQLiteConversationStorage) SetPrompt(ctx context.Context, id int64, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `UPDATE conversation SET prompt = ? WHERE id = ?`, prompt, id)
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
func (s *SQLiteConversationStorage) Prompt(ctx context.Context, id int64) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var prompt sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT prompt FROM conversation WHERE id = ?`, id).Scan(&prompt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
		}
		return "", false, fmt.Errorf("failed to query prompt for conversation %d: %w", id, err)
	}

	return prompt.String, prompt.Valid, nil
}

// Model returns the conversation's model identifier.
func (s *SQLiteConversationStorage) Model(ctx context.Context, id int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var model string
	err := s.db.QueryRowContext(ctx, `SELECT model FROM conversation WHERE id = ?`, id).Scan(&model)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
		}
		return "", fmt.Errorf("failed to query model for conversation %d: %w", id, err)
	}

	return model, nil
}

// MaxTokens returns the conversation's max_tokens setting.
func (s *SQLiteConversationStorage) MaxTokens(ctx context.Context, id int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var maxTokens int
	err := s.db.QueryRowContext(ctx, `SELECT max_tokens FROM conversation WHERE id = ?`, id).Scan(&maxTokens)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
		}
		return 0, fmt.Errorf("failed to query max_tokens for conversation %d: %w", id, err)
	}

	return maxTokens, nil
}

// AddMessage appends a JSON-encoded message to the conversation's history.
func (s *SQLiteConversationStorage) AddMessage(ctx context.Context, id int64, message Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for adding message: %w", err)
	}
	defer tx.Rollback()

	var exists int
	checkSQL := `SELECT 1 FROM conversation WHERE id = ? LIMIT 1`
	err = tx.QueryRowContext(ctx, checkSQL, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
		}
		return fmt.Errorf("failed to check conversation existence (id: %d): %w", id, err)
	}

	insertSQL := `INSERT INTO history (conversation, message) VALUES (?, ?)`
	if _, err := tx.ExecContext(ctx, insertSQL, id, string(encoded)); err != nil {
		return fmt.Errorf("failed to insert message for conversation %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction for adding message: %w", err)
	}

	return nil
}

// History returns all messages of a conversation ordered by history id.
func (s *SQLiteConversationStorage) History(ctx context.Context, id int64) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversation WHERE id = ? LIMIT 1`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
		}
		return nil, fmt.Errorf("failed to check conversation existence (id: %d): %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT message FROM history WHERE conversation = ? ORDER BY id ASC`, id)
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
func (s *SQLiteConversationStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// scanConversation reads one conversation row from a QueryRow result.
func scanConversation(row *sql.Row) (*Conversation, error) {
	var conv Conversation
	var prompt sql.NullString

	if err := row.Scan(&conv.ID, &conv.Name, &conv.MaxTokens, &conv.Model, &prompt); err != nil {
		return nil, err
	}

	if prompt.Valid {
		conv.Prompt = &prompt.String
	}

	return &conv, nil
}
