package chathistory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteTranscriptStorage is an SQLite implementation of TranscriptStorage.
// Conversations carry no settings here; history rows store an integer role
// code and the content, and prompt templates live in their own table.
type SQLiteTranscriptStorage struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger Logger
}

// NewSQLiteTranscriptStorage creates a new instance of SQLiteTranscriptStorage.
// It takes the path to the SQLite database file.
func NewSQLiteTranscriptStorage(databasePath string, logger Logger) (*SQLiteTranscriptStorage, error) {
	db, err := sql.Open("sqlite3", databasePath+"?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	storage := &SQLiteTranscriptStorage{
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
func (s *SQLiteTranscriptStorage) initSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createConversationTableSQL := `
    CREATE TABLE IF NOT EXISTS conversation (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE
    );`

	createHistoryTableSQL := `
    CREATE TABLE IF NOT EXISTS history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        conversation INTEGER NOT NULL REFERENCES conversation (id),
        role INTEGER NOT NULL,
        content TEXT NOT NULL
    );`

	createTemplateTableSQL := `
    CREATE TABLE IF NOT EXISTS template (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE,
        content TEXT NOT NULL
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

	if _, err := tx.ExecContext(ctx, createTemplateTableSQL); err != nil {
		return fmt.Errorf("failed to create template table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, createHistoryIndexSQL); err != nil {
		return fmt.Errorf("failed to create history conversation index: %w", err)
	}

	return tx.Commit()
}

// FindConversation returns the id of the conversation with the given name,
// inserting a new row when the name is unseen. Repeated calls with the same
// name return the same id.
func (s *SQLiteTranscriptStorage) FindConversation(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for finding conversation: %w", err)
	}
	defer tx.Rollback()

	insertSQL := `INSERT INTO conversation (name) VALUES (?) ON CONFLICT (name) DO NOTHING`
	if _, err := tx.ExecContext(ctx, insertSQL, name); err != nil {
		return 0, fmt.Errorf("failed to insert conversation (name: %s): %w", name, err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM conversation WHERE name = ? LIMIT 1`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read back conversation (name: %s): %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction for finding conversation: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{"conversation_id": id, "name": name}).Debug("conversation resolved")
	return id, nil
}

// AddTurn appends a role/content row to the conversation's history.
func (s *SQLiteTranscriptStorage) AddTurn(ctx context.Context, conversation int64, role Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for adding turn: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM conversation WHERE id = ? LIMIT 1`, conversation).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("conversation %d: %w", conversation, ErrConversationNotFound)
		}
		return fmt.Errorf("failed to check conversation existence (id: %d): %w", conversation, err)
	}

	insertSQL := `INSERT INTO history (conversation, role, content) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertSQL, conversation, int(role), content); err != nil {
		return fmt.Errorf("failed to insert turn for conversation %d: %w", conversation, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction for adding turn: %w", err)
	}

	return nil
}

// History returns all turns of a conversation ordered by history id. Role
// codes are validated while scanning so a corrupt row surfaces as an error.
func (s *SQLiteTranscriptStorage) History(ctx context.Context, conversation int64) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, role, content FROM history WHERE conversation = ? ORDER BY id ASC`,
		conversation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for conversation %d: %w", conversation, err)
	}
	defer rows.Close()

	turns := []Turn{}

	for rows.Next() {
		var turn Turn
		var roleCode int
		if err := rows.Scan(&turn.ID, &roleCode, &turn.Content); err != nil {
			return nil, fmt.Errorf("failed to scan history row for conversation %d: %w", conversation, err)
		}

		turn.Role, err = ParseRole(roleCode)
		if err != nil {
			return nil, fmt.Errorf("history row %d: %w", turn.ID, err)
		}

		turns = append(turns, turn)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows for conversation %d: %w", conversation, err)
	}

	return turns, nil
}

// SetTemplate stores a named template, replacing the content if the name
// already exists.
func (s *SQLiteTranscriptStorage) SetTemplate(ctx context.Context, name, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	upsertSQL := `INSERT INTO template (name, content) VALUES (?, ?)
	ON CONFLICT (name) DO UPDATE SET content = excluded.content`

	if _, err := s.db.ExecContext(ctx, upsertSQL, name, content); err != nil {
		return fmt.Errorf("failed to upsert template %q: %w", name, err)
	}

	return nil
}

// Template returns the content of a named template.
func (s *SQLiteTranscriptStorage) Template(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM template WHERE name = ?`, name).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("template %q: %w", name, ErrTemplateNotFound)
		}
		return "", fmt.Errorf("failed to query template %q: %w", name, err)
	}

	return content, nil
}

// Close releases the database connection.
func (s *SQLiteTranscriptStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
