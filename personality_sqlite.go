package chathistory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLitePersonalityStorage is an SQLite implementation of PersonalityStorage.
type SQLitePersonalityStorage struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger Logger
}

// NewSQLitePersonalityStorage creates a new instance of SQLitePersonalityStorage.
// It takes the path to the SQLite database file.
func NewSQLitePersonalityStorage(databasePath string, logger Logger) (*SQLitePersonalityStorage, error) {
	db, err := sql.Open("sqlite3", databasePath+"?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	storage := &SQLitePersonalityStorage{
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
func (s *SQLitePersonalityStorage) initSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createPersonalitiesTableSQL := `
    CREATE TABLE IF NOT EXISTS personalities (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL UNIQUE,
        prompt TEXT NOT NULL
    );`

	createHistoryTableSQL := `
    CREATE TABLE IF NOT EXISTS history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        personality INTEGER NOT NULL REFERENCES personalities (id),
        role INTEGER NOT NULL,
        content TEXT NOT NULL
    );`

	createHistoryIndexSQL := `
	CREATE INDEX IF NOT EXISTS idx_history_personality ON history (personality);
	`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for schema init: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createPersonalitiesTableSQL); err != nil {
		return fmt.Errorf("failed to create personalities table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, createHistoryTableSQL); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}

	if _, err := tx.ExecContext(ctx, createHistoryIndexSQL); err != nil {
		return fmt.Errorf("failed to create history personality index: %w", err)
	}

	return tx.Commit()
}

// CreatePersonality stores a new personality. A unique constraint violation
// on the name is reported as ErrDuplicateName.
func (s *SQLitePersonalityStorage) CreatePersonality(ctx context.Context, name, prompt string) (*Personality, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `INSERT INTO personalities (name, prompt) VALUES (?, ?)`, name, prompt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("personality %q: %w", name, ErrDuplicateName)
		}
		return nil, fmt.Errorf("failed to insert personality %q: %w", name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get id of inserted personality %q: %w", name, err)
	}

	s.logger.WithFields(map[string]interface{}{"personality_id": id, "name": name}).Debug("personality created")
	return &Personality{ID: id, Name: name, Prompt: prompt}, nil
}

// FindPersonality retrieves a personality by name.
func (s *SQLitePersonalityStorage) FindPersonality(ctx context.Context, name string) (*Personality, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p Personality
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, prompt FROM personalities WHERE name = ?`,
		name,
	).Scan(&p.ID, &p.Name, &p.Prompt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("personality %q: %w", name, ErrPersonalityNotFound)
		}
		return nil, fmt.Errorf("failed to query personality %q: %w", name, err)
	}

	return &p, nil
}

// GetPersonality retrieves a personality by its primary key.
func (s *SQLitePersonalityStorage) GetPersonality(ctx context.Context, id int64) (*Personality, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p Personality
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, prompt FROM personalities WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.Name, &p.Prompt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("personality %d: %w", id, ErrPersonalityNotFound)
		}
		return nil, fmt.Errorf("failed to query personality %d: %w", id, err)
	}

	return &p, nil
}

// AddTurn appends a role/content row to the personality's history.
func (s *SQLitePersonalityStorage) AddTurn(ctx context.Context, personality int64, role Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for adding turn: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM personalities WHERE id = ? LIMIT 1`, personality).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("personality %d: %w", personality, ErrPersonalityNotFound)
		}
		return fmt.Errorf("failed to check personality existence (id: %d): %w", personality, err)
	}

	insertSQL := `INSERT INTO history (personality, role, content) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertSQL, personality, int(role), content); err != nil {
		return fmt.Errorf("failed to insert turn for personality %d: %w", personality, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction for adding turn: %w", err)
	}

	return nil
}

// History returns all turns of a personality ordered by history id.
func (s *SQLitePersonalityStorage) History(ctx context.Context, personality int64) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, role, content FROM history WHERE personality = ? ORDER BY id ASC`,
		personality,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for personality %d: %w", personality, err)
	}
	defer rows.Close()

	turns := []Turn{}

	for rows.Next() {
		var turn Turn
		var roleCode int
		if err := rows.Scan(&turn.ID, &roleCode, &turn.Content); err != nil {
			return nil, fmt.Errorf("failed to scan history row for personality %d: %w", personality, err)
		}

		turn.Role, err = ParseRole(roleCode)
		if err != nil {
			return nil, fmt.Errorf("history row %d: %w", turn.ID, err)
		}

		turns = append(turns, turn)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows for personality %d: %w", personality, err)
	}

	return turns, nil
}

// Close releases the database connection.
func (s *SQLitePersonalityStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
