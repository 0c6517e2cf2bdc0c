package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3" // also registers the "sqlite3" driver
)

// ErrUnavailable wraps genuine storage failures (connection lost, disk full,
// locked database) so callers can distinguish "retry the save" from bugs.
// Uniqueness violations never surface through it; they are absorbed by the
// upsert retry loop in conversations.go.
var ErrUnavailable = errors.New("storage unavailable")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS paramedics (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        email TEXT UNIQUE NOT NULL,
        medical_id TEXT,
        national_id TEXT,
        age INTEGER,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT UNIQUE NOT NULL,
        paramedic_id INTEGER,
        transcript TEXT NOT NULL,
        analysis TEXT NOT NULL, -- JSON document, opaque to the store
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL,
        FOREIGN KEY (paramedic_id) REFERENCES paramedics (id)
    );

    CREATE INDEX IF NOT EXISTS idx_conversations_owner_updated
        ON conversations (paramedic_id, updated_at DESC);
    `
	_, err := s.db.Exec(schema)
	return err
}

// isUniqueViolation reports whether err is the sqlite unique-constraint error
// for an index such as conversations.session_id.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
