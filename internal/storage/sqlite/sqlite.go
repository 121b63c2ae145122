package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/michaelbrown/toolselector/internal/storage"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed width so that created_at sorts as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// every connection to :memory: is its own database
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, e *storage.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Tools == nil {
		e.Tools = []string{}
	}

	toolsJSON, err := json.Marshal(e.Tools)
	if err != nil {
		return fmt.Errorf("marshaling tools: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, action, tools, ok, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, string(toolsJSON), e.OK, e.Message,
		e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, opts storage.ListOptions) ([]storage.Event, error) {
	query := `SELECT id, action, tools, ok, message, created_at FROM events`
	var (
		where []string
		args  []any
	)
	if opts.Action != "" {
		where = append(where, "action = ?")
		args = append(args, opts.Action)
	}
	if opts.Tool != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(events.tools) WHERE value = ?)")
		args = append(args, opts.Tool)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []storage.Event
	for rows.Next() {
		var (
			e         storage.Event
			toolsJSON string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Action, &toolsJSON, &e.OK, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if err := json.Unmarshal([]byte(toolsJSON), &e.Tools); err != nil {
			return nil, fmt.Errorf("unmarshaling tools: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
