// Package store keeps mail folders in SQLite and exposes each one as a
// folder.Folder the message list can regenerate from.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/wesm/msglist/internal/folder"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrFolderNotFound is returned when a named folder does not exist.
var ErrFolderNotFound = errors.New("folder not found")

// Store provides database operations for msglist.
type Store struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	nextID int
	subs   map[string]map[int]func(folder.ChangeInfo) // folder name -> subscribers

	// snapshots holds the rows each rescanned folder had at its last Rescan.
	snapshots map[int64]map[string]rowState
}

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// isSQLiteError checks if err is a sqlite3.Error with a message containing substr.
// Handles both value (sqlite3.Error) and pointer (*sqlite3.Error) forms.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for background warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens or creates the database at dbPath and initializes the schema.
func Open(dbPath string, opts ...Option) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		db:     db,
		dbPath: dbPath,
		logger: slog.Default(),
		subs:   make(map[string]map[int]func(folder.ChangeInfo)),

		snapshots: make(map[int64]map[string]rowState),
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection. Folders opened from the store
// report folder.ErrUnavailable afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// wrapErr maps errors from a closed database onto folder.ErrUnavailable.
func (s *Store) wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if s.isClosed() || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%s: %w", op, folder.ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// withTx executes fn within a database transaction. If fn returns an error,
// the transaction is rolled back; otherwise it is committed.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// queryInChunks executes a parameterized IN-query in chunks to stay within
// SQLite's parameter limit. queryTemplate must contain a single %s placeholder
// for the comma-separated "?" list. The prefix args are prepended before each
// chunk's args (e.g., a folder_id filter).
func queryInChunks[T any](db *sql.DB, ids []T, prefixArgs []any, queryTemplate string, fn func(*sql.Rows) error) error {
	const chunkSize = 500
	for i := 0; i < len(ids); i += chunkSize {
		chunk := ids[i:min(i+chunkSize, len(ids))]

		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(prefixArgs)+len(chunk))
		args = append(args, prefixArgs...)
		for j, id := range chunk {
			placeholders[j] = "?"
			args = append(args, id)
		}

		rows, err := db.Query(fmt.Sprintf(queryTemplate, strings.Join(placeholders, ",")), args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			if err := fn(rows); err != nil {
				rows.Close()
				return err
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

// InitSchema creates all tables if they don't exist.
func (s *Store) InitSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("execute schema.sql: %w", err)
	}
	return nil
}

// Stats holds database statistics.
type Stats struct {
	FolderCount  int64
	MessageCount int64
	TagCount     int64
	DatabaseSize int64
}

// GetStats returns statistics about the database.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM folders", &stats.FolderCount},
		{"SELECT COUNT(*) FROM messages", &stats.MessageCount},
		{"SELECT COUNT(DISTINCT name) FROM message_tags", &stats.TagCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRow(q.query).Scan(q.dest); err != nil {
			if isSQLiteError(err, "no such table") {
				continue
			}
			return nil, fmt.Errorf("get stats %q: %w", q.query, err)
		}
	}
	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}

// subscribe registers fn for changes to the named folder.
func (s *Store) subscribe(name string, fn func(folder.ChangeInfo)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.subs[name] == nil {
		s.subs[name] = make(map[int]func(folder.ChangeInfo))
	}
	s.subs[name][id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs[name], id)
		s.mu.Unlock()
	}
}

// emit delivers ci to the subscribers of the named folder, outside the lock.
func (s *Store) emit(name string, ci folder.ChangeInfo) {
	if ci.IsEmpty() {
		return
	}
	s.mu.Lock()
	fns := make([]func(folder.ChangeInfo), 0, len(s.subs[name]))
	for _, fn := range s.subs[name] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ci)
	}
}
