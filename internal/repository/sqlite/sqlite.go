// Package sqlite implements the repository interfaces on SQLite through
// database/sql and the pure-Go modernc.org/sqlite driver.
//
// CONNECTION SETTINGS:
// PRAGMAs are passed in the DSN (_pragma=...) rather than executed once
// after Open. database/sql keeps a pool of connections and a PRAGMA run with
// conn.Exec only reaches whichever connection served that call, so
// foreign_keys in particular has to be applied to every new connection.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database file at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/warbler.db"                  → relative file
//   - filepath.Join(t.TempDir(), "t.db") → throwaway file for tests
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := newFromConn(conn)
	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// newFromConn wraps an already-open pool without touching the schema.
func newFromConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func dsn(dbPath string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Set("_time_format", "sqlite")
	return "file:" + dbPath + "?" + q.Encode()
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrations run in order on every start; each statement is idempotent.
var migrations = []struct {
	name string
	stmt string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			email            TEXT NOT NULL UNIQUE,
			username         TEXT NOT NULL UNIQUE,
			image_url        TEXT NOT NULL DEFAULT '` + model.DefaultImageURL + `',
			header_image_url TEXT NOT NULL DEFAULT '` + model.DefaultHeaderImageURL + `',
			bio              TEXT,
			location         TEXT,
			password         TEXT NOT NULL
		)`},
	{"messages", `
		CREATE TABLE IF NOT EXISTS messages (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			text      VARCHAR(140) NOT NULL,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			user_id   INTEGER NOT NULL REFERENCES users(id)
		)`},
	{"messages user/timestamp index", `
		CREATE INDEX IF NOT EXISTS idx_messages_user_timestamp ON messages(user_id, timestamp)`},
	{"follows", `
		CREATE TABLE IF NOT EXISTS follows (
			follower_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			followed_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			PRIMARY KEY (follower_id, followed_id)
		)`},
	{"follows followed index", `
		CREATE INDEX IF NOT EXISTS idx_follows_followed ON follows(followed_id)`},
	{"likes", `
		CREATE TABLE IF NOT EXISTS likes (
			user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, message_id)
		)`},
}

func (db *DB) migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := db.conn.ExecContext(ctx, m.stmt); err != nil {
			return fmt.Errorf("migration %q: %w", m.name, err)
		}
	}
	return nil
}

// constraintCode returns the extended SQLite result code of a constraint
// violation, or 0 when err is not one.
func constraintCode(err error) int {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return 0
	}
	switch code := se.Code(); code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
		sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return code
	default:
		return 0
	}
}

func isUniqueViolation(err error) bool {
	code := constraintCode(err)
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isForeignKeyViolation(err error) bool {
	return constraintCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

// changeOf turns RowsAffected into a repository.Change.
func changeOf(res sql.Result) (repository.Change, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return repository.Unchanged, nil
	}
	return repository.Changed, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func clampList(opts repository.ListOptions) (limit, offset int) {
	limit = opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset = opts.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
