// Package store provides SQLite access to the local user and note tables.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names a registered database/sql SQLite driver.
type Driver string

const (
	// DriverCGO is mattn/go-sqlite3.
	DriverCGO Driver = "sqlite3"
	// DriverPure is modernc.org/sqlite, which needs no C toolchain.
	DriverPure Driver = "sqlite"
)

// Table and column names.
const (
	userTable = `"user"`
	noteTable = `"note"`

	idColumn                = "id"
	emailColumn             = "email"
	userIDColumn            = "user_id"
	textColumn              = "text"
	isSyncedWithCloudColumn = "is_synced_with_cloud"
)

// The foreign key is declared but not enforced: foreign_keys stays off, so
// deleting a user never fails because of, or silently removes, their notes.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS "user" (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS "note" (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id              INTEGER NOT NULL REFERENCES "user"(id),
	text                 TEXT,
	is_synced_with_cloud INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_note_user_id ON "note"(user_id);
`

// DB wraps a sql.DB with user and note operations.
type DB struct {
	Conn
	sqlDB *sql.DB
	path  string
}

// dsn builds a connection string with WAL and a busy timeout for the driver.
func (d Driver) dsn(path string) (string, error) {
	switch d {
	case DriverCGO:
		return path + "?_journal_mode=WAL&_busy_timeout=5000", nil
	case DriverPure:
		q := url.Values{}
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "busy_timeout(5000)")
		return "file:" + path + "?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("store: unknown driver %q", string(d))
	}
}

// Open opens (or creates) the SQLite database at path and applies the schema.
// The pool is pinned to a single connection so PRAGMA data_version observes
// every write made by other processes and none made by this one.
func Open(ctx context.Context, driver Driver, path string) (*DB, error) {
	dsn, err := driver.dsn(path)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{Conn: Conn{q: conn}, sqlDB: conn, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.sqlDB.Close()
}

// DataVersion returns SQLite's data_version, which changes whenever another
// connection commits to the database file.
func (db *DB) DataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := db.sqlDB.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("store: data version: %w", err)
	}
	return v, nil
}
