// Package sqliterepo keeps the session in a SQLite key/value table.
package sqliterepo

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	pkgerrors "github.com/pkg/errors"

	"github.com/jrsteele09/militex-client/session"
)

const schema = `CREATE TABLE IF NOT EXISTS session_kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

var _ session.Repo = (*Repo)(nil)

type Repo struct {
	db     *sql.DB
	ownsDB bool
}

// New opens (creating if needed) the database at path.
func New(path string) (*Repo, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, pkgerrors.Wrap(err, "[sqliterepo.New] MkdirAll")
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[sqliterepo.New] sql.Open")
	}
	r, err := NewFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	r.ownsDB = true
	return r, nil
}

// NewInMemory returns a repo backed by a private in-memory database.
func NewInMemory() (*Repo, error) {
	r, err := New(":memory:")
	if err != nil {
		return nil, err
	}
	// Every pooled connection to :memory: is a separate database.
	r.db.SetMaxOpenConns(1)
	return r, nil
}

// NewFromDB uses an existing connection and ensures the table exists.
func NewFromDB(db *sql.DB) (*Repo, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, pkgerrors.Wrap(err, "[sqliterepo.NewFromDB] create table")
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM session_kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, pkgerrors.Wrap(err, "[sqliterepo.Get]")
	}
	return value, true, nil
}

func (r *Repo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return pkgerrors.Wrap(err, "[sqliterepo.Set]")
}

// Delete removes keys inside one transaction.
func (r *Repo) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "[sqliterepo.Delete] BeginTx")
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_kv WHERE key = ?`, key); err != nil {
			return pkgerrors.Wrapf(err, "[sqliterepo.Delete] %s", key)
		}
	}
	return pkgerrors.Wrap(tx.Commit(), "[sqliterepo.Delete] Commit")
}

// Close closes the database when the repo opened it.
func (r *Repo) Close() error {
	if !r.ownsDB {
		return nil
	}
	return r.db.Close()
}
