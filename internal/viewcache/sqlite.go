package viewcache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS netshark_views (
	host      TEXT NOT NULL,
	title     TEXT NOT NULL,
	handle    TEXT NOT NULL,
	last_used INTEGER NOT NULL,
	PRIMARY KEY (host, title)
);`

// SQLiteStore is the on-disk Store implementation.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the cache database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open view cache: %w", err)
	}
	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init view cache schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Lookup(host, title string) (Entry, bool, error) {
	row := s.db.QueryRow(
		`SELECT handle, last_used FROM netshark_views WHERE host = ? AND title = ?`,
		host, title)

	e := Entry{Host: host, Title: title}
	var lastUsed int64
	switch err := row.Scan(&e.Handle, &lastUsed); err {
	case nil:
		e.LastUsed = time.Unix(lastUsed, 0).UTC()
		return e, true, nil
	case sql.ErrNoRows:
		return Entry{}, false, nil
	default:
		return Entry{}, false, fmt.Errorf("lookup view cache entry: %w", err)
	}
}

func (s *SQLiteStore) Save(e Entry) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO netshark_views (host, title, handle, last_used) VALUES (?, ?, ?, ?)`,
		e.Host, e.Title, e.Handle, e.LastUsed.Unix())
	if err != nil {
		return fmt.Errorf("save view cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Touch(host, title string, when time.Time) error {
	_, err := s.db.Exec(
		`UPDATE netshark_views SET last_used = ? WHERE host = ? AND title = ?`,
		when.Unix(), host, title)
	if err != nil {
		return fmt.Errorf("touch view cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteHost(host string) error {
	_, err := s.db.Exec(`DELETE FROM netshark_views WHERE host = ?`, host)
	if err != nil {
		return fmt.Errorf("purge view cache for %s: %w", host, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
