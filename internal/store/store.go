// Package store persists per-user JSON documents in SQLite. Every mutation
// goes through an all-or-nothing write batch so an interrupted import never
// leaves routes and aggregates disagreeing.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite access for user documents.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The write path is single-writer per user but the HTTP handlers read
	// concurrently.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS docs (
            user_id TEXT NOT NULL,
            path TEXT NOT NULL,
            doc TEXT NOT NULL,
            updated_at TIMESTAMP,
            PRIMARY KEY (user_id, path)
        );`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot is one read of a document. Fresh reports whether the data came
// from the source of truth; consumers updating aggregates must refuse
// non-fresh snapshots. SQLite reads are always fresh, but the flag keeps
// the contract explicit for any caching layer put in front later.
type Snapshot struct {
	Data  json.RawMessage
	Fresh bool
}

// Get reads one document. The second return value reports whether the
// document exists.
func (s *Store) Get(ctx context.Context, userID, path string) (Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM docs WHERE user_id=? AND path=?`, userID, path)
	var doc string
	switch err := row.Scan(&doc); err {
	case nil:
		return Snapshot{Data: json.RawMessage(doc), Fresh: true}, true, nil
	case sql.ErrNoRows:
		return Snapshot{Fresh: true}, false, nil
	default:
		return Snapshot{}, false, err
	}
}

// ErrStale is returned when a read that must be fresh is not.
var ErrStale = errors.New("stale document snapshot")

// GetJSON reads a document into out. It returns false with no error when
// the document does not exist, and ErrStale when the snapshot cannot be
// trusted as current.
func (s *Store) GetJSON(ctx context.Context, userID, path string, out any) (bool, error) {
	snap, found, err := s.Get(ctx, userID, path)
	if err != nil {
		return false, err
	}
	if !snap.Fresh {
		return false, fmt.Errorf("%s: %w", path, ErrStale)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(snap.Data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// Write is one mutation within a batch. Doc is marshaled to JSON. With
// Merge set, top-level fields of Doc are laid over the stored document
// instead of replacing it. Delete removes the document and ignores Doc.
type Write struct {
	Path   string
	Doc    any
	Merge  bool
	Delete bool
}

// WriteBatch applies all writes in one transaction.
func (s *Store) WriteBatch(ctx context.Context, userID string, writes []Write) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, w := range writes {
		if w.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM docs WHERE user_id=? AND path=?`, userID, w.Path); err != nil {
				return fmt.Errorf("delete %s: %w", w.Path, err)
			}
			continue
		}
		data, err := json.Marshal(w.Doc)
		if err != nil {
			return fmt.Errorf("encode %s: %w", w.Path, err)
		}
		if w.Merge {
			if data, err = mergeDoc(ctx, tx, userID, w.Path, data); err != nil {
				return fmt.Errorf("merge %s: %w", w.Path, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO docs(user_id, path, doc, updated_at) VALUES(?,?,?,?)
            ON CONFLICT(user_id, path) DO UPDATE SET doc=excluded.doc, updated_at=excluded.updated_at`,
			userID, w.Path, string(data), now); err != nil {
			return fmt.Errorf("write %s: %w", w.Path, err)
		}
	}
	return tx.Commit()
}

// mergeDoc lays the top-level fields of data over the stored document.
func mergeDoc(ctx context.Context, tx *sql.Tx, userID, path string, data []byte) ([]byte, error) {
	row := tx.QueryRowContext(ctx, `SELECT doc FROM docs WHERE user_id=? AND path=?`, userID, path)
	var stored string
	switch err := row.Scan(&stored); err {
	case nil:
	case sql.ErrNoRows:
		return data, nil
	default:
		return nil, err
	}

	var base, overlay map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stored), &base); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &overlay); err != nil {
		return nil, err
	}
	for key, val := range overlay {
		base[key] = val
	}
	return json.Marshal(base)
}

// ListPaths returns the paths of the user's documents that start with
// prefix, sorted.
func (s *Store) ListPaths(ctx context.Context, userID, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM docs WHERE user_id=? AND path LIKE ? ESCAPE '\' ORDER BY path`,
		userID, likePrefix(prefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// likePrefix escapes LIKE metacharacters so prefix matches literally.
func likePrefix(prefix string) string {
	out := make([]byte, 0, len(prefix)+1)
	for i := 0; i < len(prefix); i++ {
		switch prefix[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, prefix[i])
	}
	return string(append(out, '%'))
}

// ListUsers returns every user ID with at least one document.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM docs ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Health returns err if DB not reachable.
func (s *Store) Health(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		return fmt.Errorf("db health: %w", err)
	}
	return nil
}
