// Package store persists session state in SQLite: the journal of flushed
// edit batches and the document versions a session has processed.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Batch is one journaled flush.
type Batch struct {
	ID        string
	Session   string
	StartedAt time.Time
	Edits     int
	Files     []string
	Error     string
}

// Store implements session.VersionStore.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dbPath, enables WAL mode
// and initializes the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withTx executes fn within a transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) RecordBatch(ctx context.Context, b Batch) error {
	files, err := json.Marshal(b.Files)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO batches (id, session, started_at, edits, files, error)
            VALUES (?, ?, ?, ?, ?, ?)
        `, b.ID, b.Session, b.StartedAt.UnixMilli(), b.Edits, string(files), b.Error)
		return err
	})
}

// RecentBatches returns up to limit batches, newest first.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, session, started_at, edits, files, error
        FROM batches ORDER BY started_at DESC, rowid DESC LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		var startedAt int64
		var files string
		if err := rows.Scan(&b.ID, &b.Session, &startedAt, &b.Edits, &files, &b.Error); err != nil {
			return nil, err
		}
		b.StartedAt = time.UnixMilli(startedAt)
		if err := json.Unmarshal([]byte(files), &b.Files); err != nil {
			return nil, fmt.Errorf("corrupt files column for batch %s: %w", b.ID, err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// PruneBatches keeps the newest keep batches.
func (s *Store) PruneBatches(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
        DELETE FROM batches WHERE id NOT IN (
            SELECT id FROM batches ORDER BY started_at DESC, rowid DESC LIMIT ?
        )
    `, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkVersion records version for uri in session and reports whether it is
// newer than the recorded one. A session remembers at most keep documents;
// the least recently recorded one is forgotten first.
func (s *Store) MarkVersion(ctx context.Context, session, uri string, version int32, keep int) (bool, error) {
	fresh := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var stored int32
		err := tx.QueryRowContext(ctx, `SELECT version FROM file_versions WHERE session = ? AND uri = ?`, session, uri).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, `
                DELETE FROM file_versions WHERE session = ? AND uri IN (
                    SELECT uri FROM file_versions WHERE session = ?
                    ORDER BY seen DESC LIMIT -1 OFFSET ?
                )
            `, session, session, keep-1); err != nil {
				return err
			}
		case err != nil:
			return err
		case version <= stored:
			return nil
		}
		fresh = true
		_, err = tx.ExecContext(ctx, `
            INSERT INTO file_versions (session, uri, version, seen)
            VALUES (?, ?, ?, (SELECT COALESCE(MAX(seen), 0) + 1 FROM file_versions))
            ON CONFLICT(session, uri) DO UPDATE SET version = excluded.version, seen = excluded.seen
        `, session, uri, version)
		return err
	})
	return fresh, err
}
