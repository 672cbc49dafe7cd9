// Package sqlitestore persists staging sessions in an embedded SQLite
// database. Each repository key maps to one self-contained JSON record;
// persist/rollback run inside a transaction, so a failed write leaves the
// prior record fully intact.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/guidelab/stageground/staging"
)

// Store is a SQLite-backed staging.Store.
type Store struct {
	db        *sql.DB
	retention int
	now       func() time.Time
}

// New opens (creating if necessary) the database at dbPath. retention
// bounds save-point history per session (0 means staging.DefaultRetention).
func New(dbPath string, retention int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; a single writer connection keeps
	// transactions serialized.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, retention: retention, now: time.Now}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			repository_key TEXT PRIMARY KEY,
			record         TEXT NOT NULL,
			updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// Load implements staging.Store.
func (s *Store) Load(ctx context.Context, key staging.RepositoryKey) (*staging.Session, error) {
	return s.loadTx(ctx, s.db.QueryRowContext, key)
}

type rowQuerier func(ctx context.Context, query string, args ...any) *sql.Row

func (s *Store) loadTx(ctx context.Context, queryRow rowQuerier, key staging.RepositoryKey) (*staging.Session, error) {
	var record string
	err := queryRow(ctx, `SELECT record FROM sessions WHERE repository_key = ?`, key.String()).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, staging.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var session staging.Session
	if err := json.Unmarshal([]byte(record), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session record: %w", err)
	}
	return &session, nil
}

// Persist implements staging.Store.
func (s *Store) Persist(ctx context.Context, session *staging.Session, baseSavePointID string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	storedLatest := ""
	stored, err := s.loadTx(ctx, tx.QueryRowContext, session.Key)
	switch {
	case err == nil:
		storedLatest = stored.LatestSavePointID()
	case errors.Is(err, staging.ErrSessionNotFound):
		// First persist for this key.
	default:
		return "", err
	}

	candidate := session.Clone()
	candidate.SavePoints = nil
	if stored != nil {
		candidate.SavePoints = stored.SavePoints
	}
	id, err := staging.AppendSavePoint(candidate, storedLatest, baseSavePointID, s.retention, s.now())
	if err != nil {
		return "", err
	}

	if err := s.writeRecord(ctx, tx, candidate); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}
	session.SavePoints = candidate.Clone().SavePoints
	return id, nil
}

func (s *Store) writeRecord(ctx context.Context, tx *sql.Tx, session *staging.Session) error {
	record, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (repository_key, record, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(repository_key) DO UPDATE SET record = excluded.record, updated_at = CURRENT_TIMESTAMP
	`, session.Key.String(), string(record))
	if err != nil {
		return fmt.Errorf("write session record: %w", err)
	}
	return nil
}

// Rollback implements staging.Store.
func (s *Store) Rollback(ctx context.Context, key staging.RepositoryKey, savePointID string) (*staging.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	session, err := s.loadTx(ctx, tx.QueryRowContext, key)
	if err != nil {
		return nil, err
	}
	if err := staging.RollbackTo(session, savePointID); err != nil {
		return nil, err
	}
	if err := s.writeRecord(ctx, tx, session); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return session.Clone(), nil
}

// ListSavePoints implements staging.Store.
func (s *Store) ListSavePoints(ctx context.Context, key staging.RepositoryKey) ([]staging.SavePointInfo, error) {
	session, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	return staging.SavePointInfos(session), nil
}

// Discard implements staging.Store.
func (s *Store) Discard(ctx context.Context, key staging.RepositoryKey) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE repository_key = ?`, key.String())
	if err != nil {
		return fmt.Errorf("discard session: %w", err)
	}
	return nil
}
