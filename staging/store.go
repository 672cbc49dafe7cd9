package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store errors. Store-layer failures are returned as typed values, never
// thrown across the public contract boundary.
var (
	// ErrSessionNotFound is returned when no session exists for a key.
	ErrSessionNotFound = errors.New("staging session not found")
	// ErrStaleWrite rejects a persist whose base save-point is no longer
	// the store's latest; the caller must reload and re-apply.
	ErrStaleWrite = errors.New("stale write: base save-point is not the latest")
	// ErrSavePointNotFound is returned when a rollback target is unknown
	// (or already trimmed by retention).
	ErrSavePointNotFound = errors.New("save-point not found")
)

// DefaultRetention bounds the save-point history kept per session.
const DefaultRetention = 20

// Store is the durable record of staging sessions. Implementations must
// make Persist atomic: either the full new save-point is written or the
// store is left exactly as before.
type Store interface {
	// Load returns a copy of the session for key, or ErrSessionNotFound.
	Load(ctx context.Context, key RepositoryKey) (*Session, error)

	// Persist appends a new save-point capturing session.Files and writes
	// the record. baseSavePointID names the save-point the caller loaded;
	// if it is not the store's latest the write is rejected with
	// ErrStaleWrite. On success the session's save-point history is
	// refreshed to match the store. Returns the new save-point id.
	Persist(ctx context.Context, session *Session, baseSavePointID string) (string, error)

	// Rollback restores Files to the named save-point's snapshot and
	// discards all later save-points. Returns the restored session.
	Rollback(ctx context.Context, key RepositoryKey, savePointID string) (*Session, error)

	// ListSavePoints returns the save-point ids and timestamps, oldest first.
	ListSavePoints(ctx context.Context, key RepositoryKey) ([]SavePointInfo, error)

	// Discard removes all state for key. Discarding an absent session is
	// not an error.
	Discard(ctx context.Context, key RepositoryKey) error
}

// AppendSavePoint verifies the optimistic-concurrency base, snapshots the
// session's files as a new save-point, and trims history to retention.
// Shared by every store implementation; the caller supplies the stored
// record's current latest save-point id.
func AppendSavePoint(session *Session, storedLatestID, baseSavePointID string, retention int, now time.Time) (string, error) {
	if storedLatestID != baseSavePointID {
		return "", fmt.Errorf("%w (base %q, latest %q)", ErrStaleWrite, baseSavePointID, storedLatestID)
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	sp := SavePoint{
		ID:        uuid.New().String(),
		Timestamp: now.UTC(),
		Files:     session.SnapshotFiles(),
	}
	session.SavePoints = append(session.SavePoints, sp)
	if excess := len(session.SavePoints) - retention; excess > 0 {
		session.SavePoints = append([]SavePoint(nil), session.SavePoints[excess:]...)
	}
	return sp.ID, nil
}

// RollbackTo restores a session to a save-point and truncates later
// history. Rollback is destructive to "future" save-points, matching
// version-control semantics.
func RollbackTo(session *Session, savePointID string) error {
	for i := range session.SavePoints {
		if session.SavePoints[i].ID == savePointID {
			session.restoreFiles(session.SavePoints[i].Files)
			session.SavePoints = append([]SavePoint(nil), session.SavePoints[:i+1]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrSavePointNotFound, savePointID)
}

// SavePointInfos projects the listing view from a session's history.
func SavePointInfos(session *Session) []SavePointInfo {
	infos := make([]SavePointInfo, len(session.SavePoints))
	for i, sp := range session.SavePoints {
		infos[i] = SavePointInfo{ID: sp.ID, Timestamp: sp.Timestamp}
	}
	return infos
}
