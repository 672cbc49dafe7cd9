// Package natskv persists staging sessions in a NATS JetStream KV bucket.
// Each repository key maps to one JSON record; compare-and-set on the KV
// revision makes persist atomic even with concurrent writers on other
// processes.
package natskv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/guidelab/stageground/staging"
)

// Bucket is the KV bucket holding all staging sessions.
const Bucket = "STAGEGROUND_SESSIONS"

// Store is a JetStream-KV-backed staging.Store.
type Store struct {
	kv        jetstream.KeyValue
	retention int
	now       func() time.Time
}

// New binds a Store to the sessions bucket, creating it if needed.
// retention bounds save-point history per session (0 means
// staging.DefaultRetention).
func New(ctx context.Context, js jetstream.JetStream, retention int) (*Store, error) {
	kv, err := getOrCreateBucket(ctx, js)
	if err != nil {
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}
	return &Store{kv: kv, retention: retention, now: time.Now}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, Bucket)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it. Save-point history lives inside the
	// record, so one KV revision per key is enough.
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      Bucket,
		Description: "Stageground staging sessions",
		History:     1,
	})
}

// kvKey encodes a repository key into the KV key character set
// (owner/repo@branch contains characters JetStream keys reject).
func kvKey(key staging.RepositoryKey) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key.String()))
}

// Load implements staging.Store.
func (s *Store) Load(ctx context.Context, key staging.RepositoryKey) (*staging.Session, error) {
	session, _, err := s.getEntry(ctx, key)
	return session, err
}

// getEntry fetches and decodes a record plus the KV revision used for CAS.
func (s *Store) getEntry(ctx context.Context, key staging.RepositoryKey) (*staging.Session, uint64, error) {
	entry, err := s.kv.Get(ctx, kvKey(key))
	if err != nil {
		if isNotFound(err) {
			return nil, 0, staging.ErrSessionNotFound
		}
		return nil, 0, fmt.Errorf("get session: %w", err)
	}
	var session staging.Session
	if err := json.Unmarshal(entry.Value(), &session); err != nil {
		return nil, 0, fmt.Errorf("unmarshal session record: %w", err)
	}
	return &session, entry.Revision(), nil
}

// Persist implements staging.Store.
func (s *Store) Persist(ctx context.Context, session *staging.Session, baseSavePointID string) (string, error) {
	storedLatest := ""
	var revision uint64
	stored, revision, err := s.getEntry(ctx, session.Key)
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

	if err := s.writeRecord(ctx, candidate, revision); err != nil {
		return "", err
	}
	session.SavePoints = candidate.Clone().SavePoints
	return id, nil
}

// writeRecord stores the record with compare-and-set on the KV revision;
// revision 0 means the key must not exist yet. A lost CAS race surfaces as
// ErrStaleWrite so the caller reloads like any other stale writer.
func (s *Store) writeRecord(ctx context.Context, session *staging.Session, revision uint64) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	if revision == 0 {
		_, err = s.kv.Create(ctx, kvKey(session.Key), data)
	} else {
		_, err = s.kv.Update(ctx, kvKey(session.Key), data, revision)
	}
	if err != nil {
		if isCASConflict(err) {
			return fmt.Errorf("%w: concurrent update on %s", staging.ErrStaleWrite, session.Key)
		}
		return fmt.Errorf("write session record: %w", err)
	}
	return nil
}

// Rollback implements staging.Store.
func (s *Store) Rollback(ctx context.Context, key staging.RepositoryKey, savePointID string) (*staging.Session, error) {
	session, revision, err := s.getEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := staging.RollbackTo(session, savePointID); err != nil {
		return nil, err
	}
	if err := s.writeRecord(ctx, session, revision); err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

// ListSavePoints implements staging.Store.
func (s *Store) ListSavePoints(ctx context.Context, key staging.RepositoryKey) ([]staging.SavePointInfo, error) {
	session, _, err := s.getEntry(ctx, key)
	if err != nil {
		return nil, err
	}
	return staging.SavePointInfos(session), nil
}

// Discard implements staging.Store.
func (s *Store) Discard(ctx context.Context, key staging.RepositoryKey) error {
	if err := s.kv.Purge(ctx, kvKey(key)); err != nil && !isNotFound(err) {
		return fmt.Errorf("discard session: %w", err)
	}
	return nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) ||
		(err != nil && strings.Contains(err.Error(), "key not found"))
}

// isCASConflict checks for a lost compare-and-set race: Create on an
// existing key or Update against a superseded revision.
func isCASConflict(err error) bool {
	return errors.Is(err, jetstream.ErrKeyExists) ||
		(err != nil && strings.Contains(err.Error(), "wrong last sequence"))
}
