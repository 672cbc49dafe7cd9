package staging

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and as a scratch backend.
// It honors the same optimistic-concurrency contract as the durable stores.
type MemoryStore struct {
	mu        sync.Mutex
	retention int
	sessions  map[string]*Session
	now       func() time.Time
}

// NewMemoryStore creates a MemoryStore with the given save-point retention
// (0 means DefaultRetention).
func NewMemoryStore(retention int) *MemoryStore {
	return &MemoryStore{
		retention: retention,
		sessions:  make(map[string]*Session),
		now:       time.Now,
	}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, key RepositoryKey) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[key.String()]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return stored.Clone(), nil
}

// Persist implements Store.
func (s *MemoryStore) Persist(_ context.Context, session *Session, baseSavePointID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	storedLatest := ""
	if stored, ok := s.sessions[session.Key.String()]; ok {
		storedLatest = stored.LatestSavePointID()
	}

	candidate := session.Clone()
	candidate.SavePoints = nil
	if stored, ok := s.sessions[session.Key.String()]; ok {
		candidate.SavePoints = stored.Clone().SavePoints
	}
	id, err := AppendSavePoint(candidate, storedLatest, baseSavePointID, s.retention, s.now())
	if err != nil {
		return "", err
	}
	s.sessions[session.Key.String()] = candidate
	session.SavePoints = candidate.Clone().SavePoints
	return id, nil
}

// Rollback implements Store.
func (s *MemoryStore) Rollback(_ context.Context, key RepositoryKey, savePointID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[key.String()]
	if !ok {
		return nil, ErrSessionNotFound
	}
	candidate := stored.Clone()
	if err := RollbackTo(candidate, savePointID); err != nil {
		return nil, err
	}
	s.sessions[key.String()] = candidate
	return candidate.Clone(), nil
}

// ListSavePoints implements Store.
func (s *MemoryStore) ListSavePoints(_ context.Context, key RepositoryKey) ([]SavePointInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[key.String()]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return SavePointInfos(stored), nil
}

// Discard implements Store.
func (s *MemoryStore) Discard(_ context.Context, key RepositoryKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key.String())
	return nil
}
