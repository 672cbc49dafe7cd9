// Package staging models the local, uncommitted working set of file edits
// for one repository+branch, and the durable store that persists it as
// named save-points with optimistic concurrency.
package staging

import (
	"fmt"
	"strings"
	"time"
)

// RepositoryKey identifies the repository and branch a session targets.
type RepositoryKey struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
}

// String renders the key as owner/repo@branch, the form used in store keys
// and CLI flags.
func (k RepositoryKey) String() string {
	return fmt.Sprintf("%s/%s@%s", k.Owner, k.Repo, k.Branch)
}

// IsZero reports whether the key is unset.
func (k RepositoryKey) IsZero() bool {
	return k.Owner == "" && k.Repo == "" && k.Branch == ""
}

// ParseRepositoryKey parses owner/repo@branch.
func ParseRepositoryKey(s string) (RepositoryKey, error) {
	slash := strings.Index(s, "/")
	at := strings.LastIndex(s, "@")
	if slash <= 0 || at <= slash+1 || at == len(s)-1 {
		return RepositoryKey{}, fmt.Errorf("invalid repository key %q: want owner/repo@branch", s)
	}
	return RepositoryKey{
		Owner:  s[:slash],
		Repo:   s[slash+1 : at],
		Branch: s[at+1:],
	}, nil
}

// StagedFile is one pending edit: a full replacement of the file at Path.
type StagedFile struct {
	Path string `json:"path"`
	// Content is the complete replacement text; editors never supply diffs.
	Content string `json:"content"`
	// BaseRevision is the Content Source revision this edit was derived
	// from; empty for files that are new or staged while offline.
	BaseRevision string    `json:"base_revision,omitempty"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// SavePoint is an immutable snapshot of a session's file set.
type SavePoint struct {
	ID        string                `json:"id"`
	Timestamp time.Time             `json:"timestamp"`
	Files     map[string]StagedFile `json:"files"`
}

// SavePointInfo is the listing view of a save-point.
type SavePointInfo struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the unit of work: at most one StagedFile per path, the pending
// commit message, and the ordered save-point history (newest last). It is a
// self-contained JSON-serializable value with no cross-record references.
type Session struct {
	Key RepositoryKey `json:"key"`
	// BaseRevision is the Content Source revision observed when the session
	// was created; staged files inherit it as their base.
	BaseRevision string                 `json:"base_revision,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Files        map[string]*StagedFile `json:"files"`
	SavePoints   []SavePoint            `json:"save_points"`
}

// NewSession creates an empty session for a repository key.
func NewSession(key RepositoryKey, baseRevision string) *Session {
	return &Session{
		Key:          key,
		BaseRevision: baseRevision,
		Files:        make(map[string]*StagedFile),
	}
}

// Put stages a full-content edit; the newest mutation for a path wins. The
// base revision of an existing entry is preserved so conflict detection
// still compares against the revision the edit chain started from.
func (s *Session) Put(path, content string, now time.Time) {
	if s.Files == nil {
		s.Files = make(map[string]*StagedFile)
	}
	base := s.BaseRevision
	if existing, ok := s.Files[path]; ok {
		base = existing.BaseRevision
	}
	s.Files[path] = &StagedFile{
		Path:         path,
		Content:      content,
		BaseRevision: base,
		ModifiedAt:   now,
	}
}

// Remove unstages a path. It reports whether the path was staged.
func (s *Session) Remove(path string) bool {
	if _, ok := s.Files[path]; !ok {
		return false
	}
	delete(s.Files, path)
	return true
}

// Empty reports whether the session holds no files and no history; such a
// session is considered absent and is lazily recreated on the next edit.
func (s *Session) Empty() bool {
	return len(s.Files) == 0 && len(s.SavePoints) == 0
}

// LatestSavePoint returns the newest save-point, or nil.
func (s *Session) LatestSavePoint() *SavePoint {
	if len(s.SavePoints) == 0 {
		return nil
	}
	return &s.SavePoints[len(s.SavePoints)-1]
}

// LatestSavePointID returns the newest save-point id, or "".
func (s *Session) LatestSavePointID() string {
	if sp := s.LatestSavePoint(); sp != nil {
		return sp.ID
	}
	return ""
}

// SnapshotFiles deep-copies the current file set, for save-point capture.
func (s *Session) SnapshotFiles() map[string]StagedFile {
	files := make(map[string]StagedFile, len(s.Files))
	for path, f := range s.Files {
		files[path] = *f
	}
	return files
}

// restoreFiles replaces the working file set with a save-point snapshot.
func (s *Session) restoreFiles(snapshot map[string]StagedFile) {
	s.Files = make(map[string]*StagedFile, len(snapshot))
	for path, f := range snapshot {
		copied := f
		s.Files[path] = &copied
	}
}

// Clone deep-copies the session; stores hand out clones so callers never
// alias stored state.
func (s *Session) Clone() *Session {
	clone := &Session{
		Key:          s.Key,
		BaseRevision: s.BaseRevision,
		Message:      s.Message,
		Files:        make(map[string]*StagedFile, len(s.Files)),
		SavePoints:   make([]SavePoint, len(s.SavePoints)),
	}
	for path, f := range s.Files {
		copied := *f
		clone.Files[path] = &copied
	}
	for i, sp := range s.SavePoints {
		clone.SavePoints[i] = SavePoint{
			ID:        sp.ID,
			Timestamp: sp.Timestamp,
			Files:     make(map[string]StagedFile, len(sp.Files)),
		}
		for path, f := range sp.Files {
			clone.SavePoints[i].Files[path] = f
		}
	}
	return clone
}
