// Package repo defines the engine's read and write paths into the
// version-controlled repository: the Content Source (read-only) and the
// Commit Sink (atomic multi-file write-back).
package repo

import (
	"context"
	"errors"

	"github.com/guidelab/stageground/staging"
)

// Typed failures for the repository boundary, checked with errors.Is.
var (
	// ErrNotFound is returned when a path does not exist at a revision.
	ErrNotFound = errors.New("file not found")
	// ErrConflict is returned when the remote branch diverged and the write
	// was rejected; the caller must reconcile before retrying.
	ErrConflict = errors.New("remote revision diverged")
	// ErrSink wraps transport or auth failures from the commit sink. Sink
	// failures are surfaced verbatim, never retried automatically.
	ErrSink = errors.New("commit sink failure")
)

// ContentSource fetches file bytes and revision identifiers from the
// repository. Read-only from the engine's perspective.
type ContentSource interface {
	// ReadFile returns the file bytes at a revision (empty revision means
	// the branch head), or ErrNotFound.
	ReadFile(ctx context.Context, key staging.RepositoryKey, path, revision string) ([]byte, error)

	// CurrentRevision returns the current revision of the target branch.
	CurrentRevision(ctx context.Context, key staging.RepositoryKey) (string, error)

	// ListFiles returns repository paths at a revision matching a doublestar
	// pattern.
	ListFiles(ctx context.Context, key staging.RepositoryKey, revision, pattern string) ([]string, error)
}

// CommitFile is one file in an atomic multi-file write.
type CommitFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// CommitSink accepts an atomic multi-file write with a message. All files
// land in one commit or none do.
type CommitSink interface {
	// Commit returns the new commit id, ErrConflict when the remote
	// diverged, or an ErrSink-wrapped transport failure.
	Commit(ctx context.Context, key staging.RepositoryKey, message string, files []CommitFile) (string, error)
}
