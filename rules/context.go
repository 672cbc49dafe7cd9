package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/guidelab/stageground/artifact"
)

// FileContext is the per-file helper bundle handed to rule evaluation. It is
// built fresh for each validation call and memoizes the structural parse so
// every rule sharing a file pays the parse cost once.
type FileContext struct {
	path    string
	content []byte
	typ     artifact.Type

	xmlDoc  *artifact.XMLDocument
	jsonDoc *artifact.JSONDocument
	index   *artifact.LineIndex
}

// NewFileContext builds the context for one (path, content) pair. For
// structured formats the parse happens here: a malformed artifact surfaces
// as a construction error, which callers must convert into a single
// error-severity PARSE-ERROR violation.
func NewFileContext(path string, content []byte, typ artifact.Type) (*FileContext, error) {
	fc := &FileContext{path: path, content: content, typ: typ}
	switch typ {
	case artifact.TypeProcess, artifact.TypeDecisionTable:
		doc, err := artifact.ParseXML(content)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		fc.xmlDoc = doc
	case artifact.TypeFHIRJSON, artifact.TypeSushiConfig:
		doc, err := artifact.ParseJSON(content)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		fc.jsonDoc = doc
	}
	return fc, nil
}

// Path returns the repository-relative path being validated.
func (fc *FileContext) Path() string { return fc.path }

// Content returns the raw file content.
func (fc *FileContext) Content() []byte { return fc.content }

// Type returns the detected artifact type.
func (fc *FileContext) Type() artifact.Type { return fc.typ }

// XML returns the memoized XML parse, or nil for non-XML artifacts.
func (fc *FileContext) XML() *artifact.XMLDocument { return fc.xmlDoc }

// JSON returns the memoized JSON parse, or nil for non-JSON artifacts.
func (fc *FileContext) JSON() *artifact.JSONDocument { return fc.jsonDoc }

// Position maps a byte offset back to a 1-based line/column for reporting.
func (fc *FileContext) Position(offset int) (line, col int) {
	if fc.index == nil {
		fc.index = artifact.NewLineIndex(fc.content)
	}
	return fc.index.Position(offset)
}

// RepoReader is the cross-file rules' window onto repository content that is
// not part of the staging session. Implementations read at a fixed revision
// so repeated evaluation of an unchanged session stays deterministic.
type RepoReader interface {
	// ReadFile returns the file bytes, or ok=false when the path does not
	// exist at the pinned revision.
	ReadFile(ctx context.Context, path string) (data []byte, ok bool, err error)
	// ListFiles returns repository paths matching a doublestar pattern.
	ListFiles(ctx context.Context, pattern string) ([]string, error)
}

// SessionContext is handed to cross-file rules. Staged content always wins
// over repository content for the same path.
type SessionContext struct {
	staged map[string]*FileContext
	failed map[string]bool // staged paths whose context construction failed
	reader RepoReader
}

// NewSessionContext builds a cross-file context over the staged file
// contexts. failed lists staged paths that did not parse; cross-file rules
// skip them rather than re-reporting. reader may be nil when no repository
// access is available, in which case unstaged lookups report not-found.
func NewSessionContext(staged map[string]*FileContext, failed map[string]bool, reader RepoReader) *SessionContext {
	return &SessionContext{staged: staged, failed: failed, reader: reader}
}

// StagedPaths returns the staged paths in sorted order.
func (sc *SessionContext) StagedPaths() []string {
	paths := make([]string, 0, len(sc.staged))
	for p := range sc.staged {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Staged returns the context for a staged path, or nil.
func (sc *SessionContext) Staged(path string) *FileContext { return sc.staged[path] }

// StagedFailed reports whether a staged path failed to parse.
func (sc *SessionContext) StagedFailed(path string) bool { return sc.failed[path] }

// File resolves a path to a context: staged content first, repository
// content as fallback. ok=false means the file exists nowhere.
func (sc *SessionContext) File(ctx context.Context, path string) (*FileContext, bool, error) {
	if fc, staged := sc.staged[path]; staged {
		return fc, true, nil
	}
	if sc.reader == nil {
		return nil, false, nil
	}
	data, ok, err := sc.reader.ReadFile(ctx, path)
	if err != nil || !ok {
		return nil, false, err
	}
	fc, err := NewFileContext(path, data, artifact.Detect(path, data))
	if err != nil {
		// Unstaged content that does not parse cannot satisfy a reference,
		// but it is not this session's defect either.
		return nil, false, nil
	}
	return fc, true, nil
}

// Files returns contexts for every file matching pattern, staged and
// unstaged combined, keyed by path. Staged content shadows the repository.
func (sc *SessionContext) Files(ctx context.Context, pattern string) (map[string]*FileContext, error) {
	out := make(map[string]*FileContext)
	if sc.reader != nil {
		paths, err := sc.reader.ListFiles(ctx, pattern)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if _, staged := sc.staged[p]; staged {
				continue
			}
			fc, ok, err := sc.File(ctx, p)
			if err != nil {
				return nil, err
			}
			if ok {
				out[p] = fc
			}
		}
	}
	for p, fc := range sc.staged {
		if matched, err := MatchPath(pattern, p); err == nil && matched {
			out[p] = fc
		}
	}
	return out, nil
}
