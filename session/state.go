// Package session glues staging mutations to validation runs and to commit
// attempts. The Controller owns all session mutation; the staging store owns
// durability.
package session

import (
	"sync"

	"github.com/guidelab/stageground/validation"
)

// State is the controller's lifecycle position for one repository key.
type State string

const (
	StateEmpty            State = "empty"
	StateDirty            State = "dirty"
	StateValidating       State = "validating"
	StateBlocked          State = "blocked"
	StateReady            State = "ready"
	StateCommitting       State = "committing"
	StateCommitted        State = "committed"
	StateConflictDetected State = "conflict-detected"
	StateCommitFailed     State = "commit-failed"
)

// entry is the controller's in-memory view of one session: current state,
// the last authoritative report, and a generation counter so only the most
// recently started validation for the current content wins.
type entry struct {
	mu         sync.Mutex
	state      State
	report     *validation.Report
	generation uint64

	// commitMu serializes commit attempts for the key. Concurrent callers
	// wait rather than interleave.
	commitMu sync.Mutex
}

func newEntry() *entry {
	return &entry{state: StateEmpty}
}

func (e *entry) currentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *entry) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

// markDirty registers an edit: any in-flight validation result becomes stale.
func (e *entry) markDirty() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateDirty
	e.generation++
}

// beginValidation captures the generation this run validates.
func (e *entry) beginValidation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateValidating
	return e.generation
}

// completeValidation installs the report unless a newer edit superseded the
// run. It reports whether the result was accepted.
func (e *entry) completeValidation(generation uint64, report *validation.Report) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if generation != e.generation {
		return false
	}
	e.report = report
	if report.CanCommit {
		e.state = StateReady
	} else {
		e.state = StateBlocked
	}
	return true
}

// abandonValidation returns to Dirty after a failed run, unless superseded.
func (e *entry) abandonValidation(generation uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if generation == e.generation {
		e.state = StateDirty
	}
}

// restoreValidated returns to the state the last validation determined,
// preserving staged content after a failed or conflicted commit.
func (e *entry) restoreValidated(report *validation.Report) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.report = report
	if report.CanCommit {
		e.state = StateReady
	} else {
		e.state = StateBlocked
	}
}

// lastReport returns the cached authoritative report, if the entry is in a
// validated state.
func (e *entry) lastReport() (*validation.Report, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.report == nil || (e.state != StateReady && e.state != StateBlocked) {
		return nil, false
	}
	return e.report, true
}

// reset tears the entry down to Empty after a successful commit or discard.
func (e *entry) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateEmpty
	e.report = nil
	e.generation++
}
