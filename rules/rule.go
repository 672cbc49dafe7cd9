package rules

import (
	"context"

	"github.com/guidelab/stageground/artifact"
)

// Rule is an immutable single-file validation rule. Evaluate must be pure:
// no side effects, no dependence on anything but its arguments. Returned
// violations inherit the rule's code and severity if left unset.
type Rule struct {
	// Code is the globally unique rule identifier.
	Code string
	// Severity classifies every violation this rule emits.
	Severity Severity
	// AppliesTo lists the artifact types the rule evaluates.
	AppliesTo []artifact.Type
	// Component optionally narrows the rule to a logical component
	// (e.g. "anc" or "immunization"); empty applies to all components.
	Component string
	// Description explains the criterion, used in reports and docs.
	Description string
	// Evaluate inspects one file. Errors are captured by the engine as a
	// RULE-EXECUTION-ERROR violation, never propagated.
	Evaluate func(fc *FileContext) ([]Violation, error)
}

// AppliesToType reports whether the rule evaluates the given artifact type.
func (r Rule) AppliesToType(t artifact.Type) bool {
	for _, at := range r.AppliesTo {
		if at == t {
			return true
		}
	}
	return false
}

// CrossFileRule validates relationships spanning multiple files. It runs
// after all single-file rules and sees the full staged set plus read access
// to unstaged repository content, so a reference to a file that merely
// happens not to be staged is never reported as missing.
type CrossFileRule struct {
	Code        string
	Severity    Severity
	Description string
	// Evaluate returns violations attributed to specific paths.
	Evaluate func(ctx context.Context, sc *SessionContext) ([]PathViolation, error)
}

// PathViolation attributes a cross-file violation to one staged path.
type PathViolation struct {
	Path      string
	Violation Violation
}
