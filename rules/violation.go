// Package rules defines the validation rule model and the registry that
// indexes rules by artifact type and logical component. Rules are pure
// functions registered explicitly at startup; the registry performs no I/O.
package rules

// Severity tiers a violation. Errors block commit; warnings and info never do.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Reserved rule codes emitted by the engine itself rather than a registered
// rule.
const (
	// CodeParseError is emitted when a validation context cannot be
	// constructed because the content is malformed for its declared format.
	CodeParseError = "PARSE-ERROR"
	// CodeRuleExecutionError prefixes the code of a rule whose
	// implementation failed; the failing rule's code is appended after a
	// colon.
	CodeRuleExecutionError = "RULE-EXECUTION-ERROR"
)

// Location points a violation at a source position. Line/Column are 1-based;
// zero values mean the violation applies to the file as a whole. Path
// optionally carries a structural path (element or member path) for
// formats where line numbers are unstable.
type Location struct {
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Violation is one rule outcome for one file.
type Violation struct {
	RuleCode string    `json:"rule_code"`
	Severity Severity  `json:"severity"`
	Location *Location `json:"location,omitempty"`
	Message  string    `json:"message"`
}

// FileResult is the ordered outcome of validating one file.
type FileResult struct {
	Path       string      `json:"path"`
	Violations []Violation `json:"violations"`
	Blocked    bool        `json:"blocked"`
}

// Finalize recomputes the blocked flag from the violation list.
func (r *FileResult) Finalize() {
	r.Blocked = false
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			r.Blocked = true
			return
		}
	}
}
