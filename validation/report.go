// Package validation runs registered rules over staged files and aggregates
// the outcome into session reports. The engine is side-effect-free: rule
// failures become violations, never errors across the public boundary.
package validation

import "github.com/guidelab/stageground/rules"

// Options filters the report content. Errors are never filtered.
type Options struct {
	IncludeWarnings bool `json:"include_warnings"`
	IncludeInfo     bool `json:"include_info"`
}

// DefaultOptions includes every severity tier.
func DefaultOptions() Options {
	return Options{IncludeWarnings: true, IncludeInfo: true}
}

// Rollup counts violations by severity across a whole report.
type Rollup struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Info     int `json:"info"`
}

// Report is the aggregate validation outcome for a session. Files are sorted
// by path; the report for an unchanged session is byte-identical across runs.
type Report struct {
	Files []rules.FileResult `json:"files"`
	// Session holds violations not attributable to a single staged file,
	// such as a cross-file rule whose implementation failed.
	Session   []rules.Violation `json:"session,omitempty"`
	Rollup    Rollup            `json:"rollup"`
	CanCommit bool              `json:"can_commit"`
}

// finalize recomputes per-file blocked flags, the rollup, and CanCommit.
func (r *Report) finalize() {
	r.Rollup = Rollup{}
	for i := range r.Files {
		r.Files[i].Finalize()
		for _, v := range r.Files[i].Violations {
			r.Rollup.count(v.Severity)
		}
	}
	for _, v := range r.Session {
		r.Rollup.count(v.Severity)
	}
	r.CanCommit = r.Rollup.Errors == 0
}

func (c *Rollup) count(s rules.Severity) {
	switch s {
	case rules.SeverityError:
		c.Errors++
	case rules.SeverityWarning:
		c.Warnings++
	case rules.SeverityInfo:
		c.Info++
	}
}

// filter drops warning/info violations per the options. Errors always stay.
func filterViolations(violations []rules.Violation, opts Options) []rules.Violation {
	out := violations[:0:0]
	for _, v := range violations {
		switch v.Severity {
		case rules.SeverityWarning:
			if !opts.IncludeWarnings {
				continue
			}
		case rules.SeverityInfo:
			if !opts.IncludeInfo {
				continue
			}
		}
		out = append(out, v)
	}
	return out
}
