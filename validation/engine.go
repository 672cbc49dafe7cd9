package validation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/guidelab/stageground/artifact"
	"github.com/guidelab/stageground/rules"
	"github.com/guidelab/stageground/staging"
)

// Engine selects applicable rules for a file, executes them, and aggregates
// violations. Rule evaluation is isolated: one broken rule never blocks
// unrelated rules or unrelated files.
type Engine struct {
	registry    *rules.Registry
	logger      *slog.Logger
	parallelism int
}

// NewEngine creates an Engine over a registry. logger may be nil.
func NewEngine(registry *rules.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry:    registry,
		logger:      logger,
		parallelism: runtime.GOMAXPROCS(0),
	}
}

// ValidateFile validates one (path, content) pair. componentHint optionally
// narrows the rule set to a logical component. A file whose type cannot be
// detected yields an empty result.
func (e *Engine) ValidateFile(ctx context.Context, path string, content []byte, componentHint string) rules.FileResult {
	result, _, _ := e.validateFile(ctx, path, content, componentHint)
	return result
}

// validateFile additionally returns the constructed context (nil when
// construction failed) so session validation can reuse it for cross-file
// rules without re-parsing.
func (e *Engine) validateFile(ctx context.Context, path string, content []byte, componentHint string) (rules.FileResult, *rules.FileContext, bool) {
	result := rules.FileResult{Path: path}

	typ := artifact.Detect(path, content)
	if typ == artifact.TypeUnknown {
		result.Finalize()
		return result, nil, false
	}

	fc, err := rules.NewFileContext(path, content, typ)
	if err != nil {
		result.Violations = []rules.Violation{{
			RuleCode: rules.CodeParseError,
			Severity: rules.SeverityError,
			Message:  err.Error(),
		}}
		result.Finalize()
		return result, nil, true
	}

	for _, rule := range e.registry.RulesFor(typ, componentHint) {
		result.Violations = append(result.Violations, e.runRule(rule, fc)...)
	}
	result.Finalize()

	e.logger.Debug("validated file",
		"path", path,
		"type", string(typ),
		"violations", len(result.Violations))
	return result, fc, false
}

// runRule executes one rule, recovering panics and converting implementation
// errors into a RULE-EXECUTION-ERROR violation.
func (e *Engine) runRule(rule rules.Rule, fc *rules.FileContext) (out []rules.Violation) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("rule panicked", "rule", rule.Code, "path", fc.Path(), "panic", r)
			out = []rules.Violation{executionError(rule.Code, fmt.Sprintf("rule panicked: %v", r))}
		}
	}()

	violations, err := rule.Evaluate(fc)
	if err != nil {
		e.logger.Warn("rule failed", "rule", rule.Code, "path", fc.Path(), "error", err)
		return []rules.Violation{executionError(rule.Code, err.Error())}
	}
	return stamp(violations, rule.Code, rule.Severity)
}

// ValidateSession validates every staged file, then runs cross-file rules
// over the full staged set with reader as the window onto unstaged
// repository content (nil disables the fallback). The report is
// deterministic: files sorted by path, violations in rule-registration order
// then emission order.
func (e *Engine) ValidateSession(ctx context.Context, session *staging.Session, reader rules.RepoReader, opts Options) (*Report, error) {
	paths := make([]string, 0, len(session.Files))
	for p := range session.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	results := make([]rules.FileResult, len(paths))
	contexts := make([]*rules.FileContext, len(paths))
	parseFailed := make([]bool, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, path := range paths {
		g.Go(func() error {
			content := []byte(session.Files[path].Content)
			results[i], contexts[i], parseFailed[i] = e.validateFile(gctx, path, content, "")
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Files: results}

	// Cross-file rules run strictly after all single-file validation so they
	// never observe inconsistent intermediate content.
	staged := make(map[string]*rules.FileContext, len(paths))
	failed := make(map[string]bool, len(paths))
	byPath := make(map[string]*rules.FileResult, len(paths))
	for i, path := range paths {
		if contexts[i] != nil {
			staged[path] = contexts[i]
		}
		failed[path] = parseFailed[i]
		byPath[path] = &report.Files[i]
	}
	sc := rules.NewSessionContext(staged, failed, reader)

	for _, rule := range e.registry.CrossFileRules() {
		pvs, err := e.runCrossFileRule(ctx, rule, sc)
		if err != nil {
			return nil, err
		}
		for _, pv := range pvs {
			if fr, ok := byPath[pv.Path]; ok {
				fr.Violations = append(fr.Violations, pv.Violation)
			} else {
				report.Session = append(report.Session, pv.Violation)
			}
		}
	}

	for i := range report.Files {
		report.Files[i].Violations = filterViolations(report.Files[i].Violations, opts)
	}
	report.Session = filterViolations(report.Session, opts)
	report.finalize()
	return report, nil
}

// runCrossFileRule isolates one cross-file rule. A failing implementation
// becomes a session-level RULE-EXECUTION-ERROR violation; only context
// cancellation aborts the run.
func (e *Engine) runCrossFileRule(ctx context.Context, rule rules.CrossFileRule, sc *rules.SessionContext) (out []rules.PathViolation, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("cross-file rule panicked", "rule", rule.Code, "panic", r)
			out = []rules.PathViolation{{Violation: executionError(rule.Code, fmt.Sprintf("rule panicked: %v", r))}}
			err = nil
		}
	}()

	pvs, ruleErr := rule.Evaluate(ctx, sc)
	if ruleErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("cross-file rule failed", "rule", rule.Code, "error", ruleErr)
		return []rules.PathViolation{{Violation: executionError(rule.Code, ruleErr.Error())}}, nil
	}
	for i := range pvs {
		pvs[i].Violation = stampOne(pvs[i].Violation, rule.Code, rule.Severity)
	}
	return pvs, nil
}

func executionError(code, message string) rules.Violation {
	return rules.Violation{
		RuleCode: fmt.Sprintf("%s:%s", rules.CodeRuleExecutionError, code),
		Severity: rules.SeverityError,
		Message:  message,
	}
}

// stamp fills in the rule's code and severity on violations that left them
// unset.
func stamp(violations []rules.Violation, code string, severity rules.Severity) []rules.Violation {
	for i := range violations {
		violations[i] = stampOne(violations[i], code, severity)
	}
	return violations
}

func stampOne(v rules.Violation, code string, severity rules.Severity) rules.Violation {
	if v.RuleCode == "" {
		v.RuleCode = code
	}
	if v.Severity == "" {
		v.Severity = severity
	}
	return v
}
