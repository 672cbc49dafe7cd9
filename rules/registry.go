package rules

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/guidelab/stageground/artifact"
)

// ErrDuplicateRule is returned when a rule code is registered twice. Codes
// are a single namespace across single-file and cross-file rules.
var ErrDuplicateRule = errors.New("duplicate rule code")

// Registry indexes validation rules. Lookup order is stable: RulesFor
// returns rules in registration order, which the engine relies on for
// deterministic reports.
type Registry struct {
	mu      sync.RWMutex
	byCode  map[string]struct{}
	ordered []Rule
	cross   []CrossFileRule
}

// NewRegistry creates an empty registry. Rule sets are registered
// explicitly (see rules/guideline), never by import side effects, so
// startup order is deterministic and testable in isolation.
func NewRegistry() *Registry {
	return &Registry{byCode: make(map[string]struct{})}
}

// Register adds a single-file rule. Registering a code twice fails with
// ErrDuplicateRule.
func (r *Registry) Register(rule Rule) error {
	if rule.Code == "" {
		return fmt.Errorf("rule code is required")
	}
	if rule.Evaluate == nil {
		return fmt.Errorf("rule %s: evaluate function is required", rule.Code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byCode[rule.Code]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.Code)
	}
	r.byCode[rule.Code] = struct{}{}
	r.ordered = append(r.ordered, rule)
	return nil
}

// RegisterCrossFile adds a cross-file rule, sharing the code namespace with
// single-file rules.
func (r *Registry) RegisterCrossFile(rule CrossFileRule) error {
	if rule.Code == "" {
		return fmt.Errorf("rule code is required")
	}
	if rule.Evaluate == nil {
		return fmt.Errorf("rule %s: evaluate function is required", rule.Code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byCode[rule.Code]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.Code)
	}
	r.byCode[rule.Code] = struct{}{}
	r.cross = append(r.cross, rule)
	return nil
}

// RulesFor returns the rules applicable to an artifact type and, when
// component is non-empty, to that component (rules without a component
// apply everywhere). Order is registration order; codes are unique so the
// result needs no de-duplication.
func (r *Registry) RulesFor(t artifact.Type, component string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Rule
	for _, rule := range r.ordered {
		if !rule.AppliesToType(t) {
			continue
		}
		if component != "" && rule.Component != "" && rule.Component != component {
			continue
		}
		out = append(out, rule)
	}
	return out
}

// CrossFileRules returns all cross-file rules in registration order.
func (r *Registry) CrossFileRules() []CrossFileRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CrossFileRule, len(r.cross))
	copy(out, r.cross)
	return out
}

// Codes returns every registered rule code, single-file first, each group
// in registration order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.ordered)+len(r.cross))
	for _, rule := range r.ordered {
		codes = append(codes, rule.Code)
	}
	for _, rule := range r.cross {
		codes = append(codes, rule.Code)
	}
	return codes
}

// MatchPath matches a repository path against a doublestar pattern.
func MatchPath(pattern, path string) (bool, error) {
	return doublestar.Match(pattern, filepath.ToSlash(path))
}
