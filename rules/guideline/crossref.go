package guideline

import (
	"context"
	"fmt"
	"sort"

	"github.com/guidelab/stageground/artifact"
	"github.com/guidelab/stageground/rules"
)

// sortedKeys keeps cross-file violation order deterministic across runs.
func sortedKeys(m map[string]*artifact.XMLElement) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const (
	processPattern  = "**/*.{bpmn,bpmn2}"
	decisionPattern = "**/*.dmn"
)

// dmnUnreferencedTableRule warns when a staged decision table defines an id
// that no process diagram — staged or already in the repository — links to.
// When repository content cannot be listed the rule stays silent rather
// than emitting speculative warnings.
func dmnUnreferencedTableRule() rules.CrossFileRule {
	return rules.CrossFileRule{
		Code:        CodeDMNUnreferencedTable,
		Severity:    rules.SeverityWarning,
		Description: "decision tables should be referenced by at least one process task",
		Evaluate: func(ctx context.Context, sc *rules.SessionContext) ([]rules.PathViolation, error) {
			processes, err := sc.Files(ctx, processPattern)
			if err != nil {
				return nil, nil
			}
			referenced := make(map[string]bool)
			for _, fc := range processes {
				for id := range processDecisionRefs(fc) {
					referenced[id] = true
				}
			}

			var out []rules.PathViolation
			for _, path := range sc.StagedPaths() {
				fc := sc.Staged(path)
				if fc == nil || fc.Type() != artifact.TypeDecisionTable {
					continue
				}
				ids := decisionIDs(fc)
				for _, id := range sortedKeys(ids) {
					if referenced[id] {
						continue
					}
					el := ids[id]
					out = append(out, rules.PathViolation{
						Path: path,
						Violation: rules.Violation{
							Message:  fmt.Sprintf("decision table %q is not referenced by any process task", id),
							Location: &rules.Location{Line: el.Line, Column: el.Column, Path: "decision"},
						},
					})
				}
			}
			return out, nil
		},
	}
}

// bpmnUnresolvedDecisionRule warns when a staged process diagram links a
// task to a decision id that no decision table — staged or in the
// repository — defines.
func bpmnUnresolvedDecisionRule() rules.CrossFileRule {
	return rules.CrossFileRule{
		Code:        CodeBPMNUnresolvedRef,
		Severity:    rules.SeverityWarning,
		Description: "decision-linked tasks should resolve to an existing decision table",
		Evaluate: func(ctx context.Context, sc *rules.SessionContext) ([]rules.PathViolation, error) {
			tables, err := sc.Files(ctx, decisionPattern)
			if err != nil {
				return nil, nil
			}
			defined := make(map[string]bool)
			for _, fc := range tables {
				for id := range decisionIDs(fc) {
					defined[id] = true
				}
			}

			var out []rules.PathViolation
			for _, path := range sc.StagedPaths() {
				fc := sc.Staged(path)
				if fc == nil || fc.Type() != artifact.TypeProcess {
					continue
				}
				refs := processDecisionRefs(fc)
				for _, id := range sortedKeys(refs) {
					if defined[id] {
						continue
					}
					el := refs[id]
					out = append(out, rules.PathViolation{
						Path: path,
						Violation: rules.Violation{
							Message:  fmt.Sprintf("task references decision %q which no decision table defines", id),
							Location: &rules.Location{Line: el.Line, Column: el.Column, Path: decisionTaskElement},
						},
					})
				}
			}
			return out, nil
		},
	}
}
