package guideline

import (
	"github.com/guidelab/stageground/artifact"
	"github.com/guidelab/stageground/rules"
)

// dmnTableMissingIDRule requires every decision element to carry an id; the
// id is the handle process diagrams link against.
func dmnTableMissingIDRule() rules.Rule {
	return rules.Rule{
		Code:        CodeDMNTableMissingID,
		Severity:    rules.SeverityError,
		AppliesTo:   []artifact.Type{artifact.TypeDecisionTable},
		Description: "decision tables must carry an id",
		Evaluate: func(fc *rules.FileContext) ([]rules.Violation, error) {
			var out []rules.Violation
			for _, el := range fc.XML().FindAll("decision") {
				if el.Attrs["id"] == "" {
					out = append(out, rules.Violation{
						Message:  "decision table is missing its id attribute",
						Location: &rules.Location{Line: el.Line, Column: el.Column, Path: "decision"},
					})
				}
			}
			return out, nil
		},
	}
}

// decisionIDs collects the decision identifiers defined by a decision-table
// artifact.
func decisionIDs(fc *rules.FileContext) map[string]*artifact.XMLElement {
	ids := make(map[string]*artifact.XMLElement)
	if fc.XML() == nil {
		return ids
	}
	for _, el := range fc.XML().FindAll("decision") {
		if id := el.Attrs["id"]; id != "" {
			ids[id] = el
		}
	}
	return ids
}
