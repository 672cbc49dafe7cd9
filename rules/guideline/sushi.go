package guideline

import (
	"fmt"

	"github.com/guidelab/stageground/artifact"
	"github.com/guidelab/stageground/rules"
)

// sushiMissingBaseRule requires the SMART base dependency in the project's
// dependency set. A guideline IG without it cannot resolve any of the
// profiles the rest of the content builds on.
func sushiMissingBaseRule() rules.Rule {
	return rules.Rule{
		Code:        CodeSushiMissingBase,
		Severity:    rules.SeverityError,
		AppliesTo:   []artifact.Type{artifact.TypeSushiConfig},
		Description: fmt.Sprintf("sushi-config.json must declare the %s dependency", requiredBaseDependency),
		Evaluate: func(fc *rules.FileContext) ([]rules.Violation, error) {
			doc := fc.JSON()
			deps := doc.Member("dependencies")
			if deps == nil || deps.Kind != artifact.JSONObject {
				return []rules.Violation{{
					Message:  "dependencies section is missing",
					Location: &rules.Location{Line: doc.Root.Line, Column: doc.Root.Column, Path: "dependencies"},
				}}, nil
			}
			if deps.Members[requiredBaseDependency] == nil {
				return []rules.Violation{{
					Message:  fmt.Sprintf("dependencies must include %s", requiredBaseDependency),
					Location: &rules.Location{Line: deps.Line, Column: deps.Column, Path: "dependencies"},
				}}, nil
			}
			return nil, nil
		},
	}
}

// sushiMissingFieldRule checks the identity fields every IG build needs.
func sushiMissingFieldRule() rules.Rule {
	required := []string{"id", "canonical", "fhirVersion"}
	return rules.Rule{
		Code:        CodeSushiMissingField,
		Severity:    rules.SeverityError,
		AppliesTo:   []artifact.Type{artifact.TypeSushiConfig},
		Description: "sushi-config.json must declare id, canonical and fhirVersion",
		Evaluate: func(fc *rules.FileContext) ([]rules.Violation, error) {
			doc := fc.JSON()
			var out []rules.Violation
			for _, field := range required {
				if doc.Member(field) == nil {
					out = append(out, rules.Violation{
						Message:  fmt.Sprintf("required field %q is missing", field),
						Location: &rules.Location{Line: doc.Root.Line, Column: doc.Root.Column, Path: field},
					})
				}
			}
			return out, nil
		},
	}
}
