package guideline

import (
	"github.com/guidelab/stageground/artifact"
	"github.com/guidelab/stageground/rules"
)

// fhirMissingTypeRule rejects JSON resources without a resourceType; the
// IG publisher cannot route them to a schema.
func fhirMissingTypeRule() rules.Rule {
	return rules.Rule{
		Code:        CodeFHIRMissingType,
		Severity:    rules.SeverityError,
		AppliesTo:   []artifact.Type{artifact.TypeFHIRJSON},
		Description: "FHIR JSON resources must declare resourceType",
		Evaluate: func(fc *rules.FileContext) ([]rules.Violation, error) {
			doc := fc.JSON()
			if doc.Root.Kind != artifact.JSONObject {
				return []rules.Violation{{
					Message:  "resource must be a JSON object",
					Location: &rules.Location{Line: doc.Root.Line, Column: doc.Root.Column},
				}}, nil
			}
			rt := doc.Member("resourceType")
			if rt == nil || rt.StringValue() == "" {
				return []rules.Violation{{
					Message:  "resourceType is missing",
					Location: &rules.Location{Line: doc.Root.Line, Column: doc.Root.Column, Path: "resourceType"},
				}}, nil
			}
			return nil, nil
		},
	}
}

// fhirMissingIDRule flags resources without a logical id. Publishable but
// awkward to reference, hence a warning.
func fhirMissingIDRule() rules.Rule {
	return rules.Rule{
		Code:        CodeFHIRMissingID,
		Severity:    rules.SeverityWarning,
		AppliesTo:   []artifact.Type{artifact.TypeFHIRJSON},
		Description: "FHIR resources should carry a logical id",
		Evaluate: func(fc *rules.FileContext) ([]rules.Violation, error) {
			doc := fc.JSON()
			if doc.Root.Kind != artifact.JSONObject {
				return nil, nil // fhirMissingTypeRule already reports this
			}
			if id := doc.Member("id"); id == nil || id.StringValue() == "" {
				return []rules.Violation{{
					Message:  "resource has no logical id",
					Location: &rules.Location{Line: doc.Root.Line, Column: doc.Root.Column, Path: "id"},
				}}, nil
			}
			return nil, nil
		},
	}
}
