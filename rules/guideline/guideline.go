// Package guideline provides the built-in validation rules for
// healthcare-guideline repositories: IG project configuration, BPMN process
// diagrams, DMN decision tables, FHIR resources, and the cross-references
// between them.
package guideline

import (
	"github.com/guidelab/stageground/rules"
)

// Rule codes for the built-in set.
const (
	CodeSushiMissingBase     = "SUSHI-MISSING-BASE"
	CodeSushiMissingField    = "SUSHI-MISSING-FIELD"
	CodeBPMNTaskMissingID    = "BPMN-TASK-MISSING-ID"
	CodeBPMNDuplicateTaskID  = "BPMN-DUPLICATE-TASK-ID"
	CodeDMNTableMissingID    = "DMN-TABLE-MISSING-ID"
	CodeFHIRMissingType      = "FHIR-MISSING-RESOURCE-TYPE"
	CodeFHIRMissingID        = "FHIR-MISSING-ID"
	CodeDMNUnreferencedTable = "DMN-UNREFERENCED-TABLE"
	CodeBPMNUnresolvedRef    = "BPMN-UNRESOLVED-DECISION"
)

// requiredBaseDependency is the IG dependency every guideline project must
// declare in sushi-config.json.
const requiredBaseDependency = "hl7.fhir.uv.cpg"

// Register adds the full built-in rule set to a registry, in a fixed order.
func Register(r *rules.Registry) error {
	singleFile := []rules.Rule{
		sushiMissingBaseRule(),
		sushiMissingFieldRule(),
		bpmnTaskMissingIDRule(),
		bpmnDuplicateTaskIDRule(),
		dmnTableMissingIDRule(),
		fhirMissingTypeRule(),
		fhirMissingIDRule(),
	}
	for _, rule := range singleFile {
		if err := r.Register(rule); err != nil {
			return err
		}
	}
	crossFile := []rules.CrossFileRule{
		dmnUnreferencedTableRule(),
		bpmnUnresolvedDecisionRule(),
	}
	for _, rule := range crossFile {
		if err := r.RegisterCrossFile(rule); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry pre-loaded with the built-in rule set.
func NewRegistry() (*rules.Registry, error) {
	r := rules.NewRegistry()
	if err := Register(r); err != nil {
		return nil, err
	}
	return r, nil
}
