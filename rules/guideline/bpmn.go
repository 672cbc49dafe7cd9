package guideline

import (
	"fmt"

	"github.com/guidelab/stageground/artifact"
	"github.com/guidelab/stageground/rules"
)

// decisionTaskElement is the BPMN element that links a process step to a
// DMN decision table; its id attribute carries the decision identifier.
const decisionTaskElement = "businessRuleTask"

// taskElements are the BPMN task kinds whose ids must be unique within a
// diagram.
var taskElements = []string{"task", "userTask", "serviceTask", "sendTask", "receiveTask", decisionTaskElement}

// bpmnTaskMissingIDRule requires every decision-linked task to carry the id
// attribute that names its decision table.
func bpmnTaskMissingIDRule() rules.Rule {
	return rules.Rule{
		Code:        CodeBPMNTaskMissingID,
		Severity:    rules.SeverityError,
		AppliesTo:   []artifact.Type{artifact.TypeProcess},
		Description: "decision-linked tasks must carry the decision identifier attribute",
		Evaluate: func(fc *rules.FileContext) ([]rules.Violation, error) {
			var out []rules.Violation
			for _, el := range fc.XML().FindAll(decisionTaskElement) {
				if el.Attrs["id"] == "" {
					out = append(out, rules.Violation{
						Message:  "decision-linked task is missing its id attribute",
						Location: &rules.Location{Line: el.Line, Column: el.Column, Path: decisionTaskElement},
					})
				}
			}
			return out, nil
		},
	}
}

// bpmnDuplicateTaskIDRule rejects diagrams where two tasks share an id;
// downstream decision linking would be ambiguous.
func bpmnDuplicateTaskIDRule() rules.Rule {
	return rules.Rule{
		Code:        CodeBPMNDuplicateTaskID,
		Severity:    rules.SeverityError,
		AppliesTo:   []artifact.Type{artifact.TypeProcess},
		Description: "task ids must be unique within a process diagram",
		Evaluate: func(fc *rules.FileContext) ([]rules.Violation, error) {
			seen := make(map[string]bool)
			var out []rules.Violation
			for _, name := range taskElements {
				for _, el := range fc.XML().FindAll(name) {
					id := el.Attrs["id"]
					if id == "" {
						continue
					}
					if seen[id] {
						out = append(out, rules.Violation{
							Message:  fmt.Sprintf("duplicate task id %q", id),
							Location: &rules.Location{Line: el.Line, Column: el.Column, Path: name},
						})
					}
					seen[id] = true
				}
			}
			return out, nil
		},
	}
}

// processDecisionRefs collects the decision identifiers referenced by a
// process diagram's decision-linked tasks.
func processDecisionRefs(fc *rules.FileContext) map[string]*artifact.XMLElement {
	refs := make(map[string]*artifact.XMLElement)
	if fc.XML() == nil {
		return refs
	}
	for _, el := range fc.XML().FindAll(decisionTaskElement) {
		if id := el.Attrs["id"]; id != "" {
			refs[id] = el
		}
	}
	return refs
}
