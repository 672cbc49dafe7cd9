package guideline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidelab/stageground/artifact"
	"github.com/guidelab/stageground/rules"
)

const (
	bpmnWithDecisionTask = `<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <bpmn:process id="anc-contact">
    <bpmn:businessRuleTask id="ANC.DT.01" name="Check danger signs"/>
  </bpmn:process>
</bpmn:definitions>`

	bpmnTaskWithoutID = `<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <bpmn:process id="anc-contact">
    <bpmn:businessRuleTask name="Check danger signs"/>
  </bpmn:process>
</bpmn:definitions>`

	dmnTable = `<definitions xmlns="https://www.omg.org/spec/DMN/20191111/MODEL/">
  <decision id="ANC.DT.01" name="Danger signs"/>
</definitions>`

	dmnOrphanTable = `<definitions xmlns="https://www.omg.org/spec/DMN/20191111/MODEL/">
  <decision id="ANC.DT.99" name="Unused"/>
</definitions>`
)

func mustContext(t *testing.T, path, content string) *rules.FileContext {
	t.Helper()
	typ := artifact.Detect(path, []byte(content))
	fc, err := rules.NewFileContext(path, []byte(content), typ)
	require.NoError(t, err)
	return fc
}

func evalRule(t *testing.T, rule rules.Rule, path, content string) []rules.Violation {
	t.Helper()
	vs, err := rule.Evaluate(mustContext(t, path, content))
	require.NoError(t, err)
	return vs
}

func TestRegisterIsDuplicateFree(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Contains(t, r.Codes(), CodeSushiMissingBase)
	assert.Contains(t, r.Codes(), CodeDMNUnreferencedTable)

	// Registering twice trips the duplicate guard.
	assert.ErrorIs(t, Register(r), rules.ErrDuplicateRule)
}

func TestSushiMissingBase(t *testing.T) {
	rule := sushiMissingBaseRule()

	t.Run("missing base dependency yields exactly one violation", func(t *testing.T) {
		content := `{
  "id": "anc",
  "canonical": "http://example.org/anc",
  "fhirVersion": "4.0.1",
  "dependencies": {
    "hl7.fhir.r4.core": "4.0.1"
  }
}`
		vs := evalRule(t, rule, "sushi-config.json", content)
		require.Len(t, vs, 1)
		assert.Contains(t, vs[0].Message, requiredBaseDependency)
		assert.Equal(t, 5, vs[0].Location.Line)
	})

	t.Run("missing dependencies section", func(t *testing.T) {
		vs := evalRule(t, rule, "sushi-config.json", `{"id":"anc"}`)
		require.Len(t, vs, 1)
		assert.Contains(t, vs[0].Message, "dependencies")
	})

	t.Run("base dependency present", func(t *testing.T) {
		content := `{"dependencies": {"hl7.fhir.uv.cpg": "1.0.0"}}`
		assert.Empty(t, evalRule(t, rule, "sushi-config.json", content))
	})
}

func TestSushiMissingField(t *testing.T) {
	rule := sushiMissingFieldRule()

	vs := evalRule(t, rule, "sushi-config.json", `{"id":"anc"}`)
	require.Len(t, vs, 2)
	assert.Contains(t, vs[0].Message, "canonical")
	assert.Contains(t, vs[1].Message, "fhirVersion")

	full := `{"id":"anc","canonical":"http://example.org","fhirVersion":"4.0.1"}`
	assert.Empty(t, evalRule(t, rule, "sushi-config.json", full))
}

func TestBPMNTaskMissingID(t *testing.T) {
	rule := bpmnTaskMissingIDRule()

	t.Run("task without id is reported at its location", func(t *testing.T) {
		vs := evalRule(t, rule, "anc.bpmn", bpmnTaskWithoutID)
		require.Len(t, vs, 1)
		assert.Equal(t, 3, vs[0].Location.Line)
		assert.Equal(t, decisionTaskElement, vs[0].Location.Path)
	})

	t.Run("task with id passes", func(t *testing.T) {
		assert.Empty(t, evalRule(t, rule, "anc.bpmn", bpmnWithDecisionTask))
	})
}

func TestBPMNDuplicateTaskID(t *testing.T) {
	rule := bpmnDuplicateTaskIDRule()
	content := `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL">
  <process id="p">
    <task id="t1"/>
    <userTask id="t1"/>
  </process>
</definitions>`
	vs := evalRule(t, rule, "dup.bpmn", content)
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, `"t1"`)
}

func TestDMNTableMissingID(t *testing.T) {
	rule := dmnTableMissingIDRule()
	content := `<definitions xmlns="https://www.omg.org/spec/DMN/20191111/MODEL/">
  <decision name="anonymous"/>
</definitions>`
	vs := evalRule(t, rule, "t.dmn", content)
	require.Len(t, vs, 1)
	assert.Equal(t, 2, vs[0].Location.Line)

	assert.Empty(t, evalRule(t, rule, "t.dmn", dmnTable))
}

func TestFHIRRules(t *testing.T) {
	typeRule := fhirMissingTypeRule()
	idRule := fhirMissingIDRule()

	t.Run("missing resourceType", func(t *testing.T) {
		vs := evalRule(t, typeRule, "res.json", `{"id":"x"}`)
		require.Len(t, vs, 1)
		assert.Equal(t, "resourceType", vs[0].Location.Path)
	})

	t.Run("missing id is only flagged by the id rule", func(t *testing.T) {
		content := `{"resourceType":"PlanDefinition"}`
		assert.Empty(t, evalRule(t, typeRule, "res.json", content))
		vs := evalRule(t, idRule, "res.json", content)
		require.Len(t, vs, 1)
	})

	t.Run("complete resource passes both", func(t *testing.T) {
		content := `{"resourceType":"PlanDefinition","id":"anc-contact"}`
		assert.Empty(t, evalRule(t, typeRule, "res.json", content))
		assert.Empty(t, evalRule(t, idRule, "res.json", content))
	})
}

type mapReader map[string][]byte

func (m mapReader) ReadFile(_ context.Context, path string) ([]byte, bool, error) {
	data, ok := m[path]
	return data, ok, nil
}

func (m mapReader) ListFiles(_ context.Context, pattern string) ([]string, error) {
	var out []string
	for p := range m {
		if ok, _ := rules.MatchPath(pattern, p); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func sessionContextFor(t *testing.T, staged map[string]string, repo mapReader) *rules.SessionContext {
	t.Helper()
	contexts := make(map[string]*rules.FileContext, len(staged))
	for path, content := range staged {
		contexts[path] = mustContext(t, path, content)
	}
	return rules.NewSessionContext(contexts, nil, repo)
}

func TestDMNUnreferencedTable(t *testing.T) {
	rule := dmnUnreferencedTableRule()

	t.Run("orphan staged table yields one warning", func(t *testing.T) {
		sc := sessionContextFor(t, map[string]string{"tables/unused.dmn": dmnOrphanTable}, mapReader{})
		vs, err := rule.Evaluate(context.Background(), sc)
		require.NoError(t, err)
		require.Len(t, vs, 1)
		assert.Equal(t, "tables/unused.dmn", vs[0].Path)
		assert.Contains(t, vs[0].Violation.Message, "ANC.DT.99")
	})

	t.Run("reference satisfied by staged diagram", func(t *testing.T) {
		sc := sessionContextFor(t, map[string]string{
			"tables/dt01.dmn":       dmnTable,
			"processes/anc.bpmn":    bpmnWithDecisionTask,
		}, mapReader{})
		vs, err := rule.Evaluate(context.Background(), sc)
		require.NoError(t, err)
		assert.Empty(t, vs)
	})

	t.Run("reference satisfied by unstaged repository diagram", func(t *testing.T) {
		repo := mapReader{"processes/anc.bpmn": []byte(bpmnWithDecisionTask)}
		sc := sessionContextFor(t, map[string]string{"tables/dt01.dmn": dmnTable}, repo)
		vs, err := rule.Evaluate(context.Background(), sc)
		require.NoError(t, err)
		assert.Empty(t, vs)
	})
}

func TestBPMNUnresolvedDecision(t *testing.T) {
	rule := bpmnUnresolvedDecisionRule()

	t.Run("unresolved reference warns", func(t *testing.T) {
		sc := sessionContextFor(t, map[string]string{"processes/anc.bpmn": bpmnWithDecisionTask}, mapReader{})
		vs, err := rule.Evaluate(context.Background(), sc)
		require.NoError(t, err)
		require.Len(t, vs, 1)
		assert.Contains(t, vs[0].Violation.Message, "ANC.DT.01")
	})

	t.Run("resolved by repository table", func(t *testing.T) {
		repo := mapReader{"tables/dt01.dmn": []byte(dmnTable)}
		sc := sessionContextFor(t, map[string]string{"processes/anc.bpmn": bpmnWithDecisionTask}, repo)
		vs, err := rule.Evaluate(context.Background(), sc)
		require.NoError(t, err)
		assert.Empty(t, vs)
	})
}
