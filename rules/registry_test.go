package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidelab/stageground/artifact"
)

func noopRule(code string, types []artifact.Type, component string) Rule {
	return Rule{
		Code:      code,
		Severity:  SeverityWarning,
		AppliesTo: types,
		Component: component,
		Evaluate: func(fc *FileContext) ([]Violation, error) {
			return nil, nil
		},
	}
}

func codes(rs []Rule) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Code
	}
	return out
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	t.Run("duplicate code rejected", func(t *testing.T) {
		require.NoError(t, r.Register(noopRule("R1", []artifact.Type{artifact.TypeProcess}, "")))
		err := r.Register(noopRule("R1", []artifact.Type{artifact.TypeFHIRJSON}, ""))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDuplicateRule)
	})

	t.Run("cross-file rules share the code namespace", func(t *testing.T) {
		err := r.RegisterCrossFile(CrossFileRule{
			Code:     "R1",
			Severity: SeverityWarning,
			Evaluate: func(ctx context.Context, sc *SessionContext) ([]PathViolation, error) {
				return nil, nil
			},
		})
		assert.ErrorIs(t, err, ErrDuplicateRule)
	})

	t.Run("missing code rejected", func(t *testing.T) {
		assert.Error(t, r.Register(noopRule("", nil, "")))
	})

	t.Run("missing evaluate rejected", func(t *testing.T) {
		assert.Error(t, r.Register(Rule{Code: "R-NOEVAL", Severity: SeverityInfo}))
	})
}

func TestRegistry_RulesFor(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(noopRule("P1", []artifact.Type{artifact.TypeProcess}, "")))
	require.NoError(t, r.Register(noopRule("P2", []artifact.Type{artifact.TypeProcess}, "anc")))
	require.NoError(t, r.Register(noopRule("D1", []artifact.Type{artifact.TypeDecisionTable}, "")))
	require.NoError(t, r.Register(noopRule("PD1", []artifact.Type{artifact.TypeProcess, artifact.TypeDecisionTable}, "")))

	t.Run("file type only", func(t *testing.T) {
		got := r.RulesFor(artifact.TypeProcess, "")
		assert.Equal(t, []string{"P1", "P2", "PD1"}, codes(got))
	})

	t.Run("component narrows to matching or unscoped", func(t *testing.T) {
		got := r.RulesFor(artifact.TypeProcess, "anc")
		assert.Equal(t, []string{"P1", "P2", "PD1"}, codes(got))

		got = r.RulesFor(artifact.TypeProcess, "immunization")
		assert.Equal(t, []string{"P1", "PD1"}, codes(got))
	})

	t.Run("non-matching type excluded", func(t *testing.T) {
		got := r.RulesFor(artifact.TypeFHIRJSON, "")
		assert.Empty(t, got)

		got = r.RulesFor(artifact.TypeDecisionTable, "")
		assert.Equal(t, []string{"D1", "PD1"}, codes(got))
	})

	t.Run("registration order is stable", func(t *testing.T) {
		first := codes(r.RulesFor(artifact.TypeProcess, ""))
		second := codes(r.RulesFor(artifact.TypeProcess, ""))
		assert.Equal(t, first, second)
	})
}

func TestRegistry_Codes(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(noopRule("A", []artifact.Type{artifact.TypeProcess}, "")))
	require.NoError(t, r.RegisterCrossFile(CrossFileRule{
		Code:     "X",
		Severity: SeverityWarning,
		Evaluate: func(ctx context.Context, sc *SessionContext) ([]PathViolation, error) {
			return nil, nil
		},
	}))
	assert.Equal(t, []string{"A", "X"}, r.Codes())
	assert.Len(t, r.CrossFileRules(), 1)
}

func TestFileContext_ParseFailure(t *testing.T) {
	_, err := NewFileContext("bad.bpmn", []byte("<unclosed"), artifact.TypeProcess)
	require.Error(t, err)

	_, err = NewFileContext("bad.json", []byte("{"), artifact.TypeFHIRJSON)
	require.Error(t, err)

	// Formats without a structural parse never fail construction.
	fc, err := NewFileContext("logic.cql", []byte("define x: 1"), artifact.TypeLibrary)
	require.NoError(t, err)
	assert.Nil(t, fc.XML())
	assert.Nil(t, fc.JSON())
}

func TestSessionContext_FileFallback(t *testing.T) {
	staged, err := NewFileContext("a.dmn", []byte(`<definitions xmlns="https://www.omg.org/spec/DMN/20191111/MODEL/"><decision id="d1"/></definitions>`), artifact.TypeDecisionTable)
	require.NoError(t, err)

	reader := &fakeReader{
		files: map[string][]byte{
			"b.bpmn": []byte(`<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL"><process id="p"/></definitions>`),
		},
	}
	sc := NewSessionContext(map[string]*FileContext{"a.dmn": staged}, nil, reader)

	t.Run("staged wins", func(t *testing.T) {
		fc, ok, err := sc.File(context.Background(), "a.dmn")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Same(t, staged, fc)
	})

	t.Run("repository fallback", func(t *testing.T) {
		fc, ok, err := sc.File(context.Background(), "b.bpmn")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, artifact.TypeProcess, fc.Type())
	})

	t.Run("absent everywhere", func(t *testing.T) {
		_, ok, err := sc.File(context.Background(), "missing.bpmn")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("pattern union", func(t *testing.T) {
		files, err := sc.Files(context.Background(), "**/*.bpmn")
		require.NoError(t, err)
		assert.Len(t, files, 1)
		assert.Contains(t, files, "b.bpmn")
	})
}

type fakeReader struct {
	files map[string][]byte
}

func (f *fakeReader) ReadFile(_ context.Context, path string) ([]byte, bool, error) {
	data, ok := f.files[path]
	return data, ok, nil
}

func (f *fakeReader) ListFiles(_ context.Context, pattern string) ([]string, error) {
	var out []string
	for p := range f.files {
		if ok, _ := MatchPath(pattern, p); ok {
			out = append(out, p)
		}
	}
	return out, nil
}
