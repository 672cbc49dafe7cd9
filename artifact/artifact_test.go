package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		path    string
		content string
		want    Type
	}{
		{"input/business-processes/anc-contact.bpmn", "", TypeProcess},
		{"workflows/registration.bpmn2", "", TypeProcess},
		{"input/decision-logic/anc-dt-01.dmn", "", TypeDecisionTable},
		{"sushi-config.json", "{}", TypeSushiConfig},
		{"ig/sushi-config.json", "{}", TypeSushiConfig},
		{"input/resources/plandefinition-anc.json", `{"resourceType":"PlanDefinition"}`, TypeFHIRJSON},
		{"input/fsh/profiles.fsh", "", TypeShorthand},
		{"input/cql/ANCContact.cql", "", TypeLibrary},
		{"README.md", "# hi", TypeUnknown},
		{"diagram.xml", `<definitions xmlns="http://www.omg.org/spec/BPMN/20100524/MODEL"/>`, TypeProcess},
		{"tables.xml", `<definitions xmlns="https://www.omg.org/spec/DMN/20191111/MODEL/"/>`, TypeDecisionTable},
		{"other.xml", `<root/>`, TypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.path, []byte(tt.content)))
		})
	}
}

func TestIsFHIRResource(t *testing.T) {
	assert.True(t, IsFHIRResource([]byte(`{"resourceType":"Patient","id":"p1"}`)))
	assert.True(t, IsFHIRResource([]byte(`{"id":"p1","resourceType":"Patient"}`)))
	assert.False(t, IsFHIRResource([]byte(`{"id":"p1"}`)))
	assert.False(t, IsFHIRResource([]byte(`[1,2,3]`)))
	assert.False(t, IsFHIRResource([]byte(`not json`)))
}

func TestParseXMLPositions(t *testing.T) {
	content := []byte("<definitions>\n  <process id=\"p\">\n    <task id=\"t1\"/>\n  </process>\n</definitions>")
	doc, err := ParseXML(content)
	require.NoError(t, err)

	tasks := doc.FindAll("task")
	require.Len(t, tasks, 1)
	assert.Equal(t, 3, tasks[0].Line)
	assert.Equal(t, 5, tasks[0].Column)
	assert.Equal(t, "t1", tasks[0].Attrs["id"])

	assert.NotNil(t, doc.Find("process/task"))
	assert.Nil(t, doc.Find("process/gateway"))
}

func TestParseXMLMalformed(t *testing.T) {
	_, err := ParseXML([]byte("<a><b></a>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed XML")

	_, err = ParseXML([]byte(""))
	require.Error(t, err)
}

func TestParseJSON(t *testing.T) {
	content := []byte("{\n  \"id\": \"anc\",\n  \"dependencies\": {\n    \"hl7.fhir.uv.cpg\": \"1.0.0\"\n  }\n}")
	doc, err := ParseJSON(content)
	require.NoError(t, err)

	id := doc.Member("id")
	require.NotNil(t, id)
	assert.Equal(t, "anc", id.StringValue())
	assert.Equal(t, 2, id.Line)

	dep := doc.Member("dependencies", "hl7.fhir.uv.cpg")
	require.NotNil(t, dep)
	assert.Equal(t, "1.0.0", dep.StringValue())
	assert.Equal(t, 4, dep.Line)

	assert.Nil(t, doc.Member("dependencies", "absent"))
}

func TestParseJSONMalformed(t *testing.T) {
	_, err := ParseJSON([]byte(`{"a": }`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed JSON")

	_, err = ParseJSON([]byte(`{"a": 1} trailing`))
	require.Error(t, err)
}

func TestLineIndex(t *testing.T) {
	ix := NewLineIndex([]byte("ab\ncd\n\nefg"))
	tests := []struct {
		offset, line, col int
	}{
		{0, 1, 1},
		{1, 1, 2},
		{3, 2, 1},
		{6, 3, 1},
		{7, 4, 1},
		{9, 4, 3},
		{99, 4, 4},
	}
	for _, tt := range tests {
		line, col := ix.Position(tt.offset)
		assert.Equal(t, tt.line, line, "offset %d", tt.offset)
		assert.Equal(t, tt.col, col, "offset %d", tt.offset)
	}
}
