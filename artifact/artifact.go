// Package artifact classifies healthcare-guideline repository files by
// format so validation rules can declare what they apply to. Detection is
// path-pattern first, content signature second.
package artifact

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Type tags an artifact format.
type Type string

const (
	// TypeProcess is a BPMN process diagram.
	TypeProcess Type = "process"
	// TypeDecisionTable is a DMN decision table.
	TypeDecisionTable Type = "decision-table"
	// TypeFHIRJSON is a FHIR resource in JSON form.
	TypeFHIRJSON Type = "fhir-json"
	// TypeSushiConfig is the IG project configuration (sushi-config.json).
	TypeSushiConfig Type = "sushi-config"
	// TypeShorthand is a FHIR Shorthand (.fsh) source file.
	TypeShorthand Type = "shorthand"
	// TypeLibrary is a CQL logic library.
	TypeLibrary Type = "library"
	// TypeUnknown is anything the engine has no rules for.
	TypeUnknown Type = "unknown"
)

// pathPatterns maps doublestar patterns to artifact types, checked in order.
// sushi-config must precede the generic JSON pattern.
var pathPatterns = []struct {
	pattern string
	typ     Type
}{
	{"**/sushi-config.json", TypeSushiConfig},
	{"**/*.bpmn", TypeProcess},
	{"**/*.bpmn2", TypeProcess},
	{"**/*.dmn", TypeDecisionTable},
	{"**/*.fsh", TypeShorthand},
	{"**/*.cql", TypeLibrary},
	{"**/*.json", TypeFHIRJSON},
}

// Detect determines the artifact type for a repository path. Path patterns
// win; for extensions shared across formats (.xml) the content signature
// decides. Unknown types are valid — they simply have no applicable rules.
func Detect(path string, content []byte) Type {
	normalized := filepath.ToSlash(path)
	for _, pp := range pathPatterns {
		if ok, err := doublestar.Match(pp.pattern, normalized); err == nil && ok {
			return pp.typ
		}
	}
	if strings.EqualFold(filepath.Ext(normalized), ".xml") {
		return detectXML(content)
	}
	return TypeUnknown
}

// detectXML sniffs the root element of an XML document to distinguish BPMN
// from DMN when the file carries a bare .xml extension.
func detectXML(content []byte) Type {
	dec := xml.NewDecoder(bytes.NewReader(content))
	for {
		tok, err := dec.Token()
		if err != nil {
			return TypeUnknown
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch {
		case strings.Contains(start.Name.Space, "BPMN"), strings.Contains(start.Name.Space, "bpmn"):
			return TypeProcess
		case strings.Contains(start.Name.Space, "DMN"), strings.Contains(start.Name.Space, "dmn"):
			return TypeDecisionTable
		}
		return TypeUnknown
	}
}

// IsFHIRResource reports whether JSON content carries a resourceType field,
// the FHIR signature. Used to separate FHIR resources from plain JSON.
func IsFHIRResource(content []byte) bool {
	dec := json.NewDecoder(bytes.NewReader(content))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return false
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return false
		}
		key, ok := keyTok.(string)
		if !ok {
			return false
		}
		if key == "resourceType" {
			return true
		}
		if err := skipValue(dec); err != nil {
			return false
		}
	}
	return false
}

// skipValue consumes one JSON value from the decoder.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	if delim == '{' || delim == '[' {
		depth := 1
		for depth > 0 {
			tok, err := dec.Token()
			if err != nil {
				if err == io.EOF {
					return io.ErrUnexpectedEOF
				}
				return err
			}
			switch tok {
			case json.Delim('{'), json.Delim('['):
				depth++
			case json.Delim('}'), json.Delim(']'):
				depth--
			}
		}
	}
	return nil
}
