package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONKind distinguishes node shapes in a parsed JSON artifact.
type JSONKind int

const (
	JSONObject JSONKind = iota
	JSONArray
	JSONString
	JSONNumber
	JSONBool
	JSONNull
)

// JSONNode is one value of a parsed JSON artifact, with its source position.
// Object member order is preserved in Keys for deterministic iteration.
type JSONNode struct {
	Kind    JSONKind
	Value   string // scalar value as written (unquoted for strings)
	Keys    []string
	Members map[string]*JSONNode
	Items   []*JSONNode
	Line    int
	Column  int
}

// JSONDocument is the structural parse of a JSON artifact.
type JSONDocument struct {
	Root  *JSONNode
	index *LineIndex
}

// ParseJSON parses content into a position-annotated node tree. Malformed
// JSON returns an error carrying the position of the failure.
func ParseJSON(content []byte) (*JSONDocument, error) {
	index := NewLineIndex(content)
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	root, err := parseJSONValue(dec, content, index)
	if err != nil {
		line, col := index.Position(int(dec.InputOffset()))
		return nil, fmt.Errorf("malformed JSON at line %d, column %d: %w", line, col, err)
	}
	// Trailing garbage after the top-level value is malformed content.
	if dec.More() {
		line, col := index.Position(int(dec.InputOffset()))
		return nil, fmt.Errorf("malformed JSON at line %d, column %d: trailing content", line, col)
	}
	return &JSONDocument{Root: root, index: index}, nil
}

func parseJSONValue(dec *json.Decoder, content []byte, index *LineIndex) (*JSONNode, error) {
	// The decoder's offset may rest on the ':' or ',' separating this value
	// from the preceding token; step past separators to the value itself.
	offset := skipSpace(content, int(dec.InputOffset()))
	for offset < len(content) && (content[offset] == ':' || content[offset] == ',') {
		offset = skipSpace(content, offset+1)
	}
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	line, col := index.Position(offset)
	node := &JSONNode{Line: line, Column: col}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			node.Kind = JSONObject
			node.Members = make(map[string]*JSONNode)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				val, err := parseJSONValue(dec, content, index)
				if err != nil {
					return nil, err
				}
				if _, dup := node.Members[key]; !dup {
					node.Keys = append(node.Keys, key)
				}
				node.Members[key] = val
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
		case '[':
			node.Kind = JSONArray
			for dec.More() {
				item, err := parseJSONValue(dec, content, index)
				if err != nil {
					return nil, err
				}
				node.Items = append(node.Items, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case string:
		node.Kind = JSONString
		node.Value = t
	case json.Number:
		node.Kind = JSONNumber
		node.Value = t.String()
	case bool:
		node.Kind = JSONBool
		if t {
			node.Value = "true"
		} else {
			node.Value = "false"
		}
	case nil:
		node.Kind = JSONNull
		node.Value = "null"
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
	return node, nil
}

// Member resolves a dotted member path from the root object (e.g.
// "dependencies.smart.base"). Returns nil when any segment is absent.
func (d *JSONDocument) Member(path ...string) *JSONNode {
	node := d.Root
	for _, segment := range path {
		if node == nil || node.Kind != JSONObject {
			return nil
		}
		node = node.Members[segment]
	}
	return node
}

// StringValue returns the node's string value, or "" for non-strings.
func (n *JSONNode) StringValue() string {
	if n == nil || n.Kind != JSONString {
		return ""
	}
	return n.Value
}
