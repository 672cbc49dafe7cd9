package artifact

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// XMLElement is one element of a parsed XML artifact, with the source
// position of its start tag.
type XMLElement struct {
	Name     string // local name
	Space    string // namespace URI
	Attrs    map[string]string
	Text     string
	Children []*XMLElement
	Line     int
	Column   int
}

// XMLDocument is the structural parse of a BPMN or DMN artifact.
type XMLDocument struct {
	Root  *XMLElement
	index *LineIndex
}

// ParseXML parses content into an element tree. Malformed XML returns an
// error carrying the position of the failure.
func ParseXML(content []byte) (*XMLDocument, error) {
	index := NewLineIndex(content)
	dec := xml.NewDecoder(bytes.NewReader(content))

	var root *XMLElement
	var stack []*XMLElement
	for {
		offset := int(dec.InputOffset())
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, col := index.Position(offset)
			return nil, fmt.Errorf("malformed XML at line %d, column %d: %w", line, col, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			line, col := index.Position(skipSpace(content, offset))
			el := &XMLElement{
				Name:   t.Name.Local,
				Space:  t.Name.Space,
				Attrs:  make(map[string]string, len(t.Attr)),
				Line:   line,
				Column: col,
			}
			for _, a := range t.Attr {
				el.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("malformed XML: multiple root elements")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("malformed XML: unexpected end element </%s>", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("malformed XML: no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("malformed XML: unclosed element <%s>", stack[len(stack)-1].Name)
	}
	return &XMLDocument{Root: root, index: index}, nil
}

// FindAll returns every element with the given local name, in document order.
func (d *XMLDocument) FindAll(name string) []*XMLElement {
	var out []*XMLElement
	walkXML(d.Root, func(el *XMLElement) {
		if el.Name == name {
			out = append(out, el)
		}
	})
	return out
}

// Find returns the first element matching a slash-separated local-name path
// relative to the root (e.g. "process/businessRuleTask"), or nil.
func (d *XMLDocument) Find(path string) *XMLElement {
	parts := strings.Split(path, "/")
	current := []*XMLElement{d.Root}
	for _, part := range parts {
		var next []*XMLElement
		for _, el := range current {
			for _, child := range el.Children {
				if child.Name == part {
					next = append(next, child)
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current[0]
}

func walkXML(el *XMLElement, fn func(*XMLElement)) {
	if el == nil {
		return
	}
	fn(el)
	for _, child := range el.Children {
		walkXML(child, fn)
	}
}
