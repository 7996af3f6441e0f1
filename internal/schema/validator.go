package schema

import (
	"fmt"
	"strings"
)

// Document is the translated, schema-shaped external representation.
// Built fresh per operation and never persisted.
type Document map[string]interface{}

// leaf pairs a resolved value with its concrete, index-expanded path.
type leaf struct {
	path  string
	value interface{}
}

// Validate walks the document against every field rule in declaration
// order and collects all violations; nothing short-circuits. Required
// paths that are absent or empty record the field's missing message;
// present values run their constraints, list values element-wise.
func (s Schema) Validate(doc Document) *ErrorTree {
	tree := NewErrorTree()
	for _, f := range s.fields {
		leaves := resolve(map[string]interface{}(doc), "", strings.Split(f.Path, "."))
		if !anyPresent(leaves) {
			if f.Required {
				tree.Add(f.Path, f.Missing)
			}
			continue
		}
		for _, l := range leaves {
			if isEmpty(l.value) {
				if f.Required {
					tree.Add(l.path, f.Missing)
				}
				continue
			}
			for _, c := range f.Constraints {
				if !c.Check(l.value) {
					tree.Add(l.path, c.Message)
				}
			}
		}
	}
	return tree
}

// resolve walks the remaining path segments depth-first, expanding
// list values into per-element leaves with the index appended.
func resolve(node interface{}, base string, segments []string) []leaf {
	if list, ok := node.([]interface{}); ok {
		var leaves []leaf
		for i, elem := range list {
			leaves = append(leaves, resolve(elem, fmt.Sprintf("%s[%d]", base, i), segments)...)
		}
		return leaves
	}
	if len(segments) == 0 {
		return []leaf{{path: base, value: node}}
	}
	childBase := segments[0]
	if base != "" {
		childBase = base + "." + segments[0]
	}
	m, ok := node.(map[string]interface{})
	if !ok {
		return []leaf{{path: missingPath(childBase, segments[1:]), value: nil}}
	}
	child, found := m[segments[0]]
	if !found {
		// Absent keys still yield a nil leaf so required checks can
		// flag the exact element that lacks the field.
		return []leaf{{path: missingPath(childBase, segments[1:]), value: nil}}
	}
	return resolve(child, childBase, segments[1:])
}

func missingPath(base string, rest []string) string {
	if len(rest) == 0 {
		return base
	}
	return base + "." + strings.Join(rest, ".")
}

func anyPresent(leaves []leaf) bool {
	for _, l := range leaves {
		if !isEmpty(l.value) {
			return true
		}
	}
	return false
}

func isEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	default:
		return false
	}
}
