package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ErrorTree maps document field paths to validation messages. Key
// order is the order paths were first recorded, so validating the
// same invalid document twice serializes byte-identically.
type ErrorTree struct {
	order []string
	msgs  map[string][]string
}

// NewErrorTree returns an empty tree.
func NewErrorTree() *ErrorTree {
	return &ErrorTree{msgs: make(map[string][]string)}
}

// Add records a message under the given path.
func (t *ErrorTree) Add(path, message string) {
	if _, seen := t.msgs[path]; !seen {
		t.order = append(t.order, path)
	}
	t.msgs[path] = append(t.msgs[path], message)
}

// Empty reports whether no violations were recorded.
func (t *ErrorTree) Empty() bool {
	return t == nil || len(t.order) == 0
}

// Len returns the number of distinct paths carrying messages.
func (t *ErrorTree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Paths returns the recorded paths in insertion order.
func (t *ErrorTree) Paths() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Messages returns the messages recorded under a path.
func (t *ErrorTree) Messages(path string) []string {
	if t == nil {
		return nil
	}
	return t.msgs[path]
}

// Walk visits every path in insertion order.
func (t *ErrorTree) Walk(fn func(path string, messages []string)) {
	if t == nil {
		return
	}
	for _, path := range t.order {
		fn(path, t.msgs[path])
	}
}

// MarshalJSON emits an object whose keys keep insertion order.
func (t *ErrorTree) MarshalJSON() ([]byte, error) {
	if t == nil || len(t.order) == 0 {
		return []byte("{}"), nil
	}
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, path := range t.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(path)
		if err != nil {
			return nil, fmt.Errorf("marshal error tree key: %w", err)
		}
		val, err := json.Marshal(t.msgs[path])
		if err != nil {
			return nil, fmt.Errorf("marshal error tree messages: %w", err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
