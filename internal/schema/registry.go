package schema

import "strings"

// Kind identifies an external document shape.
type Kind string

const (
	// KindEntry is the entry-level metadata document, including its
	// nested media member blocks.
	KindEntry Kind = "entry"
	// KindAsset is the standalone per-asset document used when a
	// single media object is resubmitted on its own.
	KindAsset Kind = "asset"
)

// Constraint is a pure predicate over a field value paired with the
// message recorded when it fails.
type Constraint struct {
	Message string
	Check   func(value interface{}) bool
}

// Field declares one path within an external document kind. Paths use
// dot notation; segments crossing a list value are validated
// element-wise with the element index appended.
type Field struct {
	Path        string
	Required    bool
	Missing     string
	Constraints []Constraint
}

// Registry holds the static field declarations per document kind.
// Declaration order is significant: it fixes error tree key order.
type Registry struct {
	kinds map[Kind][]Field
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[Kind][]Field)}
}

// Register appends field declarations for a kind.
func (r *Registry) Register(kind Kind, fields ...Field) {
	r.kinds[kind] = append(r.kinds[kind], fields...)
}

// RequiredPaths returns the required paths of a kind in declaration order.
func (r *Registry) RequiredPaths(kind Kind) []string {
	var out []string
	for _, f := range r.kinds[kind] {
		if f.Required {
			out = append(out, f.Path)
		}
	}
	return out
}

// ConstraintsFor returns the constraints declared for a path.
func (r *Registry) ConstraintsFor(kind Kind, path string) []Constraint {
	for _, f := range r.kinds[kind] {
		if f.Path == path {
			return f.Constraints
		}
	}
	return nil
}

// Variant builds a validatable schema for a kind, extended with
// per-entry conditional fields. The static declarations keep their
// order; extras append after them.
func (r *Registry) Variant(kind Kind, extra ...Field) Schema {
	fields := make([]Field, 0, len(r.kinds[kind])+len(extra))
	fields = append(fields, r.kinds[kind]...)
	fields = append(fields, extra...)
	return Schema{kind: kind, fields: fields}
}

// Schema is a fixed, ordered set of field rules ready for validation.
type Schema struct {
	kind   Kind
	fields []Field
}

// Kind returns the document kind the schema was built for.
func (s Schema) Kind() Kind {
	return s.kind
}

// Fields returns the declarations in order.
func (s Schema) Fields() []Field {
	return s.fields
}

// NonEmptyString requires a non-blank string value.
func NonEmptyString(message string) Constraint {
	return Constraint{
		Message: message,
		Check: func(value interface{}) bool {
			s, ok := value.(string)
			return ok && strings.TrimSpace(s) != ""
		},
	}
}

// MimeType requires a type/subtype media type pair.
func MimeType(message string) Constraint {
	return Constraint{
		Message: message,
		Check: func(value interface{}) bool {
			s, ok := value.(string)
			if !ok {
				return false
			}
			parts := strings.SplitN(s, "/", 2)
			return len(parts) == 2 && parts[0] != "" && parts[1] != ""
		},
	}
}

// OneOf requires the value to match one of the allowed strings.
func OneOf(message string, allowed ...string) Constraint {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return Constraint{
		Message: message,
		Check: func(value interface{}) bool {
			s, ok := value.(string)
			if !ok {
				return false
			}
			_, found := set[s]
			return found
		},
	}
}
