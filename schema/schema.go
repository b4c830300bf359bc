// Package schema implements the JSON-Schema-draft-07-shaped Schema type, the
// MethodSchema record, and the PluginSchema coalgebra described in
// spec.md §3/§4.3, plus the deterministic digests used for cache
// invalidation.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Schema is a JSON-Schema-draft-07-shaped node. It is used both for
// top-level method parameter/return schemas and, recursively, for object
// properties and array items.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Format      string             `json:"format,omitempty"`
	Const       any                `json:"const,omitempty"`
	Enum        []any              `json:"enum,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	OneOf       []*Schema          `json:"oneOf,omitempty"`
}

// Object starts a new object-typed schema.
func Object(description string) *Schema {
	return &Schema{Type: "object", Description: description, Properties: map[string]*Schema{}}
}

// String returns a string-typed property schema.
func String(description string) *Schema {
	return &Schema{Type: "string", Description: description}
}

// UUID returns a string-typed property schema carrying the "uuid" format
// refinement spec.md §3 requires for every UUID field.
func UUID(description string) *Schema {
	return &Schema{Type: "string", Format: "uuid", Description: description}
}

// Integer returns an integer-typed property schema.
func Integer(description string) *Schema {
	return &Schema{Type: "integer", Description: description}
}

// Number returns a number-typed property schema.
func Number(description string) *Schema {
	return &Schema{Type: "number", Description: description}
}

// Boolean returns a boolean-typed property schema.
func Boolean(description string) *Schema {
	return &Schema{Type: "boolean", Description: description}
}

// Array returns an array-typed schema whose elements conform to items.
func Array(description string, items *Schema) *Schema {
	return &Schema{Type: "array", Description: description, Items: items}
}

// Enum returns a string-typed property schema restricted to values through
// an "enum" list. For a schema describing a single fixed value use Const
// instead.
func Enum(description string, values ...string) *Schema {
	anys := make([]any, len(values))
	for i, v := range values {
		anys[i] = v
	}
	return &Schema{Type: "string", Description: description, Enum: anys}
}

// Const returns a schema pinned to a single constant value, the refinement
// spec.md §3 requires for every enum-variant discriminator field.
func Const(value any) *Schema {
	return &Schema{Const: value}
}

// WithProperty adds a named property to an object schema and returns the
// receiver for chaining.
func (s *Schema) WithProperty(name string, prop *Schema) *Schema {
	if s.Properties == nil {
		s.Properties = map[string]*Schema{}
	}
	s.Properties[name] = prop
	return s
}

// WithRequired marks the named properties as required, per spec.md §3
// ("every required field appears in the enclosing object's required list").
func (s *Schema) WithRequired(names ...string) *Schema {
	s.Required = append(s.Required, names...)
	return s
}

// WithMethodConst implements the single manual post-processing step
// described in spec.md §4.2/§9: it locates the schema's "method" property
// (as produced by automatic derivation, typically a free string) and
// replaces it with a const discriminator pinned to method. It is a total,
// local rewrite and is idempotent.
func WithMethodConst(s *Schema, method string) *Schema {
	if s == nil || s.Properties == nil {
		return s
	}
	if _, ok := s.Properties["method"]; ok {
		s.Properties["method"] = Const(method)
		s.Required = ensureRequired(s.Required, "method")
	}
	return s
}

func ensureRequired(required []string, name string) []string {
	for _, r := range required {
		if r == name {
			return required
		}
	}
	return append(required, name)
}

// Canonical returns a deterministic JSON encoding of s (object keys sorted,
// via encoding/json's native map-key sort), suitable for hashing.
func (s *Schema) Canonical() string {
	if s == nil {
		return "null"
	}
	b, err := json.Marshal(s)
	if err != nil {
		// Schema is always marshalable; this would indicate a cycle, which
		// would itself be a malformed activation per spec.md §4.2.
		panic(fmt.Sprintf("schema: unmarshalable schema: %v", err))
	}
	return string(b)
}

// DigestString returns the 16-hex-char deterministic digest spec.md §4.3
// mandates for PluginSchema.hash (and, by extension, the plexus-level hash
// of spec.md §4.1, which composes digests the same way).
func DigestString(s string) string {
	h := xxhash.Sum64String(s)
	return fmt.Sprintf("%016x", h)
}

// MethodSchema is the per-method discovery record of spec.md §3: name,
// description, optional params/returns schemas, a streaming flag, and a
// deterministic hash of its own surface.
type MethodSchema struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      *Schema `json:"params,omitempty"`
	Returns     *Schema `json:"returns,omitempty"`
	Streaming   bool    `json:"streaming"`
	Hash        string  `json:"hash"`
}

// NewMethodSchema builds a MethodSchema and computes its hash from name,
// description and the canonical form of params/returns.
func NewMethodSchema(name, description string, params, returns *Schema, streaming bool) MethodSchema {
	ms := MethodSchema{
		Name:        name,
		Description: description,
		Params:      params,
		Returns:     returns,
		Streaming:   streaming,
	}
	digestInput := strings.Join([]string{
		name, description,
		fmt.Sprintf("%t", streaming),
		paramsCanon(params),
		paramsCanon(returns),
	}, "\x1f")
	ms.Hash = DigestString(digestInput)
	return ms
}

func paramsCanon(s *Schema) string {
	if s == nil {
		return ""
	}
	return s.Canonical()
}

// MethodEnum assembles the tagged-union discovery schema spec.md §4.2/§9
// describes as "the only manual step required for wire-stable discovery":
// one {method: const, params: <that method's params schema>} envelope per
// method, combined with oneOf. This is what Activation.EnrichSchema returns.
func MethodEnum(description string, methods []MethodSchema) *Schema {
	variants := make([]*Schema, len(methods))
	for i, m := range methods {
		params := m.Params
		if params == nil {
			params = Object("no parameters")
		}
		variant := Object(m.Description).
			WithProperty("method", String("method name")).
			WithProperty("params", params).
			WithRequired("method", "params")
		WithMethodConst(variant, m.Name)
		variants[i] = variant
	}
	return &Schema{Type: "object", Description: description, OneOf: variants}
}

// PluginSchema is the recursive coalgebraic record of spec.md §4.3: a leaf
// activation's declared surface, or (when Children is non-empty) a hub
// composing sub-activation schemas.
type PluginSchema struct {
	Namespace   string         `json:"namespace"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Methods     []MethodSchema `json:"methods"`
	Hash        string         `json:"hash"`
	Children    []PluginSchema `json:"children,omitempty"`
}

// IsHub reports whether ps is a hub node, defined per spec.md §8 invariant 7
// as children.is_some() with a non-empty children list.
func (ps PluginSchema) IsHub() bool {
	return len(ps.Children) > 0
}

// NewLeafSchema builds a leaf PluginSchema (no children) and computes its
// local hash over sorted method digests, per spec.md §4.3.
func NewLeafSchema(namespace, version, description string, methods []MethodSchema) PluginSchema {
	return PluginSchema{
		Namespace:   namespace,
		Version:     version,
		Description: description,
		Methods:     methods,
		Hash:        localMethodsDigest(methods),
	}
}

// NewHubSchema builds a hub PluginSchema whose hash composes its own local
// methods digest with the sorted digests of its children, per spec.md §4.3
// ("A hub's hash composes the digests of its children").
func NewHubSchema(namespace, version, description string, methods []MethodSchema, children []PluginSchema) PluginSchema {
	local := localMethodsDigest(methods)
	childDigests := make([]string, len(children))
	for i, c := range children {
		childDigests[i] = c.Hash
	}
	sort.Strings(childDigests)
	combined := local + "\x1e" + strings.Join(childDigests, "\x1e")
	return PluginSchema{
		Namespace:   namespace,
		Version:     version,
		Description: description,
		Methods:     methods,
		Hash:        DigestString(combined),
		Children:    children,
	}
}

// localMethodsDigest computes the local (non-hub) digest mandated by
// spec.md §4.3: "computed locally over method names, descriptions, and
// parameter-schema hashes, sorted."
func localMethodsDigest(methods []MethodSchema) string {
	parts := make([]string, len(methods))
	for i, m := range methods {
		parts[i] = strings.Join([]string{m.Name, m.Description, m.Hash}, "\x1f")
	}
	sort.Strings(parts)
	return DigestString(strings.Join(parts, "\x1e"))
}
