package plexus

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/plexuscore/plexus/schema"
)

// paramValidator validates a method's raw JSON params against its compiled
// parameter schema, per spec.md §4.2's "required refinements" and §4.1 step
// 5 (InvalidParams on validation failure).
type paramValidator struct {
	compiled *jsonschema.Schema
}

// compileParamSchema compiles s with santhosh-tekuri/jsonschema/v6 (the
// teacher's own dependency), once, at Plexus construction time.
func compileParamSchema(s *schema.Schema) (paramValidator, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return paramValidator{}, fmt.Errorf("marshal schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return paramValidator{}, fmt.Errorf("decode schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	const resourceURL = "mem://plexus/params.json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return paramValidator{}, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return paramValidator{}, fmt.Errorf("compile schema: %w", err)
	}
	return paramValidator{compiled: compiled}, nil
}

// Validate reports an error if raw does not conform to the compiled schema.
// Empty/absent params and a JSON null are treated as an empty object, per
// spec.md's implicit assumption that a method with no declared params
// accepts none.
func (v paramValidator) Validate(raw []byte) error {
	if v.compiled == nil {
		return nil
	}
	if t := bytes.TrimSpace(raw); len(t) == 0 || bytes.Equal(t, []byte("null")) {
		raw = []byte("{}")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("params is not valid JSON: %w", err)
	}
	return v.compiled.Validate(doc)
}
