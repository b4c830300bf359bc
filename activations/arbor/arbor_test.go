package arbor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexuscore/plexus/activations/arbor"
)

// EnrichSchema must enumerate every dispatchable method (including the
// notes_* pair also surfaced under the nested "notes" child PluginSchema)
// as a const-discriminated oneOf variant, per spec.md §4.2.
func TestEnrichSchemaDiscriminatesMethods(t *testing.T) {
	a := arbor.New()
	s := a.EnrichSchema()
	require.NotNil(t, s)
	require.Len(t, s.OneOf, 5)

	names := make(map[string]bool, len(s.OneOf))
	for _, variant := range s.OneOf {
		methodProp, ok := variant.Properties["method"]
		require.True(t, ok)
		name, ok := methodProp.Const.(string)
		require.True(t, ok)
		names[name] = true
		assert.Contains(t, variant.Required, "method")
	}
	assert.True(t, names["create_tree"])
	assert.True(t, names["add_node"])
	assert.True(t, names["get_tree"])
	assert.True(t, names["notes_add"])
	assert.True(t, names["notes_list"])
}

// EnrichSchema answers the tagged-union method enum; PluginSchema answers
// the separate hub/children topology coalgebra. The two must not collapse
// into each other.
func TestEnrichSchemaDistinctFromPluginSchemaTopology(t *testing.T) {
	a := arbor.New()
	ps := a.PluginSchema()
	require.True(t, ps.IsHub())
	require.Len(t, ps.Children, 1)

	es := a.EnrichSchema()
	require.NotEmpty(t, es.OneOf)
	assert.Empty(t, es.Properties["children"])
}
