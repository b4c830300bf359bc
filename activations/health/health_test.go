package health_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexuscore/plexus/activations/health"
)

// EnrichSchema must return a const-discriminated oneOf, per spec.md §4.2 —
// not a PluginSchema topology node.
func TestEnrichSchemaDiscriminatesMethods(t *testing.T) {
	h := health.New()
	s := h.EnrichSchema()
	require.NotNil(t, s)
	require.Len(t, s.OneOf, 1)

	variant := s.OneOf[0]
	methodProp, ok := variant.Properties["method"]
	require.True(t, ok)
	assert.Equal(t, "check", methodProp.Const)
	assert.Contains(t, variant.Required, "method")
	assert.Contains(t, variant.Required, "params")
}

func TestEnrichSchemaDistinctFromPluginSchema(t *testing.T) {
	h := health.New()
	assert.False(t, h.PluginSchema().IsHub())
	assert.NotEmpty(t, h.PluginSchema().Methods)
	assert.NotEmpty(t, h.EnrichSchema().OneOf)
}
