package echo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexuscore/plexus/activations/echo"
)

// EnrichSchema must return a const-discriminated oneOf, per spec.md §4.2 —
// not a PluginSchema topology node.
func TestEnrichSchemaDiscriminatesMethods(t *testing.T) {
	e := echo.New()
	s := e.EnrichSchema()
	require.NotNil(t, s)
	require.Len(t, s.OneOf, 1)

	variant := s.OneOf[0]
	methodProp, ok := variant.Properties["method"]
	require.True(t, ok)
	assert.Equal(t, "say", methodProp.Const)
	assert.Contains(t, variant.Required, "method")

	params, ok := variant.Properties["params"]
	require.True(t, ok)
	assert.Contains(t, params.Properties, "message")
}
