package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plexuscore/plexus/schema"
)

func TestFlattenToolsOneLevelOnly(t *testing.T) {
	t.Parallel()

	checkMethod := schema.NewMethodSchema("check", "check health",
		nil, schema.Object("status"), false)
	sayMethod := schema.NewMethodSchema("say", "echo a message",
		schema.Object("params").WithProperty("message", schema.String("text to echo")).WithRequired("message"),
		schema.Object("reply"), false)
	nestedMethod := schema.NewMethodSchema("get", "get a note",
		nil, schema.Object("note"), false)

	notes := schema.NewLeafSchema("notes", "1.0.0", "nested child", []schema.MethodSchema{nestedMethod})
	root := schema.NewHubSchema("plexus", "1.0.0", "root", nil, []schema.PluginSchema{
		schema.NewLeafSchema("health", "1.0.0", "health checks", []schema.MethodSchema{checkMethod}),
		schema.NewHubSchema("arbor", "1.0.0", "tree store", []schema.MethodSchema{sayMethod}, []schema.PluginSchema{notes}),
	})

	tools := flattenTools(root)

	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	require.Equal(t, []string{"arbor.say", "health.check"}, names)

	for _, tool := range tools {
		require.NotNil(t, tool.InputSchema)
		require.Equal(t, "object", tool.InputSchema.Type)
	}
}

func TestSchemaCacheToolsReturnsDefensiveCopy(t *testing.T) {
	t.Parallel()
	c := &SchemaCache{tools: []Tool{{Name: "health.check"}}}

	got := c.Tools()
	got[0].Name = "mutated"

	require.Equal(t, "health.check", c.Tools()[0].Name)
}
