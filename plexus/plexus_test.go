package plexus_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexuscore/plexus/activations/arbor"
	"github.com/plexuscore/plexus/activations/echo"
	"github.com/plexuscore/plexus/activations/health"
	"github.com/plexuscore/plexus/handle"
	"github.com/plexuscore/plexus/plexus"
	"github.com/plexuscore/plexus/provenance"
	"github.com/plexuscore/plexus/schema"
	"github.com/plexuscore/plexus/streamitem"
)

func mustProvenance(t *testing.T) provenance.Provenance {
	t.Helper()
	return provenance.MustNew("test")
}

func mustParseHandle(t *testing.T, s string) handle.Handle {
	t.Helper()
	h, err := handle.Parse(s)
	require.NoError(t, err)
	return h
}

func drain(ch <-chan streamitem.StreamItem) []streamitem.StreamItem {
	var out []streamitem.StreamItem
	for si := range ch {
		out = append(out, si)
	}
	return out
}

// Scenario 1: dispatch hit.
func TestDispatchHit(t *testing.T) {
	p, err := plexus.Build(context.Background(), plexus.Options{}, health.New())
	require.NoError(t, err)

	items := drain(p.Call(context.Background(), "health.check", nil))
	require.Len(t, items, 2)

	assert.Equal(t, streamitem.KindData, items[0].Event.Kind)
	assert.Equal(t, "health.status", items[0].Event.ContentType)
	var payload struct {
		Status        string `json:"status"`
		UptimeSeconds int64  `json:"uptime_seconds"`
		Timestamp     string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(items[0].Event.Data, &payload))
	assert.Equal(t, "healthy", payload.Status)
	assert.GreaterOrEqual(t, payload.UptimeSeconds, int64(0))

	assert.Equal(t, streamitem.KindDone, items[1].Event.Kind)
	assert.Equal(t, p.ComputeHash(), items[0].PlexusHash)
	assert.Equal(t, p.ComputeHash(), items[1].PlexusHash)
}

// Scenario 2: unknown namespace.
func TestUnknownNamespace(t *testing.T) {
	p, err := plexus.Build(context.Background(), plexus.Options{}, health.New())
	require.NoError(t, err)

	items := drain(p.Call(context.Background(), "nope.x", nil))
	require.Len(t, items, 3)

	g := items[0].Event
	assert.Equal(t, streamitem.KindGuidance, g.Kind)
	assert.Equal(t, streamitem.ActivationNotFound, g.ErrorKind)
	assert.Equal(t, "nope", g.Activation)
	require.NotNil(t, g.Suggestion)
	assert.Equal(t, streamitem.SuggestionCallPlexusSchema, g.Suggestion.Kind)

	e := items[1].Event
	assert.Equal(t, streamitem.KindError, e.Kind)
	assert.False(t, e.Recoverable)
	assert.Contains(t, e.ErrorMessage, "nope")

	assert.Equal(t, streamitem.KindDone, items[2].Event.Kind)
}

// Scenario 3: unknown method.
func TestUnknownMethod(t *testing.T) {
	p, err := plexus.Build(context.Background(), plexus.Options{}, health.New())
	require.NoError(t, err)

	items := drain(p.Call(context.Background(), "health.x", nil))
	require.Len(t, items, 3)

	g := items[0].Event
	assert.Equal(t, streamitem.KindGuidance, g.Kind)
	assert.Equal(t, streamitem.MethodNotFound, g.ErrorKind)
	assert.Equal(t, "health", g.Activation)
	assert.Equal(t, "x", g.Method)
	assert.Equal(t, []string{"check"}, g.AvailableMethods)
	require.NotNil(t, g.Suggestion)
	assert.Equal(t, streamitem.SuggestionTryMethod, g.Suggestion.Kind)

	assert.Equal(t, streamitem.KindError, items[1].Event.Kind)
	assert.Equal(t, streamitem.KindDone, items[2].Event.Kind)
}

// Invariant 3: provenance's first segment is the dispatched namespace.
func TestProvenanceFirstSegmentIsNamespace(t *testing.T) {
	p, err := plexus.Build(context.Background(), plexus.Options{}, echo.New())
	require.NoError(t, err)

	items := drain(p.Call(context.Background(), "echo.say", []byte(`{"message":"hi"}`)))
	require.NotEmpty(t, items)
	for _, si := range items {
		require.NotEmpty(t, si.Event.Provenance.Segments())
		assert.Equal(t, "echo", si.Event.Provenance.Segments()[0])
	}
}

// Invalid params via echo's required "message" field.
func TestInvalidParamsGuidance(t *testing.T) {
	p, err := plexus.Build(context.Background(), plexus.Options{}, echo.New())
	require.NoError(t, err)

	items := drain(p.Call(context.Background(), "echo.say", []byte(`{}`)))
	require.Len(t, items, 3)

	g := items[0].Event
	assert.Equal(t, streamitem.KindGuidance, g.Kind)
	assert.Equal(t, streamitem.InvalidParams, g.ErrorKind)
	assert.NotNil(t, g.MethodSchema)
}

// Scenario 4: hash stability under reordering of registrations.
func TestHashStableUnderRegistrationReordering(t *testing.T) {
	p1, err := plexus.Build(context.Background(), plexus.Options{}, health.New(), echo.New(), arbor.New())
	require.NoError(t, err)
	p2, err := plexus.Build(context.Background(), plexus.Options{}, arbor.New(), echo.New(), health.New())
	require.NoError(t, err)

	assert.Equal(t, p1.ComputeHash(), p2.ComputeHash())
}

// Invariant 4: duplicate namespace registration fails loudly.
func TestDuplicateNamespaceFails(t *testing.T) {
	_, err := plexus.Build(context.Background(), plexus.Options{}, health.New(), health.New())
	require.ErrorIs(t, err, plexus.ErrNamespaceTaken)
}

// Scenario 6: schema coalgebra — arbor is a hub with one child ("notes").
func TestSchemaCoalgebraHubVsLeaf(t *testing.T) {
	h := health.New()
	a := arbor.New()

	hs := h.PluginSchema()
	assert.False(t, hs.IsHub())
	assert.Empty(t, hs.Children)

	as := a.PluginSchema()
	assert.True(t, as.IsHub())
	require.Len(t, as.Children, 1)
	assert.Equal(t, "notes", as.Children[0].Namespace)
}

// Arbor mints a Handle on add_node, and arbor's Resolve answers that handle
// with the node's payload.
func TestArborHandleMintAndResolve(t *testing.T) {
	ctx := context.Background()
	a := arbor.New()
	p, err := plexus.Build(ctx, plexus.Options{}, a)
	require.NoError(t, err)

	createItems := drain(p.Call(ctx, "arbor.create_tree", []byte(`{"owner_id":"tester"}`)))
	require.Len(t, createItems, 2)
	var created struct {
		TreeID string `json:"tree_id"`
	}
	require.NoError(t, json.Unmarshal(createItems[0].Event.Data, &created))
	require.NotEmpty(t, created.TreeID)

	addParams, err := json.Marshal(map[string]any{"tree_id": created.TreeID, "content": "hello"})
	require.NoError(t, err)
	addItems := drain(p.Call(ctx, "arbor.add_node", addParams))
	require.Len(t, addItems, 2)
	var added struct {
		NodeID string `json:"node_id"`
		Handle string `json:"handle"`
	}
	require.NoError(t, json.Unmarshal(addItems[0].Event.Data, &added))
	require.NotEmpty(t, added.Handle)

	// The node's own handle, passed to arbor's Resolve, yields that node's payload.
	ch, err := a.Resolve(ctx, mustProvenance(t), mustParseHandle(t, added.Handle))
	require.NoError(t, err)
	var gotData bool
	for ev := range ch {
		if ev.Kind == streamitem.KindData {
			gotData = true
			assert.Contains(t, string(ev.Data), added.NodeID)
		}
	}
	assert.True(t, gotData)
}

// oneOfMethodNames extracts the const-pinned "method" discriminator out of
// every variant of a method-enum Schema, the shape EnrichSchema must return
// per spec.md §4.2.
func oneOfMethodNames(t *testing.T, s *schema.Schema) []string {
	t.Helper()
	require.NotNil(t, s)
	names := make([]string, 0, len(s.OneOf))
	for _, variant := range s.OneOf {
		methodProp, ok := variant.Properties["method"]
		require.True(t, ok, "variant missing method property: %+v", variant)
		require.Contains(t, variant.Required, "method")
		names = append(names, methodProp.Const.(string))
	}
	return names
}

// GetActivationSchema must return the enriched method-enum Schema, not the
// PluginSchema topology node — the two are distinct types per spec.md §4.2/§4.3.
func TestGetActivationSchemaReturnsMethodEnum(t *testing.T) {
	ctx := context.Background()
	p, err := plexus.Build(ctx, plexus.Options{}, health.New(), echo.New(), arbor.New())
	require.NoError(t, err)

	s, ok := p.GetActivationSchema("health")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"check"}, oneOfMethodNames(t, s))

	s, ok = p.GetActivationSchema("arbor")
	require.True(t, ok)
	assert.ElementsMatch(t,
		[]string{"create_tree", "add_node", "get_tree", "notes_add", "notes_list"},
		oneOfMethodNames(t, s))

	_, ok = p.GetActivationSchema("no-such-namespace")
	assert.False(t, ok)
}

// GetActivationTopology, unlike GetActivationSchema, still answers with the
// coalgebraic PluginSchema node (hub detection, MCP tool listing).
func TestGetActivationTopologyReturnsPluginSchema(t *testing.T) {
	p, err := plexus.Build(context.Background(), plexus.Options{}, arbor.New())
	require.NoError(t, err)

	ps, ok := p.GetActivationTopology("arbor")
	require.True(t, ok)
	assert.True(t, ps.IsHub())
}

// The plexus_activation_schema reserved method's wire payload is the
// activation's EnrichSchema output (a const-discriminated oneOf), not its
// PluginSchema topology node.
func TestPlexusActivationSchemaReservedMethodWirePayload(t *testing.T) {
	ctx := context.Background()
	p, err := plexus.Build(ctx, plexus.Options{}, health.New())
	require.NoError(t, err)

	items := drain(p.Call(ctx, plexus.MethodPlexusActivationSchema, []byte(`{"namespace":"health"}`)))
	require.Len(t, items, 2)
	require.Equal(t, streamitem.KindData, items[0].Event.Kind)
	assert.Equal(t, "plexus.activation_schema", items[0].Event.ContentType)

	var got schema.Schema
	require.NoError(t, json.Unmarshal(items[0].Event.Data, &got))
	assert.ElementsMatch(t, []string{"check"}, oneOfMethodNames(t, &got))

	// The payload must not merely be the PluginSchema topology node: that
	// type has no oneOf field and carries "methods"/"children" instead.
	var asTopology map[string]any
	require.NoError(t, json.Unmarshal(items[0].Event.Data, &asTopology))
	_, hasChildren := asTopology["children"]
	assert.False(t, hasChildren)
}

// Unknown namespace yields a non-recoverable Error, not a zero-value schema.
func TestPlexusActivationSchemaReservedMethodUnknownNamespace(t *testing.T) {
	ctx := context.Background()
	p, err := plexus.Build(ctx, plexus.Options{}, health.New())
	require.NoError(t, err)

	items := drain(p.Call(ctx, plexus.MethodPlexusActivationSchema, []byte(`"no-such-namespace"`)))
	require.Len(t, items, 1)
	assert.Equal(t, streamitem.KindError, items[0].Event.Kind)
}
