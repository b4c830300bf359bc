package provenance_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexuscore/plexus/provenance"
)

func TestRootAndExtend(t *testing.T) {
	p, err := provenance.Root("health")
	require.NoError(t, err)
	assert.Equal(t, "health", p.Root())
	assert.Equal(t, 1, p.Depth())

	child := p.Extend("tree")
	assert.Equal(t, []string{"health", "tree"}, child.Segments())
	assert.Equal(t, "health.tree", child.String())

	// Extend must not mutate the receiver.
	assert.Equal(t, 1, p.Depth())
}

func TestNewRejectsEmpty(t *testing.T) {
	_, err := provenance.New()
	assert.ErrorIs(t, err, provenance.ErrEmpty)
}

func TestMarshalCanonicalIsObjectForm(t *testing.T) {
	p := provenance.MustNew("ns", "child")
	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"segments":["ns","child"]}`, string(out))
}

func TestUnmarshalAcceptsBothForms(t *testing.T) {
	var a provenance.Provenance
	require.NoError(t, json.Unmarshal([]byte(`"ns.child"`), &a))
	assert.Equal(t, []string{"ns", "child"}, a.Segments())

	var b provenance.Provenance
	require.NoError(t, json.Unmarshal([]byte(`{"segments":["ns","child"]}`), &b))
	assert.Equal(t, []string{"ns", "child"}, b.Segments())
}

func TestUnmarshalRejectsEmpty(t *testing.T) {
	var p provenance.Provenance
	assert.Error(t, json.Unmarshal([]byte(`""`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"segments":[]}`), &p))
}
