package handle_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexuscore/plexus/handle"
)

// TestRoundTrip is spec.md §8 Scenario 5 verbatim.
func TestRoundTrip(t *testing.T) {
	u := uuid.MustParse("7f9c2b3e-1a2b-4c3d-9e8f-0a1b2c3d4e5f")
	h := handle.New(u, "1.0.0", "chat", "msg-123", "user")

	assert.Equal(t, "7f9c2b3e-1a2b-4c3d-9e8f-0a1b2c3d4e5f@1.0.0::chat:msg-123:user", h.String())

	parsed, err := handle.Parse(h.String())
	require.NoError(t, err)
	assert.True(t, h.Equal(parsed))
}

func TestParseEmptyMetaHasNoTrailingColon(t *testing.T) {
	u := uuid.New()
	h := handle.New(u, "2.1.0", "create_tree")
	s := h.String()
	assert.NotContains(t, s, "create_tree:")

	parsed, err := handle.Parse(s)
	require.NoError(t, err)
	assert.Empty(t, parsed.Meta)
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"not-a-uuid@1.0.0::chat",
		uuid.New().String() + "1.0.0::chat", // missing @
		uuid.New().String() + "@1.0.0:chat", // missing ::
		uuid.New().String() + "@::chat",     // empty version
		uuid.New().String() + "@1.0.0::",    // empty method
	}
	for _, c := range cases {
		_, err := handle.Parse(c)
		assert.Error(t, err, c)
	}
}

func TestEqualIsStructuralAndMetaOrderSignificant(t *testing.T) {
	u := uuid.New()
	a := handle.New(u, "1.0.0", "m", "x", "y")
	b := handle.New(u, "1.0.0", "m", "y", "x")
	assert.False(t, a.Equal(b))

	c := handle.New(u, "1.0.0", "m", "x", "y")
	assert.True(t, a.Equal(c))
}
