package streamitem_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexuscore/plexus/provenance"
	"github.com/plexuscore/plexus/streamitem"
)

func TestDataRoundTrip(t *testing.T) {
	p := provenance.MustNew("health")
	ev := streamitem.Data(p, "health.status", json.RawMessage(`{"status":"healthy"}`))
	si := streamitem.New("abc0123456789def", ev)

	out, err := json.Marshal(si)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"plexus_hash":"abc0123456789def",
		"type":"data",
		"provenance":{"segments":["health"]},
		"content_type":"health.status",
		"data":{"status":"healthy"}
	}`, string(out))

	var round streamitem.StreamItem
	require.NoError(t, json.Unmarshal(out, &round))
	assert.Equal(t, si.PlexusHash, round.PlexusHash)
	assert.Equal(t, streamitem.KindData, round.Event.Kind)
	assert.Equal(t, "health.status", round.Event.ContentType)
}

func TestErrorIsTerminalOnlyWhenNotRecoverable(t *testing.T) {
	p := provenance.MustNew("ns")
	recoverable := streamitem.Error(p, "timed out", true)
	assert.False(t, recoverable.IsTerminal())

	fatal := streamitem.Error(p, "corrupted", false)
	assert.True(t, fatal.IsTerminal())
}

func TestDoneIsTerminal(t *testing.T) {
	p := provenance.MustNew("ns")
	assert.True(t, streamitem.Done(p).IsTerminal())
}

func TestGuidanceRoundTrip(t *testing.T) {
	p := provenance.MustNew("nope")
	ev := streamitem.Guidance(p, streamitem.ActivationNotFound, streamitem.CallPlexusSchema())
	ev.Activation = "nope"
	si := streamitem.New("hash1234567890ab", ev)

	out, err := json.Marshal(si)
	require.NoError(t, err)

	var round streamitem.StreamItem
	require.NoError(t, json.Unmarshal(out, &round))
	assert.Equal(t, streamitem.ActivationNotFound, round.Event.ErrorKind)
	assert.Equal(t, "nope", round.Event.Activation)
	require.NotNil(t, round.Event.Suggestion)
	assert.Equal(t, streamitem.SuggestionCallPlexusSchema, round.Event.Suggestion.Kind)
}
