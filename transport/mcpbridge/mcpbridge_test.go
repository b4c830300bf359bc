package mcpbridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexuscore/plexus/activation"
	"github.com/plexuscore/plexus/activations/arbor"
	"github.com/plexuscore/plexus/activations/echo"
	"github.com/plexuscore/plexus/activations/health"
	"github.com/plexuscore/plexus/mcpsession"
	"github.com/plexuscore/plexus/plexus"
	"github.com/plexuscore/plexus/provenance"
	"github.com/plexuscore/plexus/schema"
	"github.com/plexuscore/plexus/streamitem"
)

// streamActivation is a single-method test exemplar whose Call emits exactly
// the events handed to it, used to exercise callTool's handling of event
// kinds no registered exemplar activation actually produces (Progress,
// recoverable Error).
type streamActivation struct {
	events []streamitem.Event
}

var _ activation.Activation = streamActivation{}

func (streamActivation) Namespace() string                    { return "stream" }
func (streamActivation) Version() string                      { return "1.0.0" }
func (streamActivation) Description() string                  { return "test exemplar" }
func (streamActivation) Methods() []string                    { return []string{"run"} }
func (streamActivation) MethodHelp(string) (string, bool)      { return "", false }
func (streamActivation) EnrichSchema() *schema.Schema {
	return schema.MethodEnum("stream", []schema.MethodSchema{
		activation.NewMethodSchema("run", "", schema.Object("run params"), nil, true),
	})
}
func (streamActivation) PluginSchema() schema.PluginSchema {
	return schema.NewLeafSchema("stream", "1.0.0", "test exemplar", []schema.MethodSchema{
		activation.NewMethodSchema("run", "", schema.Object("run params"), nil, true),
	})
}

func (s streamActivation) Call(ctx context.Context, self provenance.Provenance, method string, params json.RawMessage) (<-chan streamitem.Event, error) {
	ch := make(chan streamitem.Event, len(s.events))
	for _, e := range s.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func httpPost(baseURL, body string) (string, error) {
	resp, err := http.Post(baseURL, "application/json", strings.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func buildTestPlexus(t *testing.T) *plexus.Plexus {
	t.Helper()
	p, err := plexus.Build(context.Background(), plexus.Options{}, health.New(), echo.New())
	require.NoError(t, err)
	return p
}

func buildTestStore(t *testing.T) *mcpsession.Store {
	t.Helper()
	s, err := mcpsession.Open(context.Background(), t.TempDir()+"/sessions.db", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInitializeAdvertisesResourcesOnlyWithHubActivation(t *testing.T) {
	t.Parallel()

	leafOnly, err := plexus.Build(context.Background(), plexus.Options{}, health.New())
	require.NoError(t, err)
	srv := httptest.NewServer(Router(leafOnly, nil, nil))
	defer srv.Close()

	resp, err := httpPost(srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	require.NoError(t, err)
	require.NotContains(t, resp, `"resources"`)

	withHub, err := plexus.Build(context.Background(), plexus.Options{}, health.New(), arbor.New())
	require.NoError(t, err)
	srv2 := httptest.NewServer(Router(withHub, nil, nil))
	defer srv2.Close()

	resp2, err := httpPost(srv2.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	require.NoError(t, err)
	require.Contains(t, resp2, `"resources"`)
}

func TestToolsListIncludesReservedAndActivationMethods(t *testing.T) {
	t.Parallel()
	p := buildTestPlexus(t)
	srv := httptest.NewServer(Router(p, nil, nil))
	defer srv.Close()

	resp, err := httpPost(srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.NoError(t, err)
	require.Contains(t, resp, "plexus_schema")
	require.Contains(t, resp, "health.check")
	require.Contains(t, resp, "echo.say")
}

func TestToolsCallReturnsDataContent(t *testing.T) {
	t.Parallel()
	p := buildTestPlexus(t)
	srv := httptest.NewServer(Router(p, nil, nil))
	defer srv.Close()

	resp, err := httpPost(srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo.say","arguments":{"message":"hi"}}}`)
	require.NoError(t, err)
	require.Contains(t, resp, "hi")
	require.NotContains(t, resp, `"isError":true`)
}

func TestToolsCallReportsGuidanceAsError(t *testing.T) {
	t.Parallel()
	p := buildTestPlexus(t)
	srv := httptest.NewServer(Router(p, nil, nil))
	defer srv.Close()

	resp, err := httpPost(srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo.nonexistent","arguments":{}}}`)
	require.NoError(t, err)
	require.Contains(t, resp, `"isError":true`)
	require.Contains(t, resp, "guidance")
}

func TestUnknownMethodReturnsJSONRPCError(t *testing.T) {
	t.Parallel()
	p := buildTestPlexus(t)
	srv := httptest.NewServer(Router(p, nil, nil))
	defer srv.Close()

	resp, err := httpPost(srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"bogus"}`)
	require.NoError(t, err)
	require.Contains(t, resp, `"error"`)
}

func floatPtr(f float64) *float64 { return &f }

func TestToolsCallRecoverableErrorDoesNotMarkIsError(t *testing.T) {
	t.Parallel()
	self := provenance.MustNew("stream")
	p, err := plexus.Build(context.Background(), plexus.Options{}, streamActivation{events: []streamitem.Event{
		streamitem.Error(self, "transient hiccup", true),
		streamitem.Done(self),
	}})
	require.NoError(t, err)
	srv := httptest.NewServer(Router(p, nil, nil))
	defer srv.Close()

	resp, err := httpPost(srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"stream.run","arguments":{}}}`)
	require.NoError(t, err)
	require.Contains(t, resp, "transient hiccup")
	require.NotContains(t, resp, `"isError":true`)
}

func TestToolsCallNonRecoverableErrorMarksIsError(t *testing.T) {
	t.Parallel()
	self := provenance.MustNew("stream")
	p, err := plexus.Build(context.Background(), plexus.Options{}, streamActivation{events: []streamitem.Event{
		streamitem.Error(self, "fatal", false),
		streamitem.Done(self),
	}})
	require.NoError(t, err)
	srv := httptest.NewServer(Router(p, nil, nil))
	defer srv.Close()

	resp, err := httpPost(srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"stream.run","arguments":{}}}`)
	require.NoError(t, err)
	require.Contains(t, resp, `"isError":true`)
}

func TestToolsCallBuffersStringDataAsOneJoinedContentEntry(t *testing.T) {
	t.Parallel()
	self := provenance.MustNew("stream")
	mustDataEvent := func(v string) streamitem.Event {
		ev, err := streamitem.DataValue(self, "stream.chunk", v)
		require.NoError(t, err)
		return ev
	}
	p, err := plexus.Build(context.Background(), plexus.Options{}, streamActivation{events: []streamitem.Event{
		mustDataEvent("hello "),
		mustDataEvent("world"),
		streamitem.Done(self),
	}})
	require.NoError(t, err)
	srv := httptest.NewServer(Router(p, nil, nil))
	defer srv.Close()

	resp, err := httpPost(srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"stream.run","arguments":{}}}`)
	require.NoError(t, err)
	require.Contains(t, resp, "hello world")

	var decoded struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp), &decoded))
	require.Len(t, decoded.Result.Content, 1)
	assert.Equal(t, "hello world", decoded.Result.Content[0].Text)
}

func TestToolsCallForwardsProgressNotificationOverSSE(t *testing.T) {
	t.Parallel()
	self := provenance.MustNew("stream")
	p, err := plexus.Build(context.Background(), plexus.Options{}, streamActivation{events: []streamitem.Event{
		streamitem.Progress(self, "halfway", floatPtr(50)),
		streamitem.Done(self),
	}})
	require.NoError(t, err)
	srv := httptest.NewServer(Router(p, nil, nil))
	defer srv.Close()

	sseResp, err := http.Get(srv.URL + "/mcp/sse")
	require.NoError(t, err)
	defer sseResp.Body.Close()

	scanner := bufio.NewScanner(sseResp.Body)
	require.True(t, scanner.Scan())
	require.Contains(t, scanner.Text(), "event: endpoint")
	require.True(t, scanner.Scan())
	sessionID := strings.TrimPrefix(strings.TrimSpace(scanner.Text()), "data: /mcp?sessionId=")
	require.NotEmpty(t, sessionID)

	go func() {
		_, _ = httpPost(srv.URL+"/mcp?sessionId="+sessionID,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"stream.run","arguments":{},"_meta":{"progressToken":"tok-1"}}}`)
	}()

	found := false
	for i := 0; i < 20 && scanner.Scan(); i++ {
		if line := scanner.Text(); strings.Contains(line, "notifications/progress") {
			require.Contains(t, line, "tok-1")
			found = true
			break
		}
	}
	assert.True(t, found, "expected a notifications/progress SSE event")
}

func TestHandlePostPersistsSessionTouch(t *testing.T) {
	t.Parallel()
	p := buildTestPlexus(t)
	store := buildTestStore(t)
	require.NoError(t, store.CreateSession(context.Background(), "sess-live"))

	srv := httptest.NewServer(Router(p, store, nil))
	defer srv.Close()

	resp, err := httpPost(srv.URL+"/mcp?sessionId=sess-live", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.NoError(t, err)
	require.Contains(t, resp, "echo.say")

	ok, err := store.HasSession(context.Background(), "sess-live")
	require.NoError(t, err)
	require.True(t, ok)
}
