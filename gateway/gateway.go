package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/plexuscore/plexus/streamitem"
	"github.com/plexuscore/plexus/telemetry"
	"github.com/plexuscore/plexus/transport/jsonrpc"
)

const protocolVersion = "2024-11-05"

// Gateway is the MCP gateway companion process of SPEC_FULL.md §4.5: it
// proxies an MCP HTTP surface to a plexus reached over a reconnecting
// WebSocket client, serving tools/list and tools/call from a schema cache
// that survives the plexus being temporarily unreachable.
type Gateway struct {
	client   *Client
	cache    *SchemaCache
	backend  *BackendState
	notifier Notifier
	logger   telemetry.Logger
}

// New constructs a Gateway. notifier defaults to an in-process Notifier
// (the single-replica case) if nil.
func New(client *Client, notifier Notifier, logger telemetry.Logger) *Gateway {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if notifier == nil {
		notifier = NewInProcessNotifier()
	}
	return &Gateway{
		client:   client,
		cache:    &SchemaCache{},
		backend:  NewBackendState(),
		notifier: notifier,
		logger:   logger,
	}
}

// Run maintains the connection to the plexus until ctx is done: it connects
// (retrying with backoff via Client.ensureConnected, invoked by the first
// Call), refreshes the schema cache on every successful connect, and polls
// the connection's liveness so a dropped connection is detected and
// republished as a gateway_status transition even between MCP requests.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.connectAndRefresh(ctx); err != nil {
		g.logger.Warn(ctx, "gateway: initial connect failed, will retry on first request",
			"component", "gateway", "err", err)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.backend.MarkDown()
			return ctx.Err()
		case <-ticker.C:
			if g.client.Connected() {
				continue
			}
			if changed := g.backend.MarkReconnecting(); changed {
				g.publishStatus(ctx)
			}
			if err := g.connectAndRefresh(ctx); err != nil {
				g.logger.Warn(ctx, "gateway: reconnect failed", "component", "gateway", "err", err)
			}
		}
	}
}

func (g *Gateway) connectAndRefresh(ctx context.Context) error {
	if err := g.client.Connect(ctx); err != nil {
		return err
	}
	if changed := g.backend.MarkConnected(time.Now()); changed {
		g.publishStatus(ctx)
	}
	return g.cache.Refresh(ctx, g.client)
}

func (g *Gateway) publishStatus(ctx context.Context) {
	payload, err := json.Marshal(g.backend.Snapshot())
	if err != nil {
		return
	}
	if err := g.notifier.Publish(ctx, "gateway_status", payload); err != nil {
		g.logger.Warn(ctx, "gateway: failed to publish status", "component", "gateway", "err", err)
	}
}

// ServeHTTP implements the same initialize/tools/list/tools/call/
// notifications/* surface as transport/mcpbridge, but answers tools/list
// from the cache and tools/call by round-tripping through the reconnecting
// Client rather than an in-process Plexus.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, jsonrpc.NewError(nil, jsonrpc.CodeParseError, err.Error()))
		return
	}

	switch req.Method {
	case "initialize":
		writeJSON(w, jsonrpc.NewResult(req.ID, g.initializeResult()))
	case "tools/list":
		writeJSON(w, jsonrpc.NewResult(req.ID, toolsListResult{Tools: g.cache.Tools()}))
	case "tools/call":
		writeJSON(w, g.callTool(r.Context(), req))
	case "notifications/initialized", "notifications/cancelled":
		w.WriteHeader(http.StatusAccepted)
	default:
		writeJSON(w, jsonrpc.NewError(req.ID, jsonrpc.CodeMethodNotFound, "unknown MCP method: "+req.Method))
	}
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type capabilities struct {
	Tools   map[string]any `json:"tools"`
	Logging map[string]any `json:"logging"`
}

type initializeResultPayload struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ServerInfo      serverInfo   `json:"serverInfo"`
}

func (g *Gateway) initializeResult() initializeResultPayload {
	return initializeResultPayload{
		ProtocolVersion: protocolVersion,
		Capabilities:    capabilities{Tools: map[string]any{}, Logging: map[string]any{}},
		ServerInfo:      serverInfo{Name: "plexus-gateway", Version: "1.0.0"},
	}
}

type toolsListResult struct {
	Tools []Tool `json:"tools"`
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callToolResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

func (g *Gateway) callTool(ctx context.Context, req jsonrpc.Request) jsonrpc.Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInvalidParams, "malformed tools/call params: "+err.Error())
	}

	items, err := g.client.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		return jsonrpc.NewResult(req.ID, callToolResult{
			IsError: true,
			Content: []toolContent{{Type: "text", Text: err.Error()}},
		})
	}

	var result callToolResult
	for _, item := range items {
		switch item.Event.Kind {
		case streamitem.KindData:
			result.Content = append(result.Content, toolContent{Type: "text", Text: string(item.Event.Data)})
		case streamitem.KindError:
			result.IsError = true
			result.Content = append(result.Content, toolContent{Type: "text", Text: item.Event.ErrorMessage})
		case streamitem.KindGuidance:
			result.IsError = true
			msg := "guidance: " + string(item.Event.ErrorKind)
			if item.Event.Suggestion != nil && item.Event.Suggestion.Message != "" {
				msg += ": " + item.Event.Suggestion.Message
			}
			result.Content = append(result.Content, toolContent{Type: "text", Text: msg})
		}
	}
	return jsonrpc.NewResult(req.ID, result)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
