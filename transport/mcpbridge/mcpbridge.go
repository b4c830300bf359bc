// Package mcpbridge implements the MCP HTTP/SSE bridge of spec.md §6:
// POST /mcp accepting initialize/tools/list/tools/call/notifications/*,
// grounded on the chi routing and message-dispatch shape of
// other_examples' genai-toolbox internal/server/mcp.go, trimmed to a single
// toolset (every registered activation, flattened) since this plexus has no
// multi-toolset concept.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/plexuscore/plexus/mcpsession"
	"github.com/plexuscore/plexus/plexus"
	"github.com/plexuscore/plexus/schema"
	"github.com/plexuscore/plexus/streamitem"
	"github.com/plexuscore/plexus/telemetry"
	"github.com/plexuscore/plexus/transport/jsonrpc"
)

const protocolVersion = "2024-11-05"

// Router builds the chi.Router mounting the /mcp surface over p. store
// persists session identity across process restarts (per mcpsession's
// HasSession contract); it may be nil, in which case sessions live only in
// the in-process sseManager for the lifetime of the connection.
func Router(p *plexus.Plexus, store *mcpsession.Store, logger telemetry.Logger) chi.Router {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	b := &bridge{plexus: p, store: store, logger: logger, sessions: newSSEManager()}

	r := chi.NewRouter()
	r.Get("/mcp/sse", b.handleSSE)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Post("/mcp", b.handlePost)
	})
	return r
}

type bridge struct {
	plexus   *plexus.Plexus
	store    *mcpsession.Store
	logger   telemetry.Logger
	sessions *sseManager
}

// sseSession is one long-lived GET /mcp/sse connection. Progress/Data
// notifications from concurrent tools/call requests carrying this
// session's id are fanned into events, mirroring other_examples'
// genai-toolbox sseSession/sseManager pattern.
type sseSession struct {
	events chan string
	done   chan struct{}
}

type sseManager struct {
	mu       sync.Mutex
	sessions map[string]*sseSession
}

func newSSEManager() *sseManager {
	return &sseManager{sessions: make(map[string]*sseSession)}
}

func (m *sseManager) add(id string) *sseSession {
	s := &sseSession{events: make(chan string, 64), done: make(chan struct{})}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

func (m *sseManager) remove(id string) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok {
		close(s.done)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
}

func (m *sseManager) get(id string) (*sseSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// handleSSE opens a server-push channel a client can reference from
// subsequent tools/call requests via the ?sessionId= query parameter, to
// receive every StreamItem as it is produced instead of only the final
// aggregated result.
func (b *bridge) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	sessionID := uuid.New().String()
	sess := b.sessions.add(sessionID)
	defer b.sessions.remove(sessionID)

	if b.store != nil {
		if err := b.store.CreateSession(r.Context(), sessionID); err != nil {
			b.logger.Warn(r.Context(), "mcpbridge: failed to persist session",
				"component", "mcpbridge", "session_id", sessionID, "err", err)
		}
		defer func() {
			if err := b.store.CloseSession(context.Background(), sessionID); err != nil {
				b.logger.Warn(context.Background(), "mcpbridge: failed to close persisted session",
					"component", "mcpbridge", "session_id", sessionID, "err", err)
			}
		}()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: endpoint\ndata: /mcp?sessionId=%s\n\n", sessionID)
	flusher.Flush()

	for {
		select {
		case ev := <-sess.events:
			fmt.Fprint(w, ev)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (b *bridge) publish(sessionID string, item streamitem.StreamItem) {
	if sessionID == "" {
		return
	}
	sess, ok := b.sessions.get(sessionID)
	if !ok {
		return
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return
	}
	select {
	case sess.events <- fmt.Sprintf("event: message\ndata: %s\n\n", payload):
	case <-sess.done:
	default:
		b.logger.Warn(context.Background(), "mcpbridge: sse event queue full, dropping event",
			"component", "mcpbridge", "session_id", sessionID)
	}
}

func (b *bridge) handlePost(w http.ResponseWriter, r *http.Request) {
	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, jsonrpc.NewError(nil, jsonrpc.CodeParseError, err.Error()))
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if b.store != nil && sessionID != "" {
		if err := b.store.Touch(r.Context(), sessionID); err != nil {
			b.logger.Warn(r.Context(), "mcpbridge: failed to touch session",
				"component", "mcpbridge", "session_id", sessionID, "err", err)
		}
	}

	switch req.Method {
	case "initialize":
		writeJSON(w, jsonrpc.NewResult(req.ID, b.initializeResult()))
	case "tools/list":
		writeJSON(w, jsonrpc.NewResult(req.ID, toolsListResult{Tools: b.tools()}))
	case "tools/call":
		writeJSON(w, b.callTool(r.Context(), req, sessionID))
	case "notifications/initialized", "notifications/cancelled":
		// Client notifications carry no id and expect no response body; MCP
		// clients tolerate a 202 with an empty body.
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
	Tools     map[string]any `json:"tools"`
	Logging   map[string]any `json:"logging"`
	Resources map[string]any `json:"resources,omitzero"`
}

type initializeResultPayload struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ServerInfo      serverInfo   `json:"serverInfo"`
}

// hasTreeManagingActivation reports whether any registered activation's
// PluginSchema is a hub, the proxy spec.md §6 uses for advertising the
// "resources" capability ("only when a tree-managing activation is
// registered").
func (b *bridge) hasTreeManagingActivation() bool {
	for _, info := range b.plexus.ListActivations() {
		if ps, ok := b.plexus.GetActivationTopology(info.Namespace); ok && ps.IsHub() {
			return true
		}
	}
	return false
}

func (b *bridge) initializeResult() initializeResultPayload {
	caps := capabilities{Tools: map[string]any{}, Logging: map[string]any{}}
	if b.hasTreeManagingActivation() {
		caps.Resources = map[string]any{}
	}
	return initializeResultPayload{
		ProtocolVersion: protocolVersion,
		Capabilities:    caps,
		ServerInfo:      serverInfo{Name: "plexus", Version: "1.0.0"},
	}
}

type tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema *schema.Schema `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []tool `json:"tools"`
}

func emptyObjectSchema() *schema.Schema {
	return schema.Object("no parameters")
}

// tools flattens every registered activation's local methods into MCP tool
// entries named "namespace.method", plus the three always-available
// reserved methods, per spec.md §6.
func (b *bridge) tools() []tool {
	var out []tool
	out = append(out,
		tool{Name: plexus.MethodPlexusSchema, Description: "Return the full plugin-tree schema", InputSchema: emptyObjectSchema()},
		tool{Name: plexus.MethodPlexusHash, Description: "Return the plexus's stable discovery hash", InputSchema: emptyObjectSchema()},
		tool{Name: plexus.MethodPlexusActivationSchema, Description: "Return one activation's enriched schema", InputSchema: schema.Object("params").
			WithProperty("namespace", schema.String("activation namespace")).
			WithRequired("namespace")},
	)

	for _, info := range b.plexus.ListActivations() {
		ps, ok := b.plexus.GetActivationTopology(info.Namespace)
		if !ok {
			continue
		}
		for _, m := range ps.Methods {
			input := m.Params
			if input == nil {
				input = emptyObjectSchema()
			} else if input.Type == "" {
				input.Type = "object"
			}
			out = append(out, tool{
				Name:        info.Namespace + "." + m.Name,
				Description: m.Description,
				InputSchema: input,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Meta      struct {
		ProgressToken json.RawMessage `json:"progressToken,omitempty"`
	} `json:"_meta,omitempty"`
}

type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callToolResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// progressParams is the notifications/progress payload: spec.md §4.5 forwards
// every Progress event as one of these, keyed by the token the caller
// supplied in tools/call's _meta.progressToken. Callers that omit the token
// get no progress notifications at all, per the MCP progress contract.
type progressParams struct {
	ProgressToken json.RawMessage `json:"progressToken"`
	Progress      float64         `json:"progress"`
	Message       string          `json:"message,omitempty"`
}

// logMessageParams is the notifications/message payload Data events are also
// forwarded as, live, alongside being buffered into the final result content.
type logMessageParams struct {
	Level  string          `json:"level"`
	Logger string          `json:"logger,omitempty"`
	Data   json.RawMessage `json:"data"`
}

func (b *bridge) publishNotification(sessionID, method string, params any) {
	if sessionID == "" {
		return
	}
	sess, ok := b.sessions.get(sessionID)
	if !ok {
		return
	}
	payload, err := json.Marshal(jsonrpc.Notification{JSONRPC: jsonrpc.Version, Method: method, Params: params})
	if err != nil {
		return
	}
	select {
	case sess.events <- fmt.Sprintf("event: message\ndata: %s\n\n", payload):
	case <-sess.done:
	default:
		b.logger.Warn(context.Background(), "mcpbridge: sse event queue full, dropping notification",
			"component", "mcpbridge", "session_id", sessionID, "method", method)
	}
}

func (b *bridge) callTool(ctx context.Context, req jsonrpc.Request, sessionID string) jsonrpc.Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeInvalidParams, "malformed tools/call params: "+err.Error())
	}
	progressToken := params.Meta.ProgressToken

	stream := b.plexus.Call(ctx, params.Name, params.Arguments)
	result := callToolResult{}
	var dataPayloads []json.RawMessage
	for item := range stream {
		b.publish(sessionID, item)
		switch item.Event.Kind {
		case streamitem.KindProgress:
			if len(progressToken) > 0 {
				progress := 0.0
				if item.Event.Percentage != nil {
					progress = *item.Event.Percentage
				}
				b.publishNotification(sessionID, "notifications/progress", progressParams{
					ProgressToken: progressToken,
					Progress:      progress,
					Message:       item.Event.Message,
				})
			}
		case streamitem.KindData:
			dataPayloads = append(dataPayloads, item.Event.Data)
			b.publishNotification(sessionID, "notifications/message", logMessageParams{
				Level:  "info",
				Logger: item.Event.ContentType,
				Data:   item.Event.Data,
			})
		case streamitem.KindError:
			if !item.Event.Recoverable {
				result.IsError = true
			} else {
				b.logger.Warn(ctx, "mcpbridge: recoverable error during tool call",
					"component", "mcpbridge", "tool", params.Name, "err", item.Event.ErrorMessage)
			}
			result.Content = append(result.Content, toolContent{Type: "text", Text: item.Event.ErrorMessage})
		case streamitem.KindGuidance:
			result.IsError = true
			msg := fmt.Sprintf("guidance: %s", item.Event.ErrorKind)
			if item.Event.Suggestion != nil && item.Event.Suggestion.Message != "" {
				msg += ": " + item.Event.Suggestion.Message
			}
			result.Content = append(result.Content, toolContent{Type: "text", Text: msg})
		}
	}
	if len(dataPayloads) > 0 {
		result.Content = append(result.Content, toolContent{Type: "text", Text: joinDataPayloads(dataPayloads)})
	}
	return jsonrpc.NewResult(req.ID, result)
}

// joinDataPayloads implements spec.md §4.5's Data-buffering rule: if every
// payload collected for the call is a JSON string, join them; otherwise
// pretty-print the whole collected array as one JSON blob.
func joinDataPayloads(payloads []json.RawMessage) string {
	strs := make([]string, 0, len(payloads))
	for _, p := range payloads {
		var s string
		if err := json.Unmarshal(p, &s); err != nil {
			b, err := json.MarshalIndent(payloads, "", "  ")
			if err != nil {
				return string(p)
			}
			return string(b)
		}
		strs = append(strs, s)
	}
	return strings.Join(strs, "")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
