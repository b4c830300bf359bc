package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/plexuscore/plexus/schema"
	"github.com/plexuscore/plexus/streamitem"
)

// SchemaCache holds the last-fetched root plexus schema and the MCP tool
// list derived from it, refreshed on every (re)connect per SPEC_FULL.md
// §4.5's "schema cache refresh on reconnect" — the Go analogue of
// mcp_gateway.rs's PlexusClient.refresh_schemas, simplified because the Go
// plexus_schema response already nests full child schemas (methods
// included), so no per-namespace follow-up call is needed.
type SchemaCache struct {
	mu    sync.RWMutex
	root  schema.PluginSchema
	tools []Tool
}

// Tool is one MCP tool entry, with the same JSON shape as
// transport/mcpbridge's tool entries.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema *schema.Schema `json:"inputSchema"`
}

// Refresh calls plexus_schema through client and rebuilds the tool list.
func (c *SchemaCache) Refresh(ctx context.Context, client *Client) error {
	items, err := client.Call(ctx, "plexus_schema", nil)
	if err != nil {
		return fmt.Errorf("gateway: refresh schema: %w", err)
	}
	var root schema.PluginSchema
	found := false
	for _, item := range items {
		if item.Event.Kind == streamitem.KindData {
			if err := json.Unmarshal(item.Event.Data, &root); err != nil {
				return fmt.Errorf("gateway: decode plexus_schema payload: %w", err)
			}
			found = true
			break
		}
		if item.Event.Kind == streamitem.KindError {
			return fmt.Errorf("gateway: plexus_schema error: %s", item.Event.ErrorMessage)
		}
	}
	if !found {
		return fmt.Errorf("gateway: plexus_schema returned no data")
	}

	tools := flattenTools(root)
	c.mu.Lock()
	c.root = root
	c.tools = tools
	c.mu.Unlock()
	return nil
}

// flattenTools lists one tool per namespace.method of every top-level child,
// as transport/mcpbridge.bridge.tools does, but without the bridge's three
// reserved plexus_* tools. It does not recurse into
// grandchildren (a hub's nested children, e.g. arbor's "notes", are reached
// through their owning activation's own methods, not exposed directly).
func flattenTools(root schema.PluginSchema) []Tool {
	var out []Tool
	for _, child := range root.Children {
		for _, m := range child.Methods {
			input := m.Params
			if input == nil {
				input = schema.Object("no parameters")
			} else if input.Type == "" {
				input.Type = "object"
			}
			out = append(out, Tool{
				Name:        child.Namespace + "." + m.Name,
				Description: m.Description,
				InputSchema: input,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tools returns the cached tool list.
func (c *SchemaCache) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Tool(nil), c.tools...)
}

// Root returns the cached root plexus schema.
func (c *SchemaCache) Root() schema.PluginSchema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.root
}
