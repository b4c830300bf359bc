package arbor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/plexuscore/plexus/activation"
	"github.com/plexuscore/plexus/handle"
	"github.com/plexuscore/plexus/provenance"
	"github.com/plexuscore/plexus/schema"
	"github.com/plexuscore/plexus/streamitem"
)

const (
	namespace    = "arbor"
	version      = "1.0.0"
	notesMethod  = "node" // Handle.Method for node handles arbor mints
	notesSubtree = "notes"
)

// Arbor is the hub exemplar activation: an in-memory conversation-tree store
// that both mints Handles (to its own nodes) and resolves them through the
// plexus hub, and exposes a nested "notes" child in its PluginSchema so the
// schema coalgebra (spec.md §4.3) has a non-trivial Children case to unfold.
type Arbor struct {
	instanceID uuid.UUID
	store      *storage
	hub        activation.Hub
}

// New constructs an Arbor activation. instanceID identifies this activation
// instance as the owner of every Handle it mints, per spec.md §4.4's
// "activations identify handles they own."
func New() *Arbor {
	return &Arbor{instanceID: uuid.New(), store: newStorage()}
}

var (
	_ activation.Activation    = (*Arbor)(nil)
	_ activation.Resolver      = (*Arbor)(nil)
	_ activation.HubInjectable = (*Arbor)(nil)
)

// InjectHub satisfies activation.HubInjectable; completes synchronously
// during Plexus.Build, per spec.md §4.1's construction contract.
func (a *Arbor) InjectHub(hub activation.Hub) {
	a.hub = hub
}

// OwnsHandle lets plexus.HubRef.ResolveHandle find the activation that
// minted a given Handle, via the duck-typed interface it probes for.
func (a *Arbor) OwnsHandle(h handle.Handle) bool {
	return h.PluginID == a.instanceID
}

func (a *Arbor) Namespace() string   { return namespace }
func (a *Arbor) Version() string     { return version }
func (a *Arbor) Description() string { return "Manage conversation trees with cross-activation handle resolution" }

func (a *Arbor) Methods() []string {
	return []string{"create_tree", "add_node", "get_tree", "notes_add", "notes_list"}
}

func (a *Arbor) MethodHelp(method string) (string, bool) {
	switch method {
	case "create_tree":
		return "Creates a new, empty conversation tree and returns its id", true
	case "add_node":
		return "Appends a text or external-handle node to a tree", true
	case "get_tree":
		return "Returns a tree and all of its nodes", true
	case "notes_add":
		return "Attaches a free-text note to a node", true
	case "notes_list":
		return "Lists the notes attached to a node", true
	default:
		return "", false
	}
}

func (a *Arbor) mintNodeHandle(nodeID uuid.UUID) handle.Handle {
	return handle.New(a.instanceID, version, notesMethod, nodeID.String())
}

// --- schemas ---

func createTreeParamsSchema() *schema.Schema {
	return schema.Object("create_tree params").
		WithProperty("owner_id", schema.String("owner identifier, defaults to \"system\"")).
		WithProperty("metadata", schema.Object("optional tree-level metadata"))
}

func createTreeReturnsSchema() *schema.Schema {
	return schema.Object("create_tree result").
		WithProperty("tree_id", schema.UUID("id of the created tree")).
		WithRequired("tree_id")
}

func addNodeParamsSchema() *schema.Schema {
	return schema.Object("add_node params").
		WithProperty("tree_id", schema.UUID("tree to append to")).
		WithProperty("parent_id", schema.UUID("parent node id, omitted for a root-level node")).
		WithProperty("content", schema.String("inline text content")).
		WithProperty("handle", schema.String("an external Handle string, in place of content")).
		WithRequired("tree_id")
}

func addNodeReturnsSchema() *schema.Schema {
	return schema.Object("add_node result").
		WithProperty("node_id", schema.UUID("id of the created node")).
		WithProperty("handle", schema.String("the Handle string addressing this node")).
		WithRequired("node_id", "handle")
}

func getTreeParamsSchema() *schema.Schema {
	return schema.Object("get_tree params").
		WithProperty("tree_id", schema.UUID("tree to fetch")).
		WithProperty("resolve_handles", schema.Boolean("resolve external-handle nodes through the hub inline")).
		WithRequired("tree_id")
}

func getTreeReturnsSchema() *schema.Schema {
	return schema.Object("get_tree result")
}

func notesAddParamsSchema() *schema.Schema {
	return schema.Object("notes_add params").
		WithProperty("node_id", schema.UUID("node to annotate")).
		WithProperty("text", schema.String("note text")).
		WithRequired("node_id", "text")
}

func notesAddReturnsSchema() *schema.Schema {
	return schema.Object("notes_add result")
}

func notesListParamsSchema() *schema.Schema {
	return schema.Object("notes_list params").
		WithProperty("node_id", schema.UUID("node to list notes for")).
		WithRequired("node_id")
}

func notesListReturnsSchema() *schema.Schema {
	return schema.Array("notes", schema.Object("a single note"))
}

// EnrichSchema returns the tagged-union method-enum schema of spec.md §4.2:
// one {method: const, params} variant per dispatchable method (including the
// notes_* pair, also surfaced under the nested "notes" child PluginSchema),
// combined with oneOf.
func (a *Arbor) EnrichSchema() *schema.Schema {
	return schema.MethodEnum(a.Description(), a.localMethodSchemas())
}

func (a *Arbor) help(m string) string { h, _ := a.MethodHelp(m); return h }

func (a *Arbor) noteMethodSchemas() []schema.MethodSchema {
	return []schema.MethodSchema{
		activation.NewMethodSchema("notes_add", a.help("notes_add"), notesAddParamsSchema(), notesAddReturnsSchema(), true),
		activation.NewMethodSchema("notes_list", a.help("notes_list"), notesListParamsSchema(), notesListReturnsSchema(), true),
	}
}

// localMethodSchemas includes every dispatchable method, including the
// notes_* pair also surfaced under the "notes" child, so the router compiles
// a parameter validator for all five (spec.md §4.1 step 5) while the
// PluginSchema still exercises the Children coalgebra case (spec.md §4.3).
func (a *Arbor) localMethodSchemas() []schema.MethodSchema {
	ms := []schema.MethodSchema{
		activation.NewMethodSchema("create_tree", a.help("create_tree"), createTreeParamsSchema(), createTreeReturnsSchema(), true),
		activation.NewMethodSchema("add_node", a.help("add_node"), addNodeParamsSchema(), addNodeReturnsSchema(), true),
		activation.NewMethodSchema("get_tree", a.help("get_tree"), getTreeParamsSchema(), getTreeReturnsSchema(), true),
	}
	return append(ms, a.noteMethodSchemas()...)
}

func (a *Arbor) notesChildSchema() schema.PluginSchema {
	return schema.NewLeafSchema(notesSubtree, version, "Per-node free-text annotations", a.noteMethodSchemas())
}

func (a *Arbor) PluginSchema() schema.PluginSchema {
	return schema.NewHubSchema(namespace, version, a.Description(), a.localMethodSchemas(), []schema.PluginSchema{a.notesChildSchema()})
}

// --- dispatch ---

func (a *Arbor) Call(ctx context.Context, self provenance.Provenance, method string, params json.RawMessage) (<-chan streamitem.Event, error) {
	switch method {
	case "create_tree":
		return a.callCreateTree(self, params)
	case "add_node":
		return a.callAddNode(self, params)
	case "get_tree":
		return a.callGetTree(ctx, self, params)
	case "notes_add":
		return a.callNotesAdd(self, params)
	case "notes_list":
		return a.callNotesList(self, params)
	default:
		return nil, &activation.MethodNotFoundError{Activation: namespace, Method: method, AvailableMethods: a.Methods()}
	}
}

type createTreeParams struct {
	OwnerID  string         `json:"owner_id"`
	Metadata map[string]any `json:"metadata"`
}

func (a *Arbor) callCreateTree(self provenance.Provenance, raw json.RawMessage) (<-chan streamitem.Event, error) {
	var p createTreeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, &activation.InvalidParamsError{Method: "create_tree", Reason: "params must be an object"}
		}
	}
	if p.OwnerID == "" {
		p.OwnerID = "system"
	}
	id := a.store.createTree(p.OwnerID, p.Metadata)
	return oneShotData(self, "arbor.tree_created", struct {
		TreeID uuid.UUID `json:"tree_id"`
	}{TreeID: id})
}

type addNodeParams struct {
	TreeID   uuid.UUID  `json:"tree_id"`
	ParentID *uuid.UUID `json:"parent_id"`
	Content  string     `json:"content"`
	Handle   string     `json:"handle"`
}

func (a *Arbor) callAddNode(self provenance.Provenance, raw json.RawMessage) (<-chan streamitem.Event, error) {
	var p addNodeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &activation.InvalidParamsError{Method: "add_node", Reason: "params must be an object"}
	}
	if (p.Content == "") == (p.Handle == "") {
		return nil, &activation.InvalidParamsError{Method: "add_node", Reason: "exactly one of content or handle is required"}
	}
	n, err := a.store.addNode(p.TreeID, p.ParentID, p.Content, p.Handle)
	if err != nil {
		return nil, &activation.InvalidParamsError{Method: "add_node", Reason: err.Error()}
	}
	h := a.mintNodeHandle(n.ID)
	return oneShotData(self, "arbor.node_created", struct {
		NodeID uuid.UUID `json:"node_id"`
		Handle string    `json:"handle"`
	}{NodeID: n.ID, Handle: h.String()})
}

type getTreeParams struct {
	TreeID         uuid.UUID `json:"tree_id"`
	ResolveHandles bool      `json:"resolve_handles"`
}

func (a *Arbor) callGetTree(ctx context.Context, self provenance.Provenance, raw json.RawMessage) (<-chan streamitem.Event, error) {
	var p getTreeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &activation.InvalidParamsError{Method: "get_tree", Reason: "params must be an object"}
	}
	t, err := a.store.getTree(p.TreeID)
	if err != nil {
		return nil, &activation.InvalidParamsError{Method: "get_tree", Reason: err.Error()}
	}
	if p.ResolveHandles && a.hub != nil {
		for id, n := range t.Nodes {
			if n.Handle == "" {
				continue
			}
			n.Content = a.resolveExternal(ctx, n.Handle)
			t.Nodes[id] = n
		}
	}
	return oneShotData(self, "arbor.tree", t)
}

// resolveExternal asks the hub to resolve an external node handle and
// renders a short display string, mirroring
// original_source/src/activations/arbor/activation.rs's tree_render
// handle-resolution path (trimmed to a single best-effort string).
func (a *Arbor) resolveExternal(ctx context.Context, rawHandle string) string {
	h, err := handle.Parse(rawHandle)
	if err != nil {
		return fmt.Sprintf("[unresolved: malformed handle %q]", rawHandle)
	}
	events, err := a.hub.ResolveHandle(ctx, h)
	if err != nil {
		return fmt.Sprintf("[unresolved: %v]", err)
	}
	for ev := range events {
		switch ev.Kind {
		case streamitem.KindData:
			return string(ev.Data)
		case streamitem.KindError:
			return fmt.Sprintf("[error: %s]", ev.ErrorMessage)
		case streamitem.KindDone:
			return "[empty]"
		}
	}
	return "[empty]"
}

type notesAddParams struct {
	NodeID uuid.UUID `json:"node_id"`
	Text   string    `json:"text"`
}

func (a *Arbor) callNotesAdd(self provenance.Provenance, raw json.RawMessage) (<-chan streamitem.Event, error) {
	var p notesAddParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &activation.InvalidParamsError{Method: "notes_add", Reason: "params must be an object"}
	}
	if p.Text == "" {
		return nil, &activation.InvalidParamsError{Method: "notes_add", Reason: "text is required"}
	}
	n := a.store.addNote(p.NodeID, p.Text)
	return oneShotData(self, "arbor.note_added", n)
}

type notesListParams struct {
	NodeID uuid.UUID `json:"node_id"`
}

func (a *Arbor) callNotesList(self provenance.Provenance, raw json.RawMessage) (<-chan streamitem.Event, error) {
	var p notesListParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &activation.InvalidParamsError{Method: "notes_list", Reason: "params must be an object"}
	}
	return oneShotData(self, "arbor.notes", a.store.listNotes(p.NodeID))
}

// --- Resolver ---

// Resolve implements activation.Resolver for node handles this activation
// minted, per spec.md §4.4. Only h.Method == notesMethod is recognized.
func (a *Arbor) Resolve(ctx context.Context, self provenance.Provenance, h handle.Handle) (<-chan streamitem.Event, error) {
	if h.Method != notesMethod || len(h.Meta) != 1 {
		ch := make(chan streamitem.Event, 2)
		ch <- streamitem.Error(self, fmt.Sprintf("arbor: cannot resolve handle %s", h.String()), false)
		ch <- streamitem.Done(self)
		close(ch)
		return ch, nil
	}
	nodeID, err := uuid.Parse(h.Meta[0])
	if err != nil {
		ch := make(chan streamitem.Event, 2)
		ch <- streamitem.Error(self, "arbor: malformed node id in handle", false)
		ch <- streamitem.Done(self)
		close(ch)
		return ch, nil
	}
	for _, t := range a.store.treeIDs() {
		if n, err := a.store.getNode(t, nodeID); err == nil {
			return oneShotData(self, "arbor.node", n)
		}
	}
	ch := make(chan streamitem.Event, 2)
	ch <- streamitem.Error(self, "arbor: stale handle, node not found", false)
	ch <- streamitem.Done(self)
	close(ch)
	return ch, nil
}

func oneShotData(self provenance.Provenance, contentType string, v any) (<-chan streamitem.Event, error) {
	ev, err := streamitem.DataValue(self, contentType, v)
	ch := make(chan streamitem.Event, 2)
	if err != nil {
		ch <- streamitem.Error(self, err.Error(), false)
		close(ch)
		return ch, nil
	}
	ch <- ev
	ch <- streamitem.Done(self)
	close(ch)
	return ch, nil
}
