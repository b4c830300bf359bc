// Package arbor is the hub exemplar activation: a minimal in-memory tree
// store, trimmed from original_source/src/activations/arbor/{activation,types,storage}.rs
// to what the schema coalgebra and handle-resolution scenarios (spec.md §4.4,
// §8 Scenario 6) need: create_tree, add_node, get_tree, a nested "notes"
// child schema, and a Resolver implementation so other activations can
// dereference arbor node Handles through the hub.
package arbor

import (
	"time"

	"github.com/google/uuid"
)

// Node is a single entry in a conversation tree: either inline text content
// or an external reference (a Handle string) into another activation's data.
type Node struct {
	ID        uuid.UUID  `json:"id"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	Content   string     `json:"content,omitempty"`
	Handle    string     `json:"handle,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Tree is an owned collection of Nodes plus freeform metadata, per
// original_source/src/activations/arbor/types.rs's TreeSkeleton/Tree shapes.
type Tree struct {
	ID       uuid.UUID         `json:"id"`
	OwnerID  string            `json:"owner_id"`
	Metadata map[string]any    `json:"metadata,omitempty"`
	Nodes    map[uuid.UUID]Node `json:"nodes"`
}

// note is the payload stored by the nested "notes" child schema's methods,
// a minimal per-node annotation store independent of tree content.
type note struct {
	NodeID    uuid.UUID `json:"node_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
