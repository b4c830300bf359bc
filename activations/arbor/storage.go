package arbor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// storage is the in-memory backing store, grounded on
// original_source/src/activations/arbor/storage.rs's ArborStorage but
// trimmed to the operations SPEC_FULL.md's arbor exemplar exercises: no
// persistence, no claim/release reference counting, no scheduled deletion.
type storage struct {
	mu    sync.RWMutex
	trees map[uuid.UUID]*Tree
	notes map[uuid.UUID][]note // keyed by node id
}

func newStorage() *storage {
	return &storage{
		trees: make(map[uuid.UUID]*Tree),
		notes: make(map[uuid.UUID][]note),
	}
}

func (s *storage) createTree(ownerID string, metadata map[string]any) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.trees[id] = &Tree{
		ID:       id,
		OwnerID:  ownerID,
		Metadata: metadata,
		Nodes:    make(map[uuid.UUID]Node),
	}
	return id
}

func (s *storage) treeIDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.trees))
	for id := range s.trees {
		ids = append(ids, id)
	}
	return ids
}

func (s *storage) getTree(treeID uuid.UUID) (Tree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[treeID]
	if !ok {
		return Tree{}, fmt.Errorf("no such tree: %s", treeID)
	}
	cp := *t
	cp.Nodes = make(map[uuid.UUID]Node, len(t.Nodes))
	for k, v := range t.Nodes {
		cp.Nodes[k] = v
	}
	return cp, nil
}

func (s *storage) addNode(treeID uuid.UUID, parentID *uuid.UUID, content, handle string) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trees[treeID]
	if !ok {
		return Node{}, fmt.Errorf("no such tree: %s", treeID)
	}
	if parentID != nil {
		if _, ok := t.Nodes[*parentID]; !ok {
			return Node{}, fmt.Errorf("no such parent node: %s", *parentID)
		}
	}
	n := Node{ID: uuid.New(), ParentID: parentID, Content: content, Handle: handle, CreatedAt: time.Now().UTC()}
	t.Nodes[n.ID] = n
	return n, nil
}

func (s *storage) getNode(treeID, nodeID uuid.UUID) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[treeID]
	if !ok {
		return Node{}, fmt.Errorf("no such tree: %s", treeID)
	}
	n, ok := t.Nodes[nodeID]
	if !ok {
		return Node{}, fmt.Errorf("no such node: %s", nodeID)
	}
	return n, nil
}

func (s *storage) addNote(nodeID uuid.UUID, text string) note {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := note{NodeID: nodeID, Text: text, CreatedAt: time.Now().UTC()}
	s.notes[nodeID] = append(s.notes[nodeID], n)
	return n
}

func (s *storage) listNotes(nodeID uuid.UUID) []note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]note(nil), s.notes[nodeID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
