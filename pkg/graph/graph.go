// Package graph owns the canonical node/edge graph of the workflow editor.
// Every other component mutates the graph only through this store.
package graph

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NodeType distinguishes trigger-style entry nodes from regular nodes
type NodeType string

const (
	// NodeTypeInput marks a trigger/entry node
	NodeTypeInput NodeType = "input"

	// NodeTypeDefault marks a regular node
	NodeTypeDefault NodeType = "default"
)

// RunState is the runtime status of a node during a run
type RunState string

const (
	RunStateIdle    RunState = "idle"
	RunStateRunning RunState = "running"
	RunStateSuccess RunState = "success"
	RunStateFailed  RunState = "failed"
)

// Position is a node's canvas position
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RuntimeStatus is the per-node overlay written by telemetry events. It is
// never included in the persisted graph payload.
type RuntimeStatus struct {
	// Status of the node
	Status RunState `json:"status"`

	// Progress of the node (0-100%), when reported
	Progress *float64 `json:"progress,omitempty"`

	// Result of the node, when completed
	Result interface{} `json:"result,omitempty"`

	// Error details, when failed
	Error interface{} `json:"error,omitempty"`

	// Message is an optional human-readable status line
	Message string `json:"message,omitempty"`
}

// NodeData holds the editable payload of a node
type NodeData struct {
	// Label identifies the node kind in the palette ("HTTP Request", "LLM", ...)
	Label string `json:"label"`

	// Config is the node-type-specific configuration. Always a non-nil map.
	Config map[string]interface{} `json:"config"`

	// ValidationError flags the node as invalid after a failed save
	ValidationError string `json:"validation_error,omitempty"`
}

// Node is one node of the automation graph
type Node struct {
	// ID is unique within the graph and stable for the node's lifetime
	ID string `json:"id"`

	// Type of the node
	Type NodeType `json:"type"`

	// Data is the editable payload
	Data NodeData `json:"data"`

	// Position on the canvas
	Position Position `json:"position"`

	// Runtime is the telemetry overlay, nil outside a run
	Runtime *RuntimeStatus `json:"-"`

	// Selected mirrors the canvas selection flag
	Selected bool `json:"-"`
}

// Edge connects two nodes
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// NodeOption is a {id, label} pair used to populate wire-target pickers
type NodeOption struct {
	ID    string
	Label string
}

// Hooks are callbacks the store fires after committing a mutation. They run
// outside the store lock, in commit order.
type Hooks struct {
	// OnDirty fires after any mutation that changes persisted graph content
	OnDirty func()

	// OnClearSelection fires when a deletion invalidates the selection
	OnClearSelection func()

	// OnSelect fires after AddNode commits, with the new node's ID
	OnSelect func(nodeID string)
}

// Store is the single-writer graph container. Any component may call into
// it, but all mutations serialize through its lock.
type Store struct {
	mu    sync.RWMutex
	nodes []Node
	edges []Edge
	hooks Hooks
}

// NewStore creates an empty graph store
func NewStore() *Store {
	return &Store{}
}

// SetHooks installs the mutation callbacks. Call before sharing the store.
func (s *Store) SetHooks(h Hooks) {
	s.hooks = h
}

// AddNode appends a new node and returns its generated ID. The selection
// hook fires after the commit, outside the lock, so the host can apply the
// selection once the graph change is visible.
func (s *Store) AddNode(label string, typ NodeType, config map[string]interface{}) string {
	if config == nil {
		config = map[string]interface{}{}
	}
	if typ == "" {
		typ = NodeTypeDefault
	}

	s.mu.Lock()
	id := s.newNodeIDLocked()
	s.nodes = append(s.nodes, Node{
		ID:   id,
		Type: typ,
		Data: NodeData{Label: label, Config: config},
		// Offset each new node so palette clicks do not stack
		Position: Position{X: 80 + float64(len(s.nodes)%6)*60, Y: 80 + float64(len(s.nodes))*40},
	})
	s.mu.Unlock()

	s.fireDirty()
	if s.hooks.OnSelect != nil {
		s.hooks.OnSelect(id)
	}
	return id
}

// newNodeIDLocked generates a time-prefixed random ID, re-rolled until it is
// absent from the current node-id set.
func (s *Store) newNodeIDLocked() string {
	for {
		id := fmt.Sprintf("n%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
		if !s.hasNodeLocked(id) {
			return id
		}
	}
}

func (s *Store) hasNodeLocked(id string) bool {
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			return true
		}
	}
	return false
}

// Connect adds an edge between two existing nodes and returns the edge ID.
// An empty string is returned when either endpoint is missing.
func (s *Store) Connect(source, target, sourceHandle string) string {
	s.mu.Lock()
	if !s.hasNodeLocked(source) || !s.hasNodeLocked(target) {
		s.mu.Unlock()
		return ""
	}
	id := fmt.Sprintf("e%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
	s.edges = append(s.edges, Edge{ID: id, Source: source, Target: target, SourceHandle: sourceHandle})
	s.mu.Unlock()

	s.fireDirty()
	return id
}

// UpdateNodeConfig shallow-merges delta into the target node's config. A
// missing ID is a silent no-op.
func (s *Store) UpdateNodeConfig(id string, delta map[string]interface{}) {
	s.UpdateNodeConfigFunc(id, func(config map[string]interface{}) map[string]interface{} {
		for k, v := range delta {
			config[k] = v
		}
		return config
	})
}

// UpdateNodeConfigFunc replaces the target node's config with the result of
// fn applied to a copy of the current config. A missing ID is a silent
// no-op. fn returning nil coerces to an empty map.
func (s *Store) UpdateNodeConfigFunc(id string, fn func(map[string]interface{}) map[string]interface{}) {
	s.mu.Lock()
	applied := false
	for i := range s.nodes {
		if s.nodes[i].ID != id {
			continue
		}
		current := make(map[string]interface{}, len(s.nodes[i].Data.Config))
		for k, v := range s.nodes[i].Data.Config {
			current[k] = v
		}
		next := fn(current)
		if next == nil {
			next = map[string]interface{}{}
		}
		s.nodes[i].Data.Config = next
		applied = true
		break
	}
	s.mu.Unlock()

	if applied {
		s.fireDirty()
	}
}

// DeleteSelected removes the nodes whose IDs are listed and prunes every
// edge whose source, target, or own ID is listed. Selection clearing and
// dirty marking fire as one logical unit after the commit.
func (s *Store) DeleteSelected(ids []string) {
	if len(ids) == 0 {
		return
	}
	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}

	s.mu.Lock()
	nodes := s.nodes[:0]
	for _, n := range s.nodes {
		if !doomed[n.ID] {
			nodes = append(nodes, n)
		}
	}
	s.nodes = nodes

	edges := s.edges[:0]
	for _, e := range s.edges {
		if doomed[e.ID] || doomed[e.Source] || doomed[e.Target] {
			continue
		}
		edges = append(edges, e)
	}
	s.edges = edges
	s.mu.Unlock()

	if s.hooks.OnClearSelection != nil {
		s.hooks.OnClearSelection()
	}
	s.fireDirty()
}

// NodeOptions returns a lazy iterator over {id, label} pairs for every node
// except excludeID. Calling NodeOptions again restarts the sequence against
// the then-current graph.
func (s *Store) NodeOptions(excludeID string) func() (NodeOption, bool) {
	s.mu.RLock()
	options := make([]NodeOption, 0, len(s.nodes))
	for i := range s.nodes {
		if s.nodes[i].ID == excludeID {
			continue
		}
		options = append(options, NodeOption{ID: s.nodes[i].ID, Label: s.nodes[i].Data.Label})
	}
	s.mu.RUnlock()

	next := 0
	return func() (NodeOption, bool) {
		if next >= len(options) {
			return NodeOption{}, false
		}
		opt := options[next]
		next++
		return opt, true
	}
}

// Node returns a copy of the node with the given ID
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.nodes {
		if s.nodes[i].ID == id {
			return s.nodes[i], true
		}
	}
	return Node{}, false
}

// NodeConfig returns a copy of the node's config map
func (s *Store) NodeConfig(id string) (map[string]interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.nodes {
		if s.nodes[i].ID != id {
			continue
		}
		config := make(map[string]interface{}, len(s.nodes[i].Data.Config))
		for k, v := range s.nodes[i].Data.Config {
			config[k] = v
		}
		return config, true
	}
	return nil, false
}

// Snapshot returns copies of the node and edge slices. Config maps are
// shared; callers treat snapshots as read-only.
func (s *Store) Snapshot() ([]Node, []Edge) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]Node, len(s.nodes))
	copy(nodes, s.nodes)
	edges := make([]Edge, len(s.edges))
	copy(edges, s.edges)
	return nodes, edges
}

// SetRuntime replaces the runtime overlay of the addressed node. A missing
// ID is a silent no-op; overlays never mark the graph dirty.
func (s *Store) SetRuntime(nodeID string, rs *RuntimeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.nodes {
		if s.nodes[i].ID == nodeID {
			s.nodes[i].Runtime = rs
			return
		}
	}
}

// ClearRuntime removes every runtime overlay; called when a new run starts
func (s *Store) ClearRuntime() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.nodes {
		s.nodes[i].Runtime = nil
	}
}

// SetValidationError flags a node as invalid after a failed save
func (s *Store) SetValidationError(nodeID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.nodes {
		if s.nodes[i].ID == nodeID {
			s.nodes[i].Data.ValidationError = message
			return
		}
	}
}

// ClearValidationErrors removes every validation flag
func (s *Store) ClearValidationErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.nodes {
		s.nodes[i].Data.ValidationError = ""
	}
}

func (s *Store) fireDirty() {
	if s.hooks.OnDirty != nil {
		s.hooks.OnDirty()
	}
}
