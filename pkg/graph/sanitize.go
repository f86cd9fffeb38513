package graph

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// WireNode is the loosely typed node payload as the persistence API returns
// it. Servers have been observed sending numeric ids and scalar data
// fields; everything here is normalized before it reaches the store.
type WireNode struct {
	ID       interface{} `json:"id"`
	Type     string      `json:"type,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Position *Position   `json:"position,omitempty"`
}

// WireEdge is the loosely typed edge payload
type WireEdge struct {
	ID           interface{} `json:"id"`
	Source       interface{} `json:"source"`
	Target       interface{} `json:"target"`
	SourceHandle string      `json:"sourceHandle,omitempty"`
}

// WireGraph is the graph payload exchanged with the persistence API
type WireGraph struct {
	Nodes          []WireNode `json:"nodes"`
	Edges          []WireEdge `json:"edges"`
	SelectedNodeID string     `json:"selected_node_id,omitempty"`
}

// Load replaces the graph with a sanitized copy of the wire payload.
// Sanitation rules: ids are stringified, a missing position defaults to
// {0,0}, and a data field that is not a mapping coerces to an empty config.
// Edges referencing nodes absent from the payload are pruned. Downstream
// equality checks assume string ids and map configs, so nothing malformed
// may survive this pass.
func (s *Store) Load(wire WireGraph) {
	nodes := make([]Node, 0, len(wire.Nodes))
	present := make(map[string]bool, len(wire.Nodes))

	for _, wn := range wire.Nodes {
		id := stringifyID(wn.ID)
		if id == "" || present[id] {
			continue
		}
		present[id] = true

		typ := NodeType(wn.Type)
		if typ != NodeTypeInput {
			typ = NodeTypeDefault
		}

		pos := Position{}
		if wn.Position != nil {
			pos = *wn.Position
		}

		nodes = append(nodes, Node{
			ID:       id,
			Type:     typ,
			Data:     sanitizeData(wn.Data),
			Position: pos,
		})
	}

	edges := make([]Edge, 0, len(wire.Edges))
	for _, we := range wire.Edges {
		source := stringifyID(we.Source)
		target := stringifyID(we.Target)
		if !present[source] || !present[target] {
			continue
		}
		id := stringifyID(we.ID)
		if id == "" {
			id = fmt.Sprintf("e-%s-%s", source, target)
		}
		edges = append(edges, Edge{ID: id, Source: source, Target: target, SourceHandle: we.SourceHandle})
	}

	s.mu.Lock()
	s.nodes = nodes
	s.edges = edges
	s.mu.Unlock()
}

// Export returns the persistable wire payload for the current graph.
// Runtime overlays and selection flags never leave the client; the
// selected node id rides along so selection survives a reload.
func (s *Store) Export(selectedNodeID string) WireGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wire := WireGraph{
		Nodes:          make([]WireNode, 0, len(s.nodes)),
		Edges:          make([]WireEdge, 0, len(s.edges)),
		SelectedNodeID: selectedNodeID,
	}

	for i := range s.nodes {
		n := s.nodes[i]
		pos := n.Position
		wire.Nodes = append(wire.Nodes, WireNode{
			ID:   n.ID,
			Type: string(n.Type),
			Data: map[string]interface{}{
				"label":  n.Data.Label,
				"config": n.Data.Config,
			},
			Position: &pos,
		})
	}

	for _, e := range s.edges {
		wire.Edges = append(wire.Edges, WireEdge{
			ID:           e.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
		})
	}

	return wire
}

// stringifyID renders any wire identifier as a string. JSON numbers arrive
// as float64; integral values must not grow a trailing ".0".
func stringifyID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", id)
	}
}

// sanitizeData coerces the wire data field to a well-formed NodeData. A
// scalar or missing data field yields an empty config rather than an error.
func sanitizeData(data interface{}) NodeData {
	out := NodeData{Config: map[string]interface{}{}}

	m, ok := data.(map[string]interface{})
	if !ok {
		return out
	}

	if label, ok := m["label"].(string); ok {
		out.Label = label
	}
	if config, ok := m["config"].(map[string]interface{}); ok && config != nil {
		out.Config = config
	}
	if verr, ok := m["validation_error"].(string); ok {
		out.ValidationError = verr
	}

	return out
}
