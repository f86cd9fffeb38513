package graph

// ChangeKind identifies the kind of a canvas-produced structural change
type ChangeKind string

const (
	// ChangePosition moves a node
	ChangePosition ChangeKind = "position"

	// ChangeSelect flips a selection flag
	ChangeSelect ChangeKind = "select"

	// ChangeRemove removes a node or edge
	ChangeRemove ChangeKind = "remove"
)

// NodeChange is one canvas interaction delta for a node. Changes are
// pass-through: the store applies them positionally without business-rule
// validation.
type NodeChange struct {
	Kind     ChangeKind
	ID       string
	Position *Position
	Selected *bool
}

// EdgeChange is one canvas interaction delta for an edge
type EdgeChange struct {
	Kind     ChangeKind
	ID       string
	Selected *bool
}

// ApplyNodeChanges applies a batch of canvas deltas to the node list.
// Removals prune dependent edges the same way DeleteSelected does. The
// graph is marked dirty only when content actually changed; selection
// flags alone do not dirty the graph.
func (s *Store) ApplyNodeChanges(changes []NodeChange) {
	if len(changes) == 0 {
		return
	}

	dirty := false
	s.mu.Lock()
	for _, c := range changes {
		switch c.Kind {
		case ChangePosition:
			for i := range s.nodes {
				if s.nodes[i].ID == c.ID && c.Position != nil {
					s.nodes[i].Position = *c.Position
					dirty = true
				}
			}
		case ChangeSelect:
			for i := range s.nodes {
				if s.nodes[i].ID == c.ID && c.Selected != nil {
					s.nodes[i].Selected = *c.Selected
				}
			}
		case ChangeRemove:
			nodes := s.nodes[:0]
			for _, n := range s.nodes {
				if n.ID != c.ID {
					nodes = append(nodes, n)
				} else {
					dirty = true
				}
			}
			s.nodes = nodes

			edges := s.edges[:0]
			for _, e := range s.edges {
				if e.Source != c.ID && e.Target != c.ID {
					edges = append(edges, e)
				}
			}
			s.edges = edges
		}
	}
	s.mu.Unlock()

	if dirty {
		s.fireDirty()
	}
}

// ApplyEdgeChanges applies a batch of canvas deltas to the edge list
func (s *Store) ApplyEdgeChanges(changes []EdgeChange) {
	if len(changes) == 0 {
		return
	}

	dirty := false
	s.mu.Lock()
	for _, c := range changes {
		switch c.Kind {
		case ChangeSelect:
			// Edge selection is tracked in the editor state; nothing to
			// record on the edge itself.
		case ChangeRemove:
			edges := s.edges[:0]
			for _, e := range s.edges {
				if e.ID != c.ID {
					edges = append(edges, e)
				} else {
					dirty = true
				}
			}
			s.edges = edges
		}
	}
	s.mu.Unlock()

	if dirty {
		s.fireDirty()
	}
}
