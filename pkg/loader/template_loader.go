// Package loader parses YAML workflow templates used to seed the editor's
// palette with ready-made graphs.
package loader

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tcmartin/floweditor/pkg/graph"
)

// Errors returned by the template loader
var (
	ErrInvalidTemplate = errors.New("invalid workflow template")
)

// TemplateMetadata describes a workflow template
type TemplateMetadata struct {
	// Name of the template
	Name string `yaml:"name"`

	// Description of the template
	Description string `yaml:"description,omitempty"`

	// Version of the template
	Version string `yaml:"version,omitempty"`
}

// TemplateNode is one node of a template
type TemplateNode struct {
	// ID of the node within the template
	ID string `yaml:"id"`

	// Type of the node
	Type string `yaml:"type,omitempty"` // "input", "default"

	// Label identifies the node kind ("HTTP Request", "LLM", ...)
	Label string `yaml:"label"`

	// Config is the node configuration
	Config map[string]interface{} `yaml:"config,omitempty"`

	// Position on the canvas
	Position *graph.Position `yaml:"position,omitempty"`
}

// TemplateEdge connects two template nodes
type TemplateEdge struct {
	ID           string `yaml:"id,omitempty"`
	Source       string `yaml:"source"`
	Target       string `yaml:"target"`
	SourceHandle string `yaml:"source_handle,omitempty"`
}

// Template is a complete workflow template
type Template struct {
	// Metadata of the template
	Metadata TemplateMetadata `yaml:"metadata"`

	// Nodes of the template graph
	Nodes []TemplateNode `yaml:"nodes"`

	// Edges of the template graph
	Edges []TemplateEdge `yaml:"edges,omitempty"`
}

// LoadTemplate reads and parses a template file
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	return ParseTemplate(data)
}

// ParseTemplate parses template YAML
func ParseTemplate(data []byte) (*Template, error) {
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	if tmpl.Metadata.Name == "" {
		return nil, fmt.Errorf("%w: missing metadata.name", ErrInvalidTemplate)
	}
	if len(tmpl.Nodes) == 0 {
		return nil, fmt.Errorf("%w: template has no nodes", ErrInvalidTemplate)
	}
	for i, n := range tmpl.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node %d has no id", ErrInvalidTemplate, i)
		}
		if n.Label == "" {
			return nil, fmt.Errorf("%w: node %q has no label", ErrInvalidTemplate, n.ID)
		}
	}

	return &tmpl, nil
}

// WireGraph converts the template to the wire payload consumed by the
// graph store's sanitizing loader.
func (t *Template) WireGraph() graph.WireGraph {
	wire := graph.WireGraph{
		Nodes: make([]graph.WireNode, 0, len(t.Nodes)),
		Edges: make([]graph.WireEdge, 0, len(t.Edges)),
	}

	for _, n := range t.Nodes {
		config := n.Config
		if config == nil {
			config = map[string]interface{}{}
		}
		wire.Nodes = append(wire.Nodes, graph.WireNode{
			ID:   n.ID,
			Type: n.Type,
			Data: map[string]interface{}{
				"label":  n.Label,
				"config": config,
			},
			Position: n.Position,
		})
	}

	for _, e := range t.Edges {
		wire.Edges = append(wire.Edges, graph.WireEdge{
			ID:           e.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
		})
	}

	return wire
}
