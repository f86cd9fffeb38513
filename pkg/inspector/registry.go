// Package inspector binds a selected node's config to an editable form
// without the two drifting apart. Node kinds resolve through a registry
// once per selection rather than by re-matching label text on every render.
package inspector

// Kind classifies how a node's form is rendered
type Kind int

const (
	// KindDedicated is a fixed, hand-built field layout
	KindDedicated Kind = iota

	// KindFriendly is a pluggable component resolved from the registry
	KindFriendly

	// KindSchemaDriven is a generic form built from a fetched schema
	KindSchemaDriven

	// KindRawJSON is the fallback raw config editor
	KindRawJSON
)

// FieldType identifies the widget backing a form field
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldJSON     FieldType = "json"
	FieldCode     FieldType = "code"
	FieldCron     FieldType = "cron"
	FieldNodeRef  FieldType = "node_ref"
)

// Field describes one editable config field
type Field struct {
	// Name is the config key this field serializes to
	Name string

	// Label is the display label
	Label string

	// Type of the field widget
	Type FieldType

	// Options for select fields
	Options []string
}

// Descriptor describes how a node label maps onto a form
type Descriptor struct {
	// Kind of the form
	Kind Kind

	// Fields of the layout, for dedicated and friendly kinds
	Fields []Field

	// AutoWire enables the true/false branch target pickers
	AutoWire bool
}

// Registry maps node labels to form descriptors. Resolution happens once
// when a node is selected; unknown labels fall back to the raw JSON editor.
type Registry struct {
	byLabel map[string]Descriptor
}

// NewRegistry creates a registry pre-populated with the dedicated layouts
// and the friendly components.
func NewRegistry() *Registry {
	r := &Registry{byLabel: make(map[string]Descriptor)}

	// Dedicated layouts
	r.Register("HTTP Request", Descriptor{Kind: KindDedicated, Fields: []Field{
		{Name: "url", Label: "URL", Type: FieldText},
		{Name: "method", Label: "Method", Type: FieldSelect, Options: []string{"GET", "POST", "PUT", "PATCH", "DELETE"}},
		{Name: "headers", Label: "Headers", Type: FieldJSON},
		{Name: "body", Label: "Body", Type: FieldJSON},
	}})
	r.Register("LLM", Descriptor{Kind: KindDedicated, Fields: []Field{
		{Name: "provider", Label: "Provider", Type: FieldText},
		{Name: "model", Label: "Model", Type: FieldText},
		{Name: "prompt", Label: "Prompt", Type: FieldTextarea},
		{Name: "temperature", Label: "Temperature", Type: FieldNumber},
	}})
	r.Register("DB Query", Descriptor{Kind: KindDedicated, Fields: []Field{
		{Name: "driver", Label: "Driver", Type: FieldSelect, Options: []string{"postgres", "mysql", "sqlite"}},
		{Name: "connection", Label: "Connection", Type: FieldText},
		{Name: "query", Label: "Query", Type: FieldCode},
	}})
	r.Register("Transform", Descriptor{Kind: KindDedicated, Fields: []Field{
		{Name: "script", Label: "Script", Type: FieldCode},
	}})
	r.Register("Wait", Descriptor{Kind: KindDedicated, Fields: []Field{
		{Name: "duration", Label: "Duration", Type: FieldText},
	}})
	r.Register("Cron Trigger", Descriptor{Kind: KindDedicated, Fields: []Field{
		{Name: "schedule", Label: "Schedule", Type: FieldCron},
	}})
	r.Register("HTTP Trigger", Descriptor{Kind: KindDedicated, Fields: []Field{
		{Name: "path", Label: "Path", Type: FieldText},
		{Name: "method", Label: "Method", Type: FieldSelect, Options: []string{"GET", "POST"}},
	}})
	r.Register("Webhook Trigger", Descriptor{Kind: KindDedicated, Fields: []Field{
		{Name: "path", Label: "Path", Type: FieldText},
		{Name: "secret", Label: "Secret", Type: FieldText},
		{Name: "test_payload", Label: "Test Payload", Type: FieldJSON},
	}})

	batches := Descriptor{Kind: KindDedicated, Fields: []Field{
		{Name: "batch_size", Label: "Batch Size", Type: FieldNumber},
	}}
	r.Register("Split In Batches", batches)
	r.Register("Loop", batches)
	r.Register("Parallel", batches)

	// Branching nodes carry the auto-wire affordance
	branch := Descriptor{Kind: KindDedicated, AutoWire: true, Fields: []Field{
		{Name: "condition", Label: "Condition", Type: FieldCode},
		{Name: "true_target", Label: "True Branch", Type: FieldNodeRef},
		{Name: "false_target", Label: "False Branch", Type: FieldNodeRef},
	}}
	r.Register("If", branch)
	r.Register("Switch", branch)
	r.Register("Condition", branch)

	// Friendly components
	r.Register("Send Email", Descriptor{Kind: KindFriendly, Fields: []Field{
		{Name: "to", Label: "To", Type: FieldText},
		{Name: "subject", Label: "Subject", Type: FieldText},
		{Name: "body", Label: "Body", Type: FieldTextarea},
	}})
	r.Register("Slack Message", Descriptor{Kind: KindFriendly, Fields: []Field{
		{Name: "channel", Label: "Channel", Type: FieldText},
		{Name: "message", Label: "Message", Type: FieldTextarea},
	}})

	return r
}

// Register adds or replaces a descriptor for a label
func (r *Registry) Register(label string, d Descriptor) {
	r.byLabel[label] = d
}

// Resolve returns the descriptor for a label, falling back to the raw JSON
// editor for unrecognized labels.
func (r *Registry) Resolve(label string) Descriptor {
	if d, ok := r.byLabel[label]; ok {
		return d
	}
	return Descriptor{Kind: KindRawJSON}
}
