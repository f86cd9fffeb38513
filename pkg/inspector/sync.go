package inspector

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// GraphWriter is the slice of the graph store the sync engine needs
type GraphWriter interface {
	NodeConfig(id string) (map[string]interface{}, bool)
	UpdateNodeConfig(id string, delta map[string]interface{})
	UpdateNodeConfigFunc(id string, fn func(map[string]interface{}) map[string]interface{})
}

// SchemaSource fetches the JSON-schema-like descriptor for a node label,
// used for the generic fallback form.
type SchemaSource interface {
	GetNodeSchema(ctx context.Context, label string) (map[string]interface{}, error)
}

// cronParser matches the scheduler's format: standard five-field
// expressions with an optional leading seconds field and descriptors.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Sync is the per-selection form engine. Field edits are debounced by a
// fixed quiescence window and committed as a config delta; the debounce
// timer is scoped to the selection generation, so a timer armed for one
// node can never write into another node's config.
type Sync struct {
	mu     sync.Mutex
	graph  GraphWriter
	reg    *Registry
	schema SchemaSource

	window       time.Duration
	schemaWindow time.Duration

	gen       int
	nodeID    string
	desc      Descriptor
	fields    map[string]interface{}
	pending   map[string]interface{}
	fieldErrs map[string]string
	timer     *time.Timer
	closed    bool
}

// SyncOption configures a Sync engine
type SyncOption func(*Sync)

// WithWindow overrides the form commit quiescence window
func WithWindow(d time.Duration) SyncOption {
	return func(s *Sync) { s.window = d }
}

// WithSchemaWindow overrides the schema-driven form quiescence window
func WithSchemaWindow(d time.Duration) SyncOption {
	return func(s *Sync) { s.schemaWindow = d }
}

// WithSchemaSource enables the schema-driven fallback form
func WithSchemaSource(src SchemaSource) SyncOption {
	return func(s *Sync) { s.schema = src }
}

// NewSync creates a sync engine bound to a graph writer
func NewSync(g GraphWriter, reg *Registry, opts ...SyncOption) *Sync {
	s := &Sync{
		graph:        g,
		reg:          reg,
		window:       300 * time.Millisecond,
		schemaWindow: 250 * time.Millisecond,
		fields:       map[string]interface{}{},
		pending:      map[string]interface{}{},
		fieldErrs:    map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select binds the engine to a node. Any delta still pending for the
// previously selected node is committed to that node first, then the timer
// is cancelled and the fields reset from the new node's config. A timer
// armed before Select can therefore never overwrite the new node's config.
func (s *Sync) Select(nodeID, label string) {
	s.mu.Lock()
	prevID, delta := s.takePendingLocked()

	s.gen++
	gen := s.gen
	s.nodeID = nodeID
	s.desc = s.reg.Resolve(label)
	s.fields = map[string]interface{}{}
	s.fieldErrs = map[string]string{}

	if config, ok := s.graph.NodeConfig(nodeID); ok {
		for k, v := range config {
			s.fields[k] = v
		}
	}
	fetchSchema := s.desc.Kind == KindRawJSON && s.schema != nil && !s.closed
	s.mu.Unlock()

	if prevID != "" && len(delta) > 0 {
		s.graph.UpdateNodeConfig(prevID, delta)
	}

	// The schema fetch is a network call; it must never hold the engine
	// lock or stall the dispatch chain that triggered the selection.
	if fetchSchema {
		go s.fetchSchema(gen, label)
	}
}

// Deselect unbinds the engine, committing any pending delta first
func (s *Sync) Deselect() {
	s.mu.Lock()
	prevID, delta := s.takePendingLocked()
	s.gen++
	s.nodeID = ""
	s.desc = Descriptor{}
	s.fields = map[string]interface{}{}
	s.fieldErrs = map[string]string{}
	s.mu.Unlock()

	if prevID != "" && len(delta) > 0 {
		s.graph.UpdateNodeConfig(prevID, delta)
	}
}

// takePendingLocked cancels the timer and detaches the pending delta,
// returning the node it belongs to.
func (s *Sync) takePendingLocked() (string, map[string]interface{}) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if len(s.pending) == 0 {
		return "", nil
	}
	delta := s.pending
	s.pending = map[string]interface{}{}
	return s.nodeID, delta
}

// fetchSchema upgrades an unrecognized label's raw-JSON fallback to a
// schema-driven form once the schema arrives. The raw editor serves in the
// meantime; the result is discarded when the selection has moved on since
// the fetch started.
func (s *Sync) fetchSchema(gen int, label string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema, err := s.schema.GetNodeSchema(ctx, label)
	if err != nil || schema == nil {
		return
	}
	fields := fieldsFromSchema(schema)
	if len(fields) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	s.desc = Descriptor{Kind: KindSchemaDriven, Fields: fields}
}

// SetField stages a field edit and (re)arms the debounce timer. The commit
// fires once the user has been quiet for the full window.
func (s *Sync) SetField(name string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.nodeID == "" {
		return
	}

	s.fields[name] = value
	s.pending[name] = value
	s.validateFieldLocked(name, value)

	window := s.window
	if s.desc.Kind == KindSchemaDriven {
		window = s.schemaWindow
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	gen := s.gen
	s.timer = time.AfterFunc(window, func() {
		s.commit(gen)
	})
}

// commit pushes the pending delta into the graph if the selection that
// armed the timer is still current.
func (s *Sync) commit(gen int) {
	s.mu.Lock()
	if s.closed || gen != s.gen || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	nodeID := s.nodeID
	delta := s.pending
	s.pending = map[string]interface{}{}
	s.timer = nil
	s.mu.Unlock()

	s.graph.UpdateNodeConfig(nodeID, delta)
}

// Flush commits any pending delta immediately. Used before an explicit
// save so in-flight edits are not lost to the debounce window.
func (s *Sync) Flush() {
	s.mu.Lock()
	nodeID, delta := s.takePendingLocked()
	s.mu.Unlock()

	if nodeID != "" && len(delta) > 0 {
		s.graph.UpdateNodeConfig(nodeID, delta)
	}
}

// SetRawJSON replaces the whole config from the raw editor. The edit
// applies immediately on a successful parse and is silently ignored on a
// parse failure, so intermediate invalid states while typing never disrupt
// the form. Raw edits bypass the debounce window.
func (s *Sync) SetRawJSON(text string) {
	s.mu.Lock()
	nodeID := s.nodeID
	closed := s.closed
	s.mu.Unlock()

	if closed || nodeID == "" {
		return
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil || parsed == nil {
		return
	}

	s.graph.UpdateNodeConfigFunc(nodeID, func(map[string]interface{}) map[string]interface{} {
		return parsed
	})

	s.mu.Lock()
	if s.nodeID == nodeID {
		s.fields = map[string]interface{}{}
		for k, v := range parsed {
			s.fields[k] = v
		}
	}
	s.mu.Unlock()
}

// WireBranch writes a branch target reference into the selected node's
// config immediately. branch is "true" or "false"; the picker values come
// from the graph store's NodeOptions sequence.
func (s *Sync) WireBranch(branch, targetID string) {
	s.mu.Lock()
	nodeID := s.nodeID
	autoWire := s.desc.AutoWire
	s.mu.Unlock()

	if nodeID == "" || !autoWire {
		return
	}

	key := "true_target"
	if branch == "false" {
		key = "false_target"
	}
	s.graph.UpdateNodeConfig(nodeID, map[string]interface{}{key: targetID})
}

// Descriptor returns the descriptor of the current selection
func (s *Sync) Descriptor() Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc
}

// Field returns the staged value of a field
func (s *Sync) Field(name string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields[name]
}

// FieldError returns the validation message for a field, empty when valid
func (s *Sync) FieldError(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fieldErrs[name]
}

// Close cancels any outstanding timer and detaches the engine. Called on
// editor teardown; a timer surviving teardown would be a leak.
func (s *Sync) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = map[string]interface{}{}
	s.nodeID = ""
}

// validateFieldLocked records per-field validation results. Validation
// never blocks a commit; an invalid cron expression is the backend's to
// reject, the field just carries the message.
func (s *Sync) validateFieldLocked(name string, value interface{}) {
	delete(s.fieldErrs, name)

	for _, f := range s.desc.Fields {
		if f.Name != name || f.Type != FieldCron {
			continue
		}
		expr, _ := value.(string)
		if expr == "" {
			return
		}
		if _, err := cronParser.Parse(expr); err != nil {
			s.fieldErrs[name] = "invalid cron expression: " + err.Error()
		}
		return
	}
}

// fieldsFromSchema builds a generic field list from a JSON-schema-like
// object's properties, in sorted key order.
func fieldsFromSchema(schema map[string]interface{}) []Field {
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return nil
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		ft := FieldText
		if prop, ok := props[name].(map[string]interface{}); ok {
			switch prop["type"] {
			case "number", "integer":
				ft = FieldNumber
			case "object", "array":
				ft = FieldJSON
			}
		}
		fields = append(fields, Field{Name: name, Label: name, Type: ft})
	}
	return fields
}
