// Package session composes the editor core: the editor state store, the
// graph store, the inspector sync engine, the API client, and the run
// telemetry channel. One Session is one editor mount; nothing here is a
// singleton, subcomponents receive the stores by reference.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/tcmartin/floweditor/pkg/client"
	"github.com/tcmartin/floweditor/pkg/config"
	"github.com/tcmartin/floweditor/pkg/editor"
	"github.com/tcmartin/floweditor/pkg/graph"
	"github.com/tcmartin/floweditor/pkg/inspector"
	"github.com/tcmartin/floweditor/pkg/models"
	"github.com/tcmartin/floweditor/pkg/runlog"
	"github.com/tcmartin/floweditor/pkg/telemetry"
)

// TransportFactory builds a telemetry transport for a run. Swappable so
// tests can inject recording fakes.
type TransportFactory func(runID string) telemetry.Transport

// Session is the root of one editor mount
type Session struct {
	cfg    *config.Config
	api    *client.Client
	editor *editor.Store
	graph  *graph.Store
	sync   *inspector.Sync

	mu         sync.Mutex
	channel    *telemetry.Channel
	chanEpoch  int
	workflowID string

	newTransport TransportFactory
	unsubscribe  func()
	lastSelected string
}

// Option configures a Session
type Option func(*Session)

// WithTransportFactory overrides how telemetry transports are built
func WithTransportFactory(f TransportFactory) Option {
	return func(s *Session) { s.newTransport = f }
}

// New creates a session and wires the stores together
func New(api *client.Client, cfg *config.Config, opts ...Option) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	s := &Session{
		cfg:    cfg,
		api:    api,
		editor: editor.NewStore(),
		graph:  graph.NewStore(),
	}

	s.sync = inspector.NewSync(s.graph, inspector.NewRegistry(),
		inspector.WithWindow(time.Duration(cfg.Editor.DebounceMS)*time.Millisecond),
		inspector.WithSchemaWindow(time.Duration(cfg.Editor.SchemaDebounceMS)*time.Millisecond),
		inspector.WithSchemaSource(api),
	)

	for _, opt := range opts {
		opt(s)
	}
	if s.newTransport == nil {
		s.newTransport = s.defaultTransport
	}

	// Graph mutations drive save status and selection through the editor
	// store, synchronously with the mutation.
	s.graph.SetHooks(graph.Hooks{
		OnDirty:          func() { s.editor.Dispatch(editor.MarkDirty{}) },
		OnClearSelection: func() { s.editor.Dispatch(editor.ClearSelection{}) },
		OnSelect:         func(nodeID string) { s.editor.Dispatch(editor.SetSelectedNodeID{ID: nodeID}) },
	})

	// Selection changes re-bind the inspector form
	s.unsubscribe = s.editor.Subscribe(s.onEditorState)

	if cfg.Editor.Autosave {
		s.editor.Dispatch(editor.SetAutosave{Enabled: true})
	}
	if cfg.Editor.PanelWidth > 0 {
		s.editor.Dispatch(editor.SetPanelWidth{Width: cfg.Editor.PanelWidth})
	}

	return s
}

// Editor returns the editor state store
func (s *Session) Editor() *editor.Store { return s.editor }

// Graph returns the graph store
func (s *Session) Graph() *graph.Store { return s.graph }

// Inspector returns the form sync engine
func (s *Session) Inspector() *inspector.Sync { return s.sync }

// WorkflowID returns the saved workflow id, empty before the first save
func (s *Session) WorkflowID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workflowID
}

// onEditorState re-binds the inspector whenever the selected node changes
func (s *Session) onEditorState(state editor.State) {
	selected := state.Selection.NodeID

	s.mu.Lock()
	if selected == s.lastSelected {
		s.mu.Unlock()
		return
	}
	s.lastSelected = selected
	s.mu.Unlock()

	if selected == "" {
		s.sync.Deselect()
		return
	}
	if node, ok := s.graph.Node(selected); ok {
		s.sync.Select(selected, node.Data.Label)
	}
}

// LoadWorkflow fetches a workflow and replaces the session's graph and
// editor state with its sanitized contents.
func (s *Session) LoadWorkflow(ctx context.Context, id string) error {
	wf, err := s.api.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}

	s.graph.Load(wf.Graph)

	s.mu.Lock()
	s.workflowID = wf.ID.String()
	s.mu.Unlock()

	s.editor.Dispatch(editor.Reset{})
	s.editor.Dispatch(editor.SetWorkflowName{Name: wf.Name})
	if wf.Graph.SelectedNodeID != "" {
		s.editor.Dispatch(editor.SetSelectedNodeID{ID: wf.Graph.SelectedNodeID})
	}
	return nil
}

// LoadGraph replaces the graph from an already-parsed wire payload, e.g. a
// palette template.
func (s *Session) LoadGraph(name string, wire graph.WireGraph) {
	s.graph.Load(wire)
	s.editor.Dispatch(editor.Reset{})
	s.editor.Dispatch(editor.SetWorkflowName{Name: name})
}

// SaveWorkflow persists the current graph. A structured validation failure
// selects the offending node, raises the banner, and flags the node; the
// graph stays editable and re-saveable throughout.
func (s *Session) SaveWorkflow(ctx context.Context) error {
	// In-flight form edits must reach the graph before it is exported
	s.sync.Flush()

	s.editor.Dispatch(editor.ClearValidationError{})
	s.graph.ClearValidationErrors()
	s.editor.Dispatch(editor.SetSaveStatus{Status: editor.SaveStatusSaving})

	state := s.editor.State()
	wf := &client.Workflow{
		ID:    models.FlexID(s.WorkflowID()),
		Name:  state.WorkflowName,
		Graph: s.graph.Export(state.Selection.NodeID),
	}

	saved, err := s.api.SaveWorkflow(ctx, wf)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			s.applyValidationError(verr)
			return err
		}
		s.editor.Dispatch(editor.SetSaveStatus{Status: editor.SaveStatusError})
		return err
	}

	s.mu.Lock()
	s.workflowID = saved.ID.String()
	s.mu.Unlock()

	s.editor.Dispatch(editor.MarkClean{})
	return nil
}

// applyValidationError surfaces a structured save failure: banner text,
// node selection, and a validation flag on the node's data.
func (s *Session) applyValidationError(verr *models.ValidationError) {
	s.editor.Dispatch(editor.SetValidationError{Err: verr})
	if nodeID := verr.NodeID.String(); nodeID != "" {
		s.editor.Dispatch(editor.SetSelectedNodeID{ID: nodeID})
		s.graph.SetValidationError(nodeID, verr.Message)
	}
	s.editor.Dispatch(editor.SetSaveStatus{Status: editor.SaveStatusError})
}

// RunWorkflow saves if needed, starts a run, primes the log pane from the
// persisted logs, and opens the telemetry channel for the new run.
func (s *Session) RunWorkflow(ctx context.Context) (string, error) {
	if s.WorkflowID() == "" {
		// Silent save so the run endpoint has an id to execute
		if err := s.SaveWorkflow(ctx); err != nil {
			return "", err
		}
	}

	runID, err := s.api.RunWorkflow(ctx, s.WorkflowID())
	if err != nil {
		return "", err
	}

	s.graph.ClearRuntime()
	s.primeRunLogs(ctx, runID)

	if err := s.openChannel(ctx, runID); err != nil {
		return runID, err
	}
	s.RefreshRuns(ctx)
	return runID, nil
}

// OpenRunLogs switches the log pane to an existing run and opens its
// telemetry channel ("View Logs").
func (s *Session) OpenRunLogs(ctx context.Context, runID string) error {
	s.primeRunLogs(ctx, runID)
	return s.openChannel(ctx, runID)
}

// primeRunLogs clears the pane and loads the already-persisted logs for a
// run, so the pane is populated before the stream catches up.
func (s *Session) primeRunLogs(ctx context.Context, runID string) {
	s.editor.Dispatch(editor.SetSelectedRunLogs{Logs: nil})

	logs, err := s.api.GetRunLogs(ctx, runID)
	if err != nil {
		log.Printf("session: failed to fetch logs for run %s: %v", runID, err)
		return
	}
	s.editor.Dispatch(editor.SetSelectedRunLogs{Logs: logs})
}

// openChannel opens the telemetry channel for a run. Any previously open
// channel is closed first, synchronously, so two channels can never write
// state concurrently. The epoch check covers the window while the
// subscribe is in flight: an open superseded by a later one closes its own
// channel instead of storing it.
func (s *Session) openChannel(ctx context.Context, runID string) error {
	s.mu.Lock()
	if s.channel != nil {
		s.channel.Close()
		s.channel = nil
	}
	s.chanEpoch++
	epoch := s.chanEpoch
	transport := s.newTransport(runID)
	s.mu.Unlock()

	ch, err := telemetry.Open(ctx, transport, runID, s)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if epoch != s.chanEpoch {
		s.mu.Unlock()
		ch.Close()
		return nil
	}
	s.channel = ch
	s.mu.Unlock()
	return nil
}

// defaultTransport selects a transport from config and token presence: an
// unauthenticated SSE client when no token exists, a token-carrying variant
// otherwise, or WebSocket when configured.
func (s *Session) defaultTransport(string) telemetry.Transport {
	token := s.api.Token()

	if s.cfg.Telemetry.Transport == "websocket" {
		return telemetry.NewWSTransport(s.api.BaseURL(), token)
	}

	opts := []telemetry.SSEOption{}
	if token != "" {
		opts = append(opts, telemetry.WithSSEToken(token))
		if s.cfg.Telemetry.TokenInQuery {
			opts = append(opts, telemetry.WithTokenInQuery())
		}
	}
	return telemetry.NewSSETransport(s.api.BaseURL(), opts...)
}

// HandleLog implements telemetry.Handler
func (s *Session) HandleLog(entry runlog.Entry) {
	s.editor.Dispatch(editor.AppendSelectedRunLog{Entry: entry})
}

// HandleNode implements telemetry.Handler: the overlay lands on the graph
// and the update is also appended to the log pane.
func (s *Session) HandleNode(update models.NodeUpdate) {
	nodeID := update.NodeID.String()
	s.graph.SetRuntime(nodeID, &graph.RuntimeStatus{
		Status:   graph.RunState(update.Status),
		Progress: update.Progress,
		Result:   update.Result,
		Error:    update.Error,
		Message:  update.Message,
	})

	s.editor.Dispatch(editor.AppendSelectedRunLog{Entry: runlog.Entry{
		Type:      "node",
		NodeID:    nodeID,
		Level:     levelForStatus(update.Status),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Message:   nodeMessage(update),
	}})
}

// HandleStatus implements telemetry.Handler: run completion appends to the
// logs, refreshes the run list, and lets the channel close itself.
func (s *Session) HandleStatus(status models.RunStatus) {
	s.editor.Dispatch(editor.AppendSelectedRunLog{Entry: runlog.Entry{
		Type:      "status",
		RunID:     status.RunID.String(),
		Level:     levelForStatus(status.Status),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Message:   statusMessage(status),
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.RefreshRuns(ctx)
}

// RefreshRuns replaces the run list from the server; last write wins
func (s *Session) RefreshRuns(ctx context.Context) {
	id := s.WorkflowID()
	if id == "" {
		return
	}

	runs, err := s.api.ListRuns(ctx, id)
	if err != nil {
		log.Printf("session: failed to list runs for workflow %s: %v", id, err)
		return
	}
	s.editor.Dispatch(editor.SetRuns{Runs: runs})
}

// ChannelDone returns a channel closed when the current telemetry channel
// finishes. With no open channel the returned channel is already closed.
func (s *Session) ChannelDone() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel != nil {
		return s.channel.Done()
	}
	done := make(chan struct{})
	close(done)
	return done
}

// Close tears the session down: the telemetry channel is closed before
// anything else goes away, and the inspector's timers are cancelled.
// Leaking an open stream past unmount is a defect.
func (s *Session) Close() {
	s.mu.Lock()
	if s.channel != nil {
		s.channel.Close()
		s.channel = nil
	}
	// Supersede any open still waiting on its subscribe
	s.chanEpoch++
	s.mu.Unlock()

	s.sync.Close()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// levelForStatus maps a run/node status to a log level
func levelForStatus(status string) string {
	if status == "failed" {
		return "error"
	}
	return "info"
}

// nodeMessage renders a node update as a log line
func nodeMessage(update models.NodeUpdate) string {
	if update.Message != "" {
		return update.Message
	}
	return "node " + update.NodeID.String() + " " + update.Status
}

// statusMessage renders a run completion as a log line
func statusMessage(status models.RunStatus) string {
	if status.Message != "" {
		return status.Message
	}
	if status.Error != "" {
		return "run " + status.Status + ": " + status.Error
	}
	return "run " + status.Status
}
