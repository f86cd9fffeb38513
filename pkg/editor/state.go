// Package editor holds the reducer-driven state container for all
// editor-wide UI state except the graph itself: selection, panel layout,
// save status, run list, and streamed run logs.
package editor

import (
	"github.com/tcmartin/floweditor/pkg/models"
	"github.com/tcmartin/floweditor/pkg/runlog"
)

// SaveStatus tracks the workflow's save lifecycle
type SaveStatus string

const (
	SaveStatusIdle   SaveStatus = "idle"
	SaveStatusDirty  SaveStatus = "dirty"
	SaveStatusSaving SaveStatus = "saving"
	SaveStatusSaved  SaveStatus = "saved"
	SaveStatusError  SaveStatus = "error"
)

// Selection tracks what is selected on the canvas. IDs is the superset
// representation; NodeID and EdgeID are valid only when exactly one id is
// selected, and are mutually exclusive.
type Selection struct {
	// IDs is the multi-select set, in selection order
	IDs []string

	// NodeID is the single selected node, or empty
	NodeID string

	// EdgeID is the single selected edge, or empty
	EdgeID string
}

// Panel tracks the inspector panel layout
type Panel struct {
	// Open indicates whether the panel is visible
	Open bool

	// Width of the panel in pixels
	Width int

	// Tab is the active panel tab
	Tab string
}

// State is the complete editor-wide UI state. Values are treated as
// immutable snapshots; the reducer returns a new State for every change.
type State struct {
	// WorkflowName is the display name of the open workflow
	WorkflowName string

	// Autosave indicates whether edits save automatically
	Autosave bool

	// SaveStatus of the open workflow
	SaveStatus SaveStatus

	// Panel layout
	Panel Panel

	// Selection on the canvas
	Selection Selection

	// Runs is the run list for the open workflow, newest first
	Runs []models.RunSummary

	// SelectedRunLogs is the deduplicated log list of the viewed run
	SelectedRunLogs []runlog.Entry

	// Validation is the banner content after a failed save, nil when clear
	Validation *models.ValidationError
}

// NewState returns the initial editor state
func NewState() State {
	return State{
		SaveStatus: SaveStatusIdle,
		Panel: Panel{
			Open:  true,
			Width: 320,
			Tab:   "config",
		},
	}
}
