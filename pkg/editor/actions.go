package editor

import (
	"github.com/tcmartin/floweditor/pkg/models"
	"github.com/tcmartin/floweditor/pkg/runlog"
)

// Action is the closed union of editor state transitions. Unknown actions
// leave the state unchanged, which is the forward-compatibility contract
// for dispatchers built against newer action sets.
type Action interface {
	isAction()
}

// SetWorkflowName renames the open workflow
type SetWorkflowName struct{ Name string }

// SetAutosave toggles the autosave flag
type SetAutosave struct{ Enabled bool }

// MarkDirty records that unsaved changes exist. Graph mutations and form
// edits dispatch this synchronously with the mutation.
type MarkDirty struct{}

// MarkClean records a successful save
type MarkClean struct{}

// SetSaveStatus sets the save status directly (saving/error transitions)
type SetSaveStatus struct{ Status SaveStatus }

// SetPanelOpen shows or hides the inspector panel
type SetPanelOpen struct{ Open bool }

// SetPanelWidth resizes the inspector panel
type SetPanelWidth struct{ Width int }

// SetPanelTab switches the active panel tab
type SetPanelTab struct{ Tab string }

// SetSelectedNodeID selects a single node, clearing any edge selection
type SetSelectedNodeID struct{ ID string }

// SetSelectedEdgeID selects a single edge, clearing any node selection
type SetSelectedEdgeID struct{ ID string }

// SetSelection replaces the multi-select set wholesale
type SetSelection struct{ IDs []string }

// ToggleSelection adds or removes one id from the multi-select set
type ToggleSelection struct{ ID string }

// ClearSelection empties the selection
type ClearSelection struct{}

// SetRuns replaces the run list wholesale; last write wins
type SetRuns struct{ Runs []models.RunSummary }

// SetSelectedRunLogs replaces the viewed run's log list, normalized
type SetSelectedRunLogs struct{ Logs []runlog.Entry }

// AppendSelectedRunLog appends one entry unless it is a duplicate
type AppendSelectedRunLog struct{ Entry runlog.Entry }

// SetValidationError shows the validation banner
type SetValidationError struct{ Err *models.ValidationError }

// ClearValidationError hides the validation banner
type ClearValidationError struct{}

// Reset restores the initial editor state
type Reset struct{}

func (SetWorkflowName) isAction()      {}
func (SetAutosave) isAction()          {}
func (MarkDirty) isAction()            {}
func (MarkClean) isAction()            {}
func (SetSaveStatus) isAction()        {}
func (SetPanelOpen) isAction()         {}
func (SetPanelWidth) isAction()        {}
func (SetPanelTab) isAction()          {}
func (SetSelectedNodeID) isAction()    {}
func (SetSelectedEdgeID) isAction()    {}
func (SetSelection) isAction()         {}
func (ToggleSelection) isAction()      {}
func (ClearSelection) isAction()       {}
func (SetRuns) isAction()              {}
func (SetSelectedRunLogs) isAction()   {}
func (AppendSelectedRunLog) isAction() {}
func (SetValidationError) isAction()   {}
func (ClearValidationError) isAction() {}
func (Reset) isAction()                {}
