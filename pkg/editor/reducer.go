package editor

import (
	"github.com/tcmartin/floweditor/pkg/models"
	"github.com/tcmartin/floweditor/pkg/runlog"
)

// Reduce applies one action to the state and returns the next state. The
// second return reports whether the state changed; callers skip listener
// notification when it is false, so duplicate log appends cause no
// re-render churn.
//
// Reduce is pure and never panics. Unknown actions return the state
// unchanged.
func Reduce(s State, a Action) (State, bool) {
	switch act := a.(type) {
	case SetWorkflowName:
		s.WorkflowName = act.Name
		return s, true

	case SetAutosave:
		s.Autosave = act.Enabled
		return s, true

	case MarkDirty:
		s.SaveStatus = SaveStatusDirty
		return s, true

	case MarkClean:
		s.SaveStatus = SaveStatusSaved
		return s, true

	case SetSaveStatus:
		s.SaveStatus = act.Status
		return s, true

	case SetPanelOpen:
		s.Panel.Open = act.Open
		return s, true

	case SetPanelWidth:
		s.Panel.Width = act.Width
		return s, true

	case SetPanelTab:
		s.Panel.Tab = act.Tab
		return s, true

	case SetSelectedNodeID:
		if act.ID == "" {
			s.Selection = Selection{}
			return s, true
		}
		s.Selection = Selection{IDs: []string{act.ID}, NodeID: act.ID}
		return s, true

	case SetSelectedEdgeID:
		if act.ID == "" {
			s.Selection = Selection{}
			return s, true
		}
		s.Selection = Selection{IDs: []string{act.ID}, EdgeID: act.ID}
		return s, true

	case SetSelection:
		ids := make([]string, len(act.IDs))
		copy(ids, act.IDs)
		s.Selection = recomputeSelection(ids, s.Selection.EdgeID)
		return s, true

	case ToggleSelection:
		if act.ID == "" {
			return s, false
		}
		ids := make([]string, 0, len(s.Selection.IDs)+1)
		removed := false
		for _, id := range s.Selection.IDs {
			if id == act.ID {
				removed = true
				continue
			}
			ids = append(ids, id)
		}
		if !removed {
			ids = append(ids, act.ID)
		}
		s.Selection = recomputeSelection(ids, s.Selection.EdgeID)
		return s, true

	case ClearSelection:
		s.Selection = Selection{}
		return s, true

	case SetRuns:
		// Malformed payloads coerce to an empty list, never an error
		if act.Runs == nil {
			s.Runs = []models.RunSummary{}
		} else {
			s.Runs = act.Runs
		}
		return s, true

	case SetSelectedRunLogs:
		s.SelectedRunLogs = runlog.Normalize(act.Logs)
		return s, true

	case AppendSelectedRunLog:
		next, ok := runlog.Append(s.SelectedRunLogs, act.Entry)
		if !ok {
			return s, false
		}
		s.SelectedRunLogs = next
		return s, true

	case SetValidationError:
		s.Validation = act.Err
		return s, true

	case ClearValidationError:
		s.Validation = nil
		return s, true

	case Reset:
		return NewState(), true

	default:
		return s, false
	}
}

// recomputeSelection derives the single-id fields from the multi-select
// set. NodeID or EdgeID is populated only when exactly one id is selected;
// a surviving edge selection keeps its edge identity.
func recomputeSelection(ids []string, priorEdgeID string) Selection {
	sel := Selection{IDs: ids}
	if len(ids) != 1 {
		return sel
	}
	if ids[0] == priorEdgeID && priorEdgeID != "" {
		sel.EdgeID = ids[0]
	} else {
		sel.NodeID = ids[0]
	}
	return sel
}
