// Package models contains the wire-level types shared between the editor
// stores, the API client, and the telemetry channel.
package models

import (
	"encoding/json"
	"strconv"
)

// FlexID is an identifier that the server may send as either a JSON string
// or a JSON number. It always unmarshals to its string form.
type FlexID string

// UnmarshalJSON accepts string, number, or null identifiers.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		*f = ""
		return nil
	}

	switch v := raw.(type) {
	case string:
		*f = FlexID(v)
	case float64:
		*f = FlexID(strconv.FormatFloat(v, 'f', -1, 64))
	case nil:
		*f = ""
	default:
		// Fall back to the raw JSON text for anything exotic
		*f = FlexID(string(data))
	}

	return nil
}

// String returns the identifier as a plain string.
func (f FlexID) String() string {
	return string(f)
}

// RunSummary describes one execution of a saved workflow
type RunSummary struct {
	// ID of the run
	ID FlexID `json:"id"`

	// WorkflowID is the ID of the workflow that was executed
	WorkflowID FlexID `json:"workflow_id,omitempty"`

	// Status of the run
	Status string `json:"status,omitempty"` // "running", "success", "failed"

	// StartedAt is when the run started
	StartedAt string `json:"started_at,omitempty"`

	// FinishedAt is when the run completed
	FinishedAt string `json:"finished_at,omitempty"`
}

// RunList is the response shape of the runs endpoint. The server returns
// either {"items": [...], "total": n} or a bare array; both decode here.
type RunList struct {
	Items []RunSummary `json:"items"`
	Total int          `json:"total"`
}

// UnmarshalJSON accepts both the paginated object shape and a bare array.
func (l *RunList) UnmarshalJSON(data []byte) error {
	// Try the paginated object shape first
	var paged struct {
		Items []RunSummary `json:"items"`
		Total int          `json:"total"`
	}
	if err := json.Unmarshal(data, &paged); err == nil && paged.Items != nil {
		l.Items = paged.Items
		l.Total = paged.Total
		return nil
	}

	// Fall back to a bare array
	var items []RunSummary
	if err := json.Unmarshal(data, &items); err == nil {
		l.Items = items
		l.Total = len(items)
		return nil
	}

	// Malformed payloads coerce to an empty list rather than erroring
	l.Items = []RunSummary{}
	l.Total = 0
	return nil
}

// NodeUpdate is the runtime overlay payload delivered by a "node" telemetry
// event.
type NodeUpdate struct {
	// NodeID is the ID of the node being updated
	NodeID FlexID `json:"node_id"`

	// Status of the node
	Status string `json:"status"` // "idle", "running", "success", "failed"

	// Progress of the node (0-100%), when reported
	Progress *float64 `json:"progress,omitempty"`

	// Result of the node, when completed
	Result interface{} `json:"result,omitempty"`

	// Error details, when failed
	Error interface{} `json:"error,omitempty"`

	// Message is an optional human-readable status line
	Message string `json:"message,omitempty"`
}

// RunStatus is the run-level completion payload delivered by a "status"
// telemetry event. The server signals completion; the client never infers it.
type RunStatus struct {
	// RunID of the run this status belongs to
	RunID FlexID `json:"run_id"`

	// Status of the run
	Status string `json:"status"` // "success", "failed"

	// Error message if the run failed
	Error string `json:"error,omitempty"`

	// Message is an optional human-readable completion line
	Message string `json:"message,omitempty"`
}

// ValidationError is the structured error shape returned by the save
// endpoint when a node fails validation.
type ValidationError struct {
	// Message describes the validation failure
	Message string `json:"message"`

	// NodeID is the offending node, when the server can attribute one
	NodeID FlexID `json:"node_id,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}
