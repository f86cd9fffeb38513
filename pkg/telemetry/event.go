// Package telemetry manages the live streaming connection that overlays
// run status and logs onto the editor. One logical channel exists per
// active run; opening a new one always supersedes the old one.
package telemetry

import (
	"encoding/json"

	"github.com/tcmartin/floweditor/pkg/models"
	"github.com/tcmartin/floweditor/pkg/runlog"
)

// EventKind identifies the kind of a telemetry event
type EventKind string

const (
	// EventLog carries one run log entry
	EventLog EventKind = "log"

	// EventNode carries a node runtime overlay update
	EventNode EventKind = "node"

	// EventStatus carries run-level completion; it is terminal for the channel
	EventStatus EventKind = "status"
)

// Event is the discriminated union delivered by a transport. Exactly one of
// the payload fields is non-nil, matching Kind.
type Event struct {
	Kind   EventKind
	Log    *runlog.Entry
	Node   *models.NodeUpdate
	Status *models.RunStatus
}

// Handler receives decoded events in delivery order. The server is the
// ordering authority; no reordering buffer exists on the client.
type Handler interface {
	// HandleLog appends one log entry
	HandleLog(entry runlog.Entry)

	// HandleNode applies a node runtime overlay
	HandleNode(update models.NodeUpdate)

	// HandleStatus applies run-level completion
	HandleStatus(status models.RunStatus)
}

// DecodeEvent turns a named wire event into an Event. Unknown names and
// malformed payloads are skipped, never surfaced as errors.
func DecodeEvent(name string, data []byte) (Event, bool) {
	switch EventKind(name) {
	case EventLog:
		var entry runlog.Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return Event{}, false
		}
		return Event{Kind: EventLog, Log: &entry}, true

	case EventNode:
		var update models.NodeUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			return Event{}, false
		}
		return Event{Kind: EventNode, Node: &update}, true

	case EventStatus:
		var status models.RunStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return Event{}, false
		}
		return Event{Kind: EventStatus, Status: &status}, true

	default:
		return Event{}, false
	}
}
