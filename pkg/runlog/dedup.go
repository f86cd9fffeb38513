// Package runlog provides identity-keyed deduplication for run log entries.
//
// The telemetry stream may redeliver the same event after a reconnect, and
// the initial logs fetch can overlap with streamed entries. Every log list
// that reaches the editor state passes through this package so that replays
// never produce duplicate entries in the log pane.
package runlog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Entry represents a single run log record as delivered by the logs
// endpoint or the telemetry stream.
type Entry struct {
	// ID of the entry, when the server assigns one
	ID string `json:"id,omitempty"`

	// Type of the entry
	Type string `json:"type,omitempty"`

	// RunID is the run this entry belongs to
	RunID string `json:"run_id,omitempty"`

	// NodeID is the node that produced this entry, if any
	NodeID string `json:"node_id,omitempty"`

	// Timestamp of the entry
	Timestamp string `json:"timestamp,omitempty"`

	// Level of the entry
	Level string `json:"level,omitempty"` // "info", "warning", "error", "debug"

	// Message is the log payload; servers send strings or structured values
	Message interface{} `json:"message"`
}

// Key computes the dedup identity key for an entry. The explicit ID wins
// when present; otherwise the key is a composite of the remaining fields.
// An empty key means the entry could not be keyed and is treated as unique.
func Key(e Entry) string {
	if e.ID != "" {
		return "id:" + e.ID
	}

	msg, err := json.Marshal(e.Message)
	if err != nil {
		// Key the whole entry instead; fmt never fails, JSON might
		raw, rawErr := json.Marshal(e)
		if rawErr != nil {
			return keyOfLastResort(e)
		}
		return "raw:" + string(raw)
	}

	return strings.Join([]string{e.Type, e.RunID, e.NodeID, e.Timestamp, e.Level, string(msg)}, "|")
}

// keyOfLastResort keys an entry whose message defeats JSON entirely.
func keyOfLastResort(e Entry) string {
	defer func() {
		// A Stringer that panics must not take the log pane down with it
		_ = recover()
	}()
	return "fmt:" + fmt.Sprintf("%s|%s|%s|%s|%s|%v", e.Type, e.RunID, e.NodeID, e.Timestamp, e.Level, e.Message)
}

// Normalize returns entries with duplicates removed, preserving first-seen
// order. Entries that cannot be keyed are kept unconditionally.
func Normalize(entries []Entry) []Entry {
	seen := make(map[string]bool, len(entries))
	out := make([]Entry, 0, len(entries))

	for _, e := range entries {
		key := safeKey(e)
		if key == "" {
			out = append(out, e)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}

	return out
}

// Append returns existing with incoming appended, or (existing, false) when
// incoming is already present by identity key. The false return is the
// caller's signal to skip the state update entirely.
func Append(existing []Entry, incoming Entry) ([]Entry, bool) {
	key := safeKey(incoming)
	if key != "" {
		for _, e := range existing {
			if safeKey(e) == key {
				return existing, false
			}
		}
	}

	out := make([]Entry, 0, len(existing)+1)
	out = append(out, existing...)
	out = append(out, incoming)
	return out, true
}

// safeKey is Key hardened against panicking message values. On total
// failure every entry is treated as unique, which degrades to permissive
// behavior rather than dropping logs.
func safeKey(e Entry) (key string) {
	defer func() {
		if recover() != nil {
			key = ""
		}
	}()
	return Key(e)
}
