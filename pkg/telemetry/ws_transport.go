package telemetry

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tcmartin/floweditor/pkg/models"
	"github.com/tcmartin/floweditor/pkg/runlog"
)

// wsUpdate is the WebSocket frame shape: the same discriminated payloads as
// the SSE stream, wrapped in a typed envelope.
type wsUpdate struct {
	Type   string             `json:"type"` // "log", "node", "status"
	Log    *runlog.Entry      `json:"log,omitempty"`
	Node   *models.NodeUpdate `json:"node,omitempty"`
	Status *models.RunStatus  `json:"status,omitempty"`
}

// WSTransport streams run events over a WebSocket connection, for
// deployments where SSE is unavailable. Tokens travel in the handshake
// headers.
type WSTransport struct {
	baseURL string
	token   string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSTransport creates a WebSocket transport against the API base URL
func NewWSTransport(baseURL, token string) *WSTransport {
	return &WSTransport{baseURL: baseURL, token: token}
}

// Subscribe dials the stream endpoint for a run and decodes frames. The
// returned channel closes when the connection drops or ctx is canceled.
func (t *WSTransport) Subscribe(ctx context.Context, runID string) (<-chan Event, error) {
	streamURL := fmt.Sprintf("%s/runs/%s/stream", wsURL(t.baseURL), url.PathEscape(runID))

	header := http.Header{}
	if t.token != "" {
		header.Set("Authorization", "Bearer "+t.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial stream: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		for {
			var update wsUpdate
			if err := conn.ReadJSON(&update); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("telemetry: websocket stream for run %s ended: %v", runID, err)
				}
				return
			}

			ev, ok := decodeWSUpdate(update)
			if !ok {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// Close tears down the connection. Safe to call more than once.
func (t *WSTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

// decodeWSUpdate maps a frame envelope to an Event
func decodeWSUpdate(update wsUpdate) (Event, bool) {
	switch EventKind(update.Type) {
	case EventLog:
		if update.Log == nil {
			return Event{}, false
		}
		return Event{Kind: EventLog, Log: update.Log}, true
	case EventNode:
		if update.Node == nil {
			return Event{}, false
		}
		return Event{Kind: EventNode, Node: update.Node}, true
	case EventStatus:
		if update.Status == nil {
			return Event{}, false
		}
		return Event{Kind: EventStatus, Status: update.Status}, true
	default:
		return Event{}, false
	}
}

// wsURL rewrites an http(s) base URL to its ws(s) form
func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
