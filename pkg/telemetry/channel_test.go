package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/floweditor/pkg/models"
	"github.com/tcmartin/floweditor/pkg/runlog"
)

// fakeTransport hand-feeds events to the channel under test
type fakeTransport struct {
	mu         sync.Mutex
	events     chan Event
	closed     int
	subscribed string
	failOpen   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan Event, 16)}
}

func (f *fakeTransport) Subscribe(ctx context.Context, runID string) (<-chan Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failOpen {
		return nil, errors.New("connect refused")
	}
	f.subscribed = runID
	return f.events, nil
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// recordingHandler collects every event it is handed
type recordingHandler struct {
	mu       sync.Mutex
	logs     []runlog.Entry
	nodes    []models.NodeUpdate
	statuses []models.RunStatus
}

func (h *recordingHandler) HandleLog(e runlog.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs = append(h.logs, e)
}

func (h *recordingHandler) HandleNode(u models.NodeUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes = append(h.nodes, u)
}

func (h *recordingHandler) HandleStatus(s models.RunStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, s)
}

func waitDone(t *testing.T, c *Channel) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not finish in time")
	}
}

func TestChannelDeliversEventsInOrder(t *testing.T) {
	transport := newFakeTransport()
	handler := &recordingHandler{}

	ch, err := Open(context.Background(), transport, "500", handler)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, ch.State())
	assert.Equal(t, "500", transport.subscribed)

	transport.events <- Event{Kind: EventLog, Log: &runlog.Entry{ID: "l1", Message: "first"}}
	transport.events <- Event{Kind: EventNode, Node: &models.NodeUpdate{NodeID: "n1", Status: "running"}}
	transport.events <- Event{Kind: EventLog, Log: &runlog.Entry{ID: "l2", Message: "second"}}
	close(transport.events)

	waitDone(t, ch)

	require.Len(t, handler.logs, 2)
	assert.Equal(t, "first", handler.logs[0].Message)
	assert.Equal(t, "second", handler.logs[1].Message)
	require.Len(t, handler.nodes, 1)
	assert.Equal(t, "running", handler.nodes[0].Status)
}

func TestStatusEventIsTerminal(t *testing.T) {
	transport := newFakeTransport()
	handler := &recordingHandler{}

	ch, err := Open(context.Background(), transport, "500", handler)
	require.NoError(t, err)

	transport.events <- Event{Kind: EventStatus, Status: &models.RunStatus{RunID: "500", Status: "success"}}

	// The channel closes itself; the server signals completion
	assert.Eventually(t, func() bool { return ch.State() == StateClosed }, time.Second, 5*time.Millisecond)
	require.Len(t, handler.statuses, 1)
	assert.GreaterOrEqual(t, transport.closeCount(), 1)

	close(transport.events)
	waitDone(t, ch)
}

func TestEventsAfterCloseAreDropped(t *testing.T) {
	transport := newFakeTransport()
	handler := &recordingHandler{}

	ch, err := Open(context.Background(), transport, "500", handler)
	require.NoError(t, err)

	ch.Close()

	// A redelivery racing the close must not touch state
	transport.events <- Event{Kind: EventLog, Log: &runlog.Entry{ID: "late", Message: "stale"}}
	close(transport.events)
	waitDone(t, ch)

	assert.Empty(t, handler.logs)
}

func TestCloseIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	ch, err := Open(context.Background(), transport, "500", &recordingHandler{})
	require.NoError(t, err)

	ch.Close()
	ch.Close()
	ch.Close()

	assert.Equal(t, 1, transport.closeCount())
	assert.Equal(t, StateClosed, ch.State())
}

func TestOpenFailurePropagates(t *testing.T) {
	transport := newFakeTransport()
	transport.failOpen = true

	ch, err := Open(context.Background(), transport, "500", &recordingHandler{})
	assert.Error(t, err)
	assert.Nil(t, ch)
}

func TestDecodeEvent(t *testing.T) {
	ev, ok := DecodeEvent("log", []byte(`{"id":"l1","message":"hello"}`))
	require.True(t, ok)
	assert.Equal(t, EventLog, ev.Kind)
	assert.Equal(t, "hello", ev.Log.Message)

	ev, ok = DecodeEvent("node", []byte(`{"node_id":"n1","status":"running","progress":40}`))
	require.True(t, ok)
	require.NotNil(t, ev.Node.Progress)
	assert.Equal(t, 40.0, *ev.Node.Progress)

	ev, ok = DecodeEvent("status", []byte(`{"run_id":500,"status":"failed","error":"boom"}`))
	require.True(t, ok)
	assert.Equal(t, "500", ev.Status.RunID.String())

	_, ok = DecodeEvent("heartbeat", []byte(`{}`))
	assert.False(t, ok)

	_, ok = DecodeEvent("log", []byte(`{malformed`))
	assert.False(t, ok)
}
