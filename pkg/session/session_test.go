package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/floweditor/pkg/client"
	"github.com/tcmartin/floweditor/pkg/config"
	"github.com/tcmartin/floweditor/pkg/editor"
	"github.com/tcmartin/floweditor/pkg/graph"
	"github.com/tcmartin/floweditor/pkg/models"
	"github.com/tcmartin/floweditor/pkg/runlog"
	"github.com/tcmartin/floweditor/pkg/telemetry"
)

// scriptedTransport replays a fixed event sequence and records its
// lifecycle into a shared journal, so tests can assert close ordering.
type scriptedTransport struct {
	name    string
	script  []telemetry.Event
	journal *journal
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string{}, j.entries...)
}

func (t *scriptedTransport) Subscribe(ctx context.Context, runID string) (<-chan telemetry.Event, error) {
	if t.journal != nil {
		t.journal.add(t.name + ":subscribe")
	}
	events := make(chan telemetry.Event, len(t.script)+1)
	for _, ev := range t.script {
		events <- ev
	}
	close(events)
	return events, nil
}

func (t *scriptedTransport) Close() {
	if t.journal != nil {
		t.journal.add(t.name + ":close")
	}
}

func logEvent(id, message string) telemetry.Event {
	return telemetry.Event{Kind: telemetry.EventLog, Log: &runlog.Entry{ID: id, Message: message}}
}

// newBackend builds the standard mock API used by the session tests
func newBackend(t *testing.T, configure func(r *mux.Router)) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	configure(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func waitChannel(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.ChannelDone():
	case <-time.After(2 * time.Second):
		t.Fatal("telemetry channel did not finish in time")
	}
}

func TestEndToEndRunScenario(t *testing.T) {
	server := newBackend(t, func(r *mux.Router) {
		r.HandleFunc("/workflows", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"id": 99})
		}).Methods(http.MethodPost)
		r.HandleFunc("/workflows/{id}/run", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"run_id": 500})
		}).Methods(http.MethodPost)
		r.HandleFunc("/runs/{id}/logs", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"logs": []map[string]interface{}{{"id": "l1", "message": "initial log"}},
			})
		}).Methods(http.MethodGet)
		r.HandleFunc("/runs", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode([]map[string]interface{}{{"id": 500, "status": "running"}})
		}).Methods(http.MethodGet)
	})

	transport := &scriptedTransport{script: []telemetry.Event{
		logEvent("l2", "streamed log"),
	}}

	sess := New(client.New(server.URL), nil, WithTransportFactory(
		func(string) telemetry.Transport { return transport },
	))
	defer sess.Close()

	sess.Graph().AddNode("HTTP Request", graph.NodeTypeDefault, map[string]interface{}{
		"url": "http://example.com",
	})
	assert.Equal(t, editor.SaveStatusDirty, sess.Editor().State().SaveStatus)

	runID, err := sess.RunWorkflow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "500", runID)
	assert.Equal(t, "99", sess.WorkflowID())

	waitChannel(t, sess)

	logs := sess.Editor().State().SelectedRunLogs
	require.Len(t, logs, 2)
	assert.Equal(t, "initial log", logs[0].Message)
	assert.Equal(t, "streamed log", logs[1].Message)

	assert.Len(t, sess.Editor().State().Runs, 1)
}

func TestStreamRedeliveryDoesNotDuplicate(t *testing.T) {
	server := newBackend(t, func(r *mux.Router) {
		r.HandleFunc("/runs/{id}/logs", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"logs": []map[string]interface{}{{"id": "l1", "message": "initial log"}},
			})
		}).Methods(http.MethodGet)
	})

	// The stream re-delivers l1 before the new entry
	transport := &scriptedTransport{script: []telemetry.Event{
		logEvent("l1", "initial log"),
		logEvent("l2", "streamed log"),
		logEvent("l2", "streamed log"),
	}}

	sess := New(client.New(server.URL), nil, WithTransportFactory(
		func(string) telemetry.Transport { return transport },
	))
	defer sess.Close()

	require.NoError(t, sess.OpenRunLogs(context.Background(), "500"))
	waitChannel(t, sess)

	logs := sess.Editor().State().SelectedRunLogs
	require.Len(t, logs, 2)
	assert.Equal(t, "initial log", logs[0].Message)
	assert.Equal(t, "streamed log", logs[1].Message)
}

func TestNodeEventUpdatesRuntimeOverlay(t *testing.T) {
	server := newBackend(t, func(r *mux.Router) {
		r.HandleFunc("/runs/{id}/logs", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"logs": []interface{}{}})
		}).Methods(http.MethodGet)
	})

	sess := New(client.New(server.URL), nil)
	nodeID := sess.Graph().AddNode("HTTP Request", graph.NodeTypeDefault, nil)

	progress := 60.0
	transport := &scriptedTransport{script: []telemetry.Event{
		{Kind: telemetry.EventNode, Node: &models.NodeUpdate{
			NodeID: models.FlexID(nodeID), Status: "running", Progress: &progress,
		}},
	}}
	sess.newTransport = func(string) telemetry.Transport { return transport }
	defer sess.Close()

	require.NoError(t, sess.OpenRunLogs(context.Background(), "500"))
	waitChannel(t, sess)

	node, ok := sess.Graph().Node(nodeID)
	require.True(t, ok)
	require.NotNil(t, node.Runtime)
	assert.Equal(t, graph.RunStateRunning, node.Runtime.Status)
	assert.Equal(t, 60.0, *node.Runtime.Progress)

	// Node events also land in the log pane
	assert.Len(t, sess.Editor().State().SelectedRunLogs, 1)
}

func TestStatusEventRefreshesRunsAndCloses(t *testing.T) {
	runsListed := make(chan struct{}, 4)
	server := newBackend(t, func(r *mux.Router) {
		r.HandleFunc("/runs/{id}/logs", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"logs": []interface{}{}})
		}).Methods(http.MethodGet)
		r.HandleFunc("/runs", func(w http.ResponseWriter, req *http.Request) {
			runsListed <- struct{}{}
			json.NewEncoder(w).Encode([]map[string]interface{}{{"id": 500, "status": "success"}})
		}).Methods(http.MethodGet)
	})

	transport := &scriptedTransport{script: []telemetry.Event{
		{Kind: telemetry.EventStatus, Status: &models.RunStatus{RunID: "500", Status: "success"}},
	}}

	sess := New(client.New(server.URL), nil, WithTransportFactory(
		func(string) telemetry.Transport { return transport },
	))
	defer sess.Close()

	// Seed a workflow id so the refresh has something to list
	sess.mu.Lock()
	sess.workflowID = "99"
	sess.mu.Unlock()

	require.NoError(t, sess.OpenRunLogs(context.Background(), "500"))
	waitChannel(t, sess)

	select {
	case <-runsListed:
	case <-time.After(2 * time.Second):
		t.Fatal("status event did not trigger a run-list refresh")
	}

	logs := sess.Editor().State().SelectedRunLogs
	require.Len(t, logs, 1)
	assert.Equal(t, "status", logs[0].Type)
}

func TestChannelSingularity(t *testing.T) {
	server := newBackend(t, func(r *mux.Router) {
		r.HandleFunc("/runs/{id}/logs", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"logs": []interface{}{}})
		}).Methods(http.MethodGet)
	})

	j := &journal{}
	first := &scriptedTransport{name: "t1", journal: j}
	second := &scriptedTransport{name: "t2", journal: j, script: []telemetry.Event{
		logEvent("l1", "from second"),
	}}

	transports := []telemetry.Transport{first, second}
	next := 0
	sess := New(client.New(server.URL), nil, WithTransportFactory(
		func(string) telemetry.Transport {
			tr := transports[next]
			next++
			return tr
		},
	))
	defer sess.Close()

	require.NoError(t, sess.OpenRunLogs(context.Background(), "500"))
	require.NoError(t, sess.OpenRunLogs(context.Background(), "501"))
	waitChannel(t, sess)

	entries := j.list()

	// The first transport must be closed before the second subscribes
	closeIdx, subIdx := -1, -1
	for i, e := range entries {
		switch e {
		case "t1:close":
			if closeIdx == -1 {
				closeIdx = i
			}
		case "t2:subscribe":
			subIdx = i
		}
	}
	require.NotEqual(t, -1, closeIdx, "first transport was never closed: %v", entries)
	require.NotEqual(t, -1, subIdx)
	assert.Less(t, closeIdx, subIdx, "old channel must close before the new one opens: %v", entries)

	// Only the second transport's events reached the state
	logs := sess.Editor().State().SelectedRunLogs
	require.Len(t, logs, 1)
	assert.Equal(t, "from second", logs[0].Message)
}

// gatedTransport holds its Subscribe call until the gate is released
type gatedTransport struct {
	scriptedTransport
	gate chan struct{}
}

func (t *gatedTransport) Subscribe(ctx context.Context, runID string) (<-chan telemetry.Event, error) {
	<-t.gate
	return t.scriptedTransport.Subscribe(ctx, runID)
}

func TestOverlappingOpensKeepOneChannel(t *testing.T) {
	server := newBackend(t, func(r *mux.Router) {
		r.HandleFunc("/runs/{id}/logs", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"logs": []interface{}{}})
		}).Methods(http.MethodGet)
	})

	j := &journal{}
	slow := &gatedTransport{
		scriptedTransport: scriptedTransport{name: "slow", journal: j},
		gate:              make(chan struct{}),
	}
	fast := &scriptedTransport{name: "fast", journal: j, script: []telemetry.Event{
		logEvent("l1", "from fast"),
	}}

	handedOut := make(chan telemetry.Transport, 2)
	transports := []telemetry.Transport{slow, fast}
	next := 0
	sess := New(client.New(server.URL), nil, WithTransportFactory(
		func(string) telemetry.Transport {
			tr := transports[next]
			next++
			handedOut <- tr
			return tr
		},
	))
	defer sess.Close()

	firstDone := make(chan error, 1)
	go func() { firstDone <- sess.OpenRunLogs(context.Background(), "500") }()
	<-handedOut

	// The second open supersedes the first while its subscribe is still in
	// flight; when the first finally connects it must close itself instead
	// of displacing the newer channel.
	require.NoError(t, sess.OpenRunLogs(context.Background(), "501"))
	close(slow.gate)
	require.NoError(t, <-firstDone)

	waitChannel(t, sess)

	logs := sess.Editor().State().SelectedRunLogs
	require.Len(t, logs, 1)
	assert.Equal(t, "from fast", logs[0].Message)

	assert.Contains(t, j.list(), "slow:close", "the superseded channel must be closed")
}

func TestStructuredValidationFlow(t *testing.T) {
	var llmNodeID string
	server := newBackend(t, func(r *mux.Router) {
		r.HandleFunc("/workflows", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"message": "LLM node missing prompt",
				"node_id": llmNodeID,
			})
		}).Methods(http.MethodPost)
	})

	sess := New(client.New(server.URL), nil)
	defer sess.Close()

	llmNodeID = sess.Graph().AddNode("LLM", graph.NodeTypeDefault, nil)
	// Select something else so the failure visibly moves the selection
	sess.Editor().Dispatch(editor.ClearSelection{})

	err := sess.SaveWorkflow(context.Background())
	require.Error(t, err)

	state := sess.Editor().State()
	require.NotNil(t, state.Validation)
	assert.Equal(t, "LLM node missing prompt", state.Validation.Message)
	assert.Equal(t, llmNodeID, state.Selection.NodeID)
	assert.Equal(t, editor.SaveStatusError, state.SaveStatus)

	node, ok := sess.Graph().Node(llmNodeID)
	require.True(t, ok)
	assert.Equal(t, "LLM node missing prompt", node.Data.ValidationError)
}

func TestSaveClearsValidationState(t *testing.T) {
	fail := true
	var nodeID string
	server := newBackend(t, func(r *mux.Router) {
		r.HandleFunc("/workflows", func(w http.ResponseWriter, req *http.Request) {
			if fail {
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(map[string]interface{}{"message": "bad node", "node_id": nodeID})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"id": 99})
		}).Methods(http.MethodPost)
	})

	sess := New(client.New(server.URL), nil)
	defer sess.Close()

	nodeID = sess.Graph().AddNode("LLM", graph.NodeTypeDefault, nil)
	require.Error(t, sess.SaveWorkflow(context.Background()))

	// The graph stays editable and re-saveable after a validation failure
	fail = false
	require.NoError(t, sess.SaveWorkflow(context.Background()))

	state := sess.Editor().State()
	assert.Nil(t, state.Validation)
	assert.Equal(t, editor.SaveStatusSaved, state.SaveStatus)

	node, _ := sess.Graph().Node(nodeID)
	assert.Empty(t, node.Data.ValidationError)
}

func TestRunTriggersSilentSave(t *testing.T) {
	saved := false
	server := newBackend(t, func(r *mux.Router) {
		r.HandleFunc("/workflows", func(w http.ResponseWriter, req *http.Request) {
			saved = true
			json.NewEncoder(w).Encode(map[string]interface{}{"id": 99})
		}).Methods(http.MethodPost)
		r.HandleFunc("/workflows/{id}/run", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"run_id": 500})
		}).Methods(http.MethodPost)
		r.HandleFunc("/runs/{id}/logs", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"logs": []interface{}{}})
		}).Methods(http.MethodGet)
		r.HandleFunc("/runs", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode([]interface{}{})
		}).Methods(http.MethodGet)
	})

	sess := New(client.New(server.URL), nil, WithTransportFactory(
		func(string) telemetry.Transport { return &scriptedTransport{} },
	))
	defer sess.Close()

	sess.Graph().AddNode("Wait", graph.NodeTypeDefault, nil)

	_, err := sess.RunWorkflow(context.Background())
	require.NoError(t, err)
	assert.True(t, saved, "running an unsaved workflow must save it first")
}

func TestSelectionDrivesInspector(t *testing.T) {
	server := newBackend(t, func(r *mux.Router) {})

	cfg := config.DefaultConfig()
	cfg.Editor.DebounceMS = 20

	sess := New(client.New(server.URL), cfg)
	defer sess.Close()

	id := sess.Graph().AddNode("LLM", graph.NodeTypeDefault, map[string]interface{}{"prompt": "seed"})

	// AddNode selects the node, which binds the inspector to it
	assert.Equal(t, id, sess.Editor().State().Selection.NodeID)
	assert.Equal(t, "seed", sess.Inspector().Field("prompt"))

	sess.Inspector().SetField("prompt", "updated")
	assert.Eventually(t, func() bool {
		config, _ := sess.Graph().NodeConfig(id)
		return config["prompt"] == "updated"
	}, time.Second, 5*time.Millisecond)
}

func TestLoadWorkflowSanitizesAndRestoresSelection(t *testing.T) {
	server := newBackend(t, func(r *mux.Router) {
		r.HandleFunc("/workflows/{id}", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte(`{
				"id": 7, "name": "imported",
				"graph": {
					"nodes": [
						{"id": 1, "data": "not-an-object"},
						{"id": "n2", "data": {"label": "LLM", "config": {"prompt": "hi"}}}
					],
					"edges": [{"id": "e1", "source": 1, "target": "n2"}],
					"selected_node_id": "n2"
				}
			}`))
		}).Methods(http.MethodGet)
	})

	sess := New(client.New(server.URL), nil)
	defer sess.Close()

	require.NoError(t, sess.LoadWorkflow(context.Background(), "7"))

	assert.Equal(t, "7", sess.WorkflowID())
	state := sess.Editor().State()
	assert.Equal(t, "imported", state.WorkflowName)
	assert.Equal(t, "n2", state.Selection.NodeID)

	node, ok := sess.Graph().Node("1")
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{}, node.Data.Config)

	// The inspector followed the restored selection
	assert.Equal(t, "hi", sess.Inspector().Field("prompt"))
}
