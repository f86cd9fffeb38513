package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmartin/floweditor/pkg/auth"
	"github.com/tcmartin/floweditor/pkg/graph"
	"github.com/tcmartin/floweditor/pkg/models"
)

// newTestBackend spins up a mock API with mux routing
func newTestBackend(t *testing.T, configure func(r *mux.Router)) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	configure(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func TestSaveWorkflowReturnsNumericIDAsString(t *testing.T) {
	server := newTestBackend(t, func(r *mux.Router) {
		r.HandleFunc("/workflows", func(w http.ResponseWriter, req *http.Request) {
			var wf Workflow
			require.NoError(t, json.NewDecoder(req.Body).Decode(&wf))
			assert.Equal(t, "my workflow", wf.Name)
			json.NewEncoder(w).Encode(map[string]interface{}{"id": 99, "name": wf.Name})
		}).Methods(http.MethodPost)
	})

	c := New(server.URL)
	saved, err := c.SaveWorkflow(context.Background(), &Workflow{Name: "my workflow"})
	require.NoError(t, err)
	assert.Equal(t, "99", saved.ID.String())
}

func TestSaveWorkflowStructuredValidationError(t *testing.T) {
	server := newTestBackend(t, func(r *mux.Router) {
		r.HandleFunc("/workflows", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"message": "LLM node missing prompt",
				"node_id": "n1",
			})
		}).Methods(http.MethodPost)
	})

	c := New(server.URL)
	_, err := c.SaveWorkflow(context.Background(), &Workflow{Name: "wf"})

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "LLM node missing prompt", verr.Message)
	assert.Equal(t, "n1", verr.NodeID.String())
}

func TestRunWorkflowNumericRunID(t *testing.T) {
	server := newTestBackend(t, func(r *mux.Router) {
		r.HandleFunc("/workflows/{id}/run", func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "99", mux.Vars(req)["id"])
			json.NewEncoder(w).Encode(map[string]interface{}{"run_id": 500})
		}).Methods(http.MethodPost)
	})

	c := New(server.URL)
	runID, err := c.RunWorkflow(context.Background(), "99")
	require.NoError(t, err)
	assert.Equal(t, "500", runID)
}

func TestListRunsPaginatedShape(t *testing.T) {
	server := newTestBackend(t, func(r *mux.Router) {
		r.HandleFunc("/runs", func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "99", req.URL.Query().Get("workflow_id"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"items": []map[string]interface{}{{"id": 500, "status": "running"}},
				"total": 1,
			})
		}).Methods(http.MethodGet)
	})

	c := New(server.URL)
	runs, err := c.ListRuns(context.Background(), "99")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "500", runs[0].ID.String())
}

func TestListRunsBareArrayShape(t *testing.T) {
	server := newTestBackend(t, func(r *mux.Router) {
		r.HandleFunc("/runs", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": "500", "status": "success"},
				{"id": "501", "status": "failed"},
			})
		}).Methods(http.MethodGet)
	})

	c := New(server.URL)
	runs, err := c.ListRuns(context.Background(), "99")
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestListRunsMalformedPayloadCoercesToEmpty(t *testing.T) {
	server := newTestBackend(t, func(r *mux.Router) {
		r.HandleFunc("/runs", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte(`"garbage"`))
		}).Methods(http.MethodGet)
	})

	c := New(server.URL)
	runs, err := c.ListRuns(context.Background(), "99")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestGetRunLogs(t *testing.T) {
	server := newTestBackend(t, func(r *mux.Router) {
		r.HandleFunc("/runs/{id}/logs", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"logs": []map[string]interface{}{
					{"id": "l1", "message": "initial log", "level": "info"},
				},
			})
		}).Methods(http.MethodGet)
	})

	c := New(server.URL)
	logs, err := c.GetRunLogs(context.Background(), "500")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "initial log", logs[0].Message)
}

func TestGetWorkflowLooseGraphPayload(t *testing.T) {
	server := newTestBackend(t, func(r *mux.Router) {
		r.HandleFunc("/workflows/{id}", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte(`{
				"id": 99, "name": "wf",
				"graph": {"nodes": [{"id": 1, "data": "junk"}], "edges": []}
			}`))
		}).Methods(http.MethodGet)
	})

	c := New(server.URL)
	wf, err := c.GetWorkflow(context.Background(), "99")
	require.NoError(t, err)
	assert.Equal(t, "99", wf.ID.String())

	// Sanitation happens in the graph store, not the client
	g := graph.NewStore()
	g.Load(wf.Graph)
	node, ok := g.Node("1")
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{}, node.Data.Config)
}

func TestGetNodeSchema(t *testing.T) {
	server := newTestBackend(t, func(r *mux.Router) {
		r.HandleFunc("/node_schema/{label}", func(w http.ResponseWriter, req *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"properties": map[string]interface{}{"api_key": map[string]interface{}{"type": "string"}},
			})
		}).Methods(http.MethodGet)
	})

	c := New(server.URL)
	schema, err := c.GetNodeSchema(context.Background(), "Acme Widget")
	require.NoError(t, err)
	assert.Contains(t, schema, "properties")
}

func TestBearerTokenHeader(t *testing.T) {
	var gotAuth string
	server := newTestBackend(t, func(r *mux.Router) {
		r.HandleFunc("/runs", func(w http.ResponseWriter, req *http.Request) {
			gotAuth = req.Header.Get("Authorization")
			json.NewEncoder(w).Encode([]interface{}{})
		}).Methods(http.MethodGet)
	})

	c := New(server.URL, WithTokenSource(auth.NewTokenSource("opaque-token")))
	_, err := c.ListRuns(context.Background(), "99")
	require.NoError(t, err)
	assert.Equal(t, "Bearer opaque-token", gotAuth)
}

func TestUnexpectedStatusIsError(t *testing.T) {
	server := newTestBackend(t, func(r *mux.Router) {
		r.HandleFunc("/workflows/{id}", func(w http.ResponseWriter, req *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}).Methods(http.MethodGet)
	})

	c := New(server.URL)
	_, err := c.GetWorkflow(context.Background(), "99")
	require.Error(t, err)

	var verr *models.ValidationError
	assert.False(t, errors.As(err, &verr))
}

func TestStreamURL(t *testing.T) {
	c := New("http://localhost:8080/api/v1/")
	assert.Equal(t, "http://localhost:8080/api/v1/runs/500/stream", c.StreamURL("500"))
}
