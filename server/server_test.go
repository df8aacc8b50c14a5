package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoAgent answers with its input and bills a fixed amount per call.
type echoAgent struct {
	name  string
	caps  []string
	tools int
	err   error
}

var _ core.Agent = (*echoAgent)(nil)

func (a *echoAgent) Name() string           { return a.name }
func (a *echoAgent) Description() string    { return "echo agent " + a.name }
func (a *echoAgent) Capabilities() []string { return a.caps }
func (a *echoAgent) ToolCount() int         { return a.tools }

func (a *echoAgent) Process(ctx context.Context, input string, runCtx *core.RunContext) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	runCtx.Start()
	runCtx.AddCost(10, 0.01)
	runCtx.IncrementStep()
	return "echo: " + input, nil
}

func newTestServer(agents ...core.Agent) (*Server, *supervisor.Supervisor) {
	sup := supervisor.New()
	for _, a := range agents {
		sup.Register(a)
	}
	return New(":0", sup), sup
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(&echoAgent{name: "a"})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_Chat(t *testing.T) {
	srv, _ := newTestServer(&echoAgent{name: "helper"})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/chat",
		`{"message": "hello", "tenant_id": "acme", "user_id": "u1", "budget": 2.0}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "echo: hello", resp.Response)
	assert.Equal(t, "helper", resp.AgentID)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 10, resp.TokensUsed)
	assert.Equal(t, 0.01, resp.CostIncurred)
	assert.Equal(t, 1, resp.StepsTaken)
}

func TestServer_ChatSelectsNamedAgent(t *testing.T) {
	srv, _ := newTestServer(&echoAgent{name: "first"}, &echoAgent{name: "second"})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/chat",
		`{"message": "hi", "agent_id": "second"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "second", resp.AgentID)
}

func TestServer_ChatValidation(t *testing.T) {
	srv, _ := newTestServer(&echoAgent{name: "helper"})
	handler := srv.Handler()

	t.Run("malformed body", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/chat", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing message", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/chat", `{"agent_id": "helper"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown agent", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/chat", `{"message": "hi", "agent_id": "ghost"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("no agents registered", func(t *testing.T) {
		empty, _ := newTestServer()
		rec := doJSON(t, empty.Handler(), http.MethodPost, "/api/v1/chat", `{"message": "hi"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestServer_ChatAgentFailure(t *testing.T) {
	srv, _ := newTestServer(&echoAgent{name: "broken", err: errors.New("provider unavailable")})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/chat", `{"message": "hi"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "provider unavailable")
}

func TestServer_TaskLifecycle(t *testing.T) {
	srv, sup := newTestServer(&echoAgent{name: "worker"})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/tasks", `{"description": "do the thing"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted core.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.ID)

	require.Eventually(t, func() bool {
		task, ok := sup.Task(accepted.ID)
		return ok && task.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond, "task never reached a terminal status")

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/tasks/"+accepted.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var final core.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &final))
	assert.Equal(t, core.TaskCompleted, final.Status)
	assert.Equal(t, "echo: do the thing", final.Result)
	assert.Equal(t, "worker", final.AssignedAgent)
}

func TestServer_TaskValidation(t *testing.T) {
	srv, _ := newTestServer(&echoAgent{name: "worker"})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/tasks", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/tasks/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ListTasks(t *testing.T) {
	srv, sup := newTestServer(&echoAgent{name: "worker"})
	handler := srv.Handler()

	for _, desc := range []string{"first", "second"} {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/tasks", `{"description": "`+desc+`"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	require.Eventually(t, func() bool {
		return len(sup.Tasks(core.TaskCompleted)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []core.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/tasks?status=completed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var completed []core.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &completed))
	assert.Len(t, completed, 2)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/tasks?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []core.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Empty(t, pending)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/tasks?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListAgents(t *testing.T) {
	srv, _ := newTestServer(
		&echoAgent{name: "researcher", caps: []string{"research"}, tools: 3},
		&echoAgent{name: "mathematician", caps: []string{"math"}},
	)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []agentInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 2)

	assert.Equal(t, "researcher", infos[0].Name)
	assert.Equal(t, []string{"research"}, infos[0].Capabilities)
	assert.Equal(t, 3, infos[0].Tools)

	assert.Equal(t, "mathematician", infos[1].Name)
	assert.Zero(t, infos[1].Tools)
}
