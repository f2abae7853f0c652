package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/adapter/bridge"
	"github.com/xiaot623/deskrelay/internal/config"
	"github.com/xiaot623/deskrelay/internal/domain"
	"github.com/xiaot623/deskrelay/internal/metrics"
	"github.com/xiaot623/deskrelay/internal/repository"
	"github.com/xiaot623/deskrelay/internal/service"
	"github.com/xiaot623/deskrelay/internal/supervisor"
	"github.com/xiaot623/deskrelay/internal/testutil"
)

type fakeBridge struct {
	mu        sync.Mutex
	createRes bridge.Result
	runRes    bridge.Result
	runs      []string
}

func (f *fakeBridge) CreateAgent(ctx context.Context, agentID, instructions, model string) bridge.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createRes
}

func (f *fakeBridge) RunAgent(ctx context.Context, agentID, input string) bridge.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, input)
	return f.runRes
}

type testEnv struct {
	handler *Handler
	bridge  *fakeBridge
	store   *repository.SQLiteStore
}

func newTestHandler(t *testing.T) *testEnv {
	t.Helper()

	store := testutil.NewTestStore(t)
	fb := &fakeBridge{
		createRes: bridge.Ok(json.RawMessage(`{"success":true}`)),
		runRes:    bridge.Ok(json.RawMessage(`{"output":"done","steps":2}`)),
	}
	cfg := config.Default()
	svc := service.New(store, fb, cfg, metrics.New(), zap.NewNop())
	sup := supervisor.NewRegistry(map[string]config.ServiceSpec{
		"sleeper": {Command: []string{"sleep", "30"}},
	}, zap.NewNop())
	t.Cleanup(func() { _ = sup.Close(context.Background()) })

	return &testEnv{
		handler: NewHandler(svc, sup, metrics.New()),
		bridge:  fb,
		store:   store,
	}
}

func newContext(method, target, body string, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if len(params) > 0 {
		c.SetParamNames("session_id")
		c.SetParamValues(params...)
	}
	return c, rec
}

func (env *testEnv) createSession(t *testing.T) string {
	t.Helper()

	c, rec := newContext(http.MethodPost, "/agents", `{"name":"demo","parameters":{"model":"m1"}}`)
	require.NoError(t, env.handler.CreateAgent(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.SessionID
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestHandler(t)

	c, rec := newContext(http.MethodGet, "/health", "")
	require.NoError(t, env.handler.Health(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","version":"0.1.0"}`, rec.Body.String())
}

func TestCreateAgent(t *testing.T) {
	env := newTestHandler(t)

	t.Run("creates session", func(t *testing.T) {
		c, rec := newContext(http.MethodPost, "/agents", `{"name":"demo","description":"d","parameters":{"instructions":"be brief"}}`)
		require.NoError(t, env.handler.CreateAgent(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp SessionStateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.SessionID)
		assert.Equal(t, domain.SessionStatusCreated, resp.Status)
	})

	t.Run("missing name", func(t *testing.T) {
		c, rec := newContext(http.MethodPost, "/agents", `{"parameters":{}}`)
		require.NoError(t, env.handler.CreateAgent(c))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.True(t, decodeError(t, rec).Error)
	})

	t.Run("malformed body", func(t *testing.T) {
		c, rec := newContext(http.MethodPost, "/agents", `{"name":`)
		require.NoError(t, env.handler.CreateAgent(c))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestStartAgent(t *testing.T) {
	t.Run("starts session", func(t *testing.T) {
		env := newTestHandler(t)
		id := env.createSession(t)

		c, rec := newContext(http.MethodPost, "/agents/"+id+"/start", "", id)
		require.NoError(t, env.handler.StartAgent(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"session_id":"`+id+`","status":"running"}`, rec.Body.String())
	})

	t.Run("unknown session", func(t *testing.T) {
		env := newTestHandler(t)

		c, rec := newContext(http.MethodPost, "/agents/nope/start", "", "nope")
		require.NoError(t, env.handler.StartAgent(c))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Session not found", decodeError(t, rec).Message)
	})

	t.Run("bridge failure leaves session created", func(t *testing.T) {
		env := newTestHandler(t)
		env.bridge.createRes = bridge.Fail("Error creating agent: 500 - boom", 500, json.RawMessage(`{"detail":"boom"}`))
		id := env.createSession(t)

		c, rec := newContext(http.MethodPost, "/agents/"+id+"/start", "", id)
		require.NoError(t, env.handler.StartAgent(c))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		resp := decodeError(t, rec)
		assert.True(t, resp.Error)
		assert.Equal(t, "Error creating agent: 500 - boom", resp.Message)
		assert.NotNil(t, resp.Details)

		session, err := env.store.GetSession(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionStatusCreated, session.Status)
	})

	t.Run("terminal session", func(t *testing.T) {
		env := newTestHandler(t)
		id := env.createSession(t)
		_, err := env.store.UpdateSessionStatus(context.Background(), id, domain.SessionStatusStopped, time.Now().UTC())
		require.NoError(t, err)

		c, rec := newContext(http.MethodPost, "/agents/"+id+"/start", "", id)
		require.NoError(t, env.handler.StartAgent(c))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestInteractAgent(t *testing.T) {
	t.Run("not running", func(t *testing.T) {
		env := newTestHandler(t)
		id := env.createSession(t)

		c, rec := newContext(http.MethodPost, "/agents/"+id+"/interact", `{"input":"hi"}`, id)
		require.NoError(t, env.handler.InteractAgent(c))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":true,"message":"Session is not running"}`, rec.Body.String())
		assert.Empty(t, env.bridge.runs)
	})

	t.Run("relays payload", func(t *testing.T) {
		env := newTestHandler(t)
		id := env.createSession(t)
		c, _ := newContext(http.MethodPost, "/agents/"+id+"/start", "", id)
		require.NoError(t, env.handler.StartAgent(c))

		c, rec := newContext(http.MethodPost, "/agents/"+id+"/interact", `{"input":"open the browser"}`, id)
		require.NoError(t, env.handler.InteractAgent(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"output":"done","steps":2}`, rec.Body.String())
		assert.Equal(t, []string{"open the browser"}, env.bridge.runs)
	})

	t.Run("relays bridge error", func(t *testing.T) {
		env := newTestHandler(t)
		id := env.createSession(t)
		c, _ := newContext(http.MethodPost, "/agents/"+id+"/start", "", id)
		require.NoError(t, env.handler.StartAgent(c))
		env.bridge.runRes = bridge.Fail("Exception in runAgent: connection refused", 0, nil)

		c, rec := newContext(http.MethodPost, "/agents/"+id+"/interact", `{"input":"hi"}`, id)
		require.NoError(t, env.handler.InteractAgent(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"error":true,"message":"Exception in runAgent: connection refused"}`, rec.Body.String())
	})

	t.Run("missing input", func(t *testing.T) {
		env := newTestHandler(t)
		id := env.createSession(t)

		c, rec := newContext(http.MethodPost, "/agents/"+id+"/interact", `{}`, id)
		require.NoError(t, env.handler.InteractAgent(c))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAgentStatusAndSessions(t *testing.T) {
	env := newTestHandler(t)
	first := env.createSession(t)
	second := env.createSession(t)

	c, rec := newContext(http.MethodGet, "/agents/"+first+"/status", "", first)
	require.NoError(t, env.handler.AgentStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	var status SessionStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, first, status.SessionID)
	assert.Equal(t, domain.SessionStatusCreated, status.Status)
	assert.False(t, status.LastActiveAt.IsZero())

	c, rec = newContext(http.MethodGet, "/sessions", "")
	require.NoError(t, env.handler.ListSessions(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	var list []domain.SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	ids := []string{list[0].SessionID, list[1].SessionID}
	assert.ElementsMatch(t, []string{first, second}, ids)
	assert.Equal(t, "demo", list[0].Name)

	c, rec = newContext(http.MethodGet, "/sessions/"+second, "", second)
	require.NoError(t, env.handler.GetSession(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	var detail domain.SessionDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, second, detail.SessionID)
	assert.Equal(t, "demo", detail.Configuration.Name)
	assert.Equal(t, "m1", detail.Configuration.Parameters["model"])

	c, rec = newContext(http.MethodGet, "/sessions/missing", "", "missing")
	require.NoError(t, env.handler.GetSession(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessionsEmpty(t *testing.T) {
	env := newTestHandler(t)

	c, rec := newContext(http.MethodGet, "/sessions", "")
	require.NoError(t, env.handler.ListSessions(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSystemServices(t *testing.T) {
	env := newTestHandler(t)

	c, rec := newContext(http.MethodPost, "/system/start", `{"service":"unknown"}`)
	require.NoError(t, env.handler.SystemStart(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Invalid service specified"}`, rec.Body.String())

	c, rec = newContext(http.MethodPost, "/system/start", `{"service":"sleeper"}`)
	require.NoError(t, env.handler.SystemStart(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Service started successfully"}`, rec.Body.String())

	c, rec = newContext(http.MethodGet, "/system/status", "")
	require.NoError(t, env.handler.SystemStatus(c))
	var statuses map[string]supervisor.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Contains(t, statuses, "sleeper_service")
	assert.True(t, statuses["sleeper_service"].Running)
	assert.NotNil(t, statuses["sleeper_service"].PID)

	c, rec = newContext(http.MethodPost, "/system/stop", `{"service":"sleeper"}`)
	require.NoError(t, env.handler.SystemStop(c))
	assert.JSONEq(t, `{"success":true,"message":"Service stopped successfully"}`, rec.Body.String())

	c, rec = newContext(http.MethodPost, "/system/stop", `{"service":"sleeper"}`)
	require.NoError(t, env.handler.SystemStop(c))
	assert.JSONEq(t, `{"success":false,"message":"Failed to stop service"}`, rec.Body.String())
}
