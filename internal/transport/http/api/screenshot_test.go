package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/commandclient"
	"github.com/xiaot623/deskrelay/internal/protocol"
)

// newTestExecutor answers every screenshot frame with reply(params).
func newTestExecutor(t *testing.T, reply func(id json.RawMessage, params json.RawMessage) *protocol.ResponseFrame) *commandclient.Client {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var frame protocol.CommandFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if err := conn.WriteJSON(reply(frame.CommandID, frame.Params)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	client := commandclient.New("ws"+strings.TrimPrefix(srv.URL, "http"), commandclient.Options{}, zap.NewNop())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestAgentScreenshot(t *testing.T) {
	gotParams := make(chan json.RawMessage, 1)
	executor := newTestExecutor(t, func(id, params json.RawMessage) *protocol.ResponseFrame {
		gotParams <- params
		return protocol.ScreenshotSucceeded(id, &protocol.ScreenshotResult{Image: "aGk=", Width: 2, Height: 1, Format: "png"})
	})

	env := newTestHandler(t)
	env.handler.WithScreenshots(executor)
	id := env.createSession(t)

	c, rec := newContext(http.MethodGet, "/agents/"+id+"/screenshot?format=png&quality=70", "", id)
	require.NoError(t, env.handler.AgentScreenshot(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "aGk=", out["image"])
	assert.Equal(t, float64(2), out["width"])
	assert.Equal(t, "png", out["format"])
	assert.JSONEq(t, `{"format":"png","quality":70}`, string(<-gotParams))
}

func TestAgentScreenshotExecutorFailure(t *testing.T) {
	executor := newTestExecutor(t, func(id, _ json.RawMessage) *protocol.ResponseFrame {
		return protocol.Failed(id, "screenshot operation timed out")
	})

	env := newTestHandler(t)
	env.handler.WithScreenshots(executor)
	id := env.createSession(t)

	c, rec := newContext(http.MethodGet, "/agents/"+id+"/screenshot", "", id)
	require.NoError(t, env.handler.AgentScreenshot(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"screenshot operation timed out"}`, rec.Body.String())
}

func TestAgentScreenshotExecutorUnreachable(t *testing.T) {
	env := newTestHandler(t)
	env.handler.WithScreenshots(commandclient.New("ws://127.0.0.1:1/ws", commandclient.Options{}, zap.NewNop()))
	id := env.createSession(t)

	c, rec := newContext(http.MethodGet, "/agents/"+id+"/screenshot", "", id)
	require.NoError(t, env.handler.AgentScreenshot(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var out ScreenshotFailure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "Failed to get screenshot from executor")
}

func TestAgentScreenshotUnknownSession(t *testing.T) {
	env := newTestHandler(t)
	env.handler.WithScreenshots(newTestExecutor(t, func(id, _ json.RawMessage) *protocol.ResponseFrame {
		return protocol.Succeeded(id)
	}))

	c, rec := newContext(http.MethodGet, "/agents/nope/screenshot", "", "nope")
	require.NoError(t, env.handler.AgentScreenshot(c))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
