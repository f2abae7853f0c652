package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCommand(t *testing.T) {
	m := New()
	m.ObserveCommand("click", OutcomeSuccess, 10*time.Millisecond)
	m.ObserveCommand("click", OutcomeSuccess, 20*time.Millisecond)
	m.ObserveCommand("click", OutcomeTimeout, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("click", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("click", OutcomeTimeout)))
}

func TestConnectionGauge(t *testing.T) {
	m := New()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsConnections))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCommand("move", OutcomeSuccess, time.Millisecond)
	m.ConnectionOpened()
	m.SessionTransition("running")
	m.BridgeRequest("run", OutcomeSuccess)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.SessionTransition("running")
	m.BridgeRequest("create", OutcomeFailure)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `deskrelay_session_transitions_total{to="running"} 1`)
	assert.Contains(t, string(body), `deskrelay_bridge_requests_total{op="create",outcome="failure"} 1`)
}
