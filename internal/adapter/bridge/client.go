// Package bridge calls the agent-execution backend over HTTP.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/domain"
	"github.com/xiaot623/deskrelay/internal/logging"
	"github.com/xiaot623/deskrelay/internal/metrics"
)

// MinTimeout is the floor for backend calls; agent turns are slow.
const MinTimeout = 30 * time.Second

// maxLoggedBody bounds response bodies copied into logs.
const maxLoggedBody = 512

// Operations, used as metric labels.
const (
	OpCreate = "create"
	OpRun    = "run"
)

// Result is either a successful payload or a bridge error, never both.
type Result struct {
	payload json.RawMessage
	err     *domain.BridgeError
}

// Ok builds a successful result.
func Ok(payload json.RawMessage) Result {
	return Result{payload: payload}
}

// Fail builds an error result.
func Fail(message string, status int, detail json.RawMessage) Result {
	return Result{err: &domain.BridgeError{Message: message, Status: status, Detail: detail}}
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.err == nil }

// Payload is the backend response body on success.
func (r Result) Payload() json.RawMessage { return r.payload }

// Err is the failure, or nil on success.
func (r Result) Err() *domain.BridgeError { return r.err }

// AgentConfig is the body of an agent creation request.
type AgentConfig struct {
	AgentID      string `json:"agent_id"`
	Instructions string `json:"instructions"`
	Model        string `json:"model"`
}

type runRequest struct {
	Input string `json:"input"`
}

// Client is the backend bridge HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewClient creates a bridge client. timeout is raised to MinTimeout.
func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Client {
	if timeout < MinTimeout {
		timeout = MinTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		metrics:    m,
		logger:     logger.With(zap.String("component", "bridge")),
	}
}

// CreateAgent registers an agent with the backend.
func (c *Client) CreateAgent(ctx context.Context, agentID, instructions, model string) Result {
	endpoint := c.baseURL + "/agents"
	c.logger.Info("creating agent",
		zap.String("url", endpoint),
		zap.Any("config", logging.Redact(map[string]interface{}{
			"agent_id":     agentID,
			"instructions": instructions,
			"model":        model,
		})))

	res := c.post(ctx, OpCreate, endpoint, AgentConfig{
		AgentID:      agentID,
		Instructions: instructions,
		Model:        model,
	}, "Error creating agent", "Exception in createAgent")
	if res.OK() {
		c.logger.Info("agent created", zap.String("agent_id", agentID))
	}
	return res
}

// RunAgent runs one agent turn with input.
func (c *Client) RunAgent(ctx context.Context, agentID, input string) Result {
	endpoint := fmt.Sprintf("%s/agents/%s/run", c.baseURL, url.PathEscape(agentID))
	c.logger.Info("running agent",
		zap.String("agent_id", agentID),
		zap.Any("request", logging.Redact(map[string]interface{}{"input": input})))

	return c.post(ctx, OpRun, endpoint, runRequest{Input: input},
		"Error running agent", "Exception in runAgent")
}

// post sends body as JSON and folds every failure into the error shape.
func (c *Client) post(ctx context.Context, op, endpoint string, body interface{}, statusPrefix, transportPrefix string) Result {
	res := c.do(ctx, endpoint, body, statusPrefix, transportPrefix)
	outcome := metrics.OutcomeSuccess
	if !res.OK() {
		outcome = metrics.OutcomeFailure
		c.logger.Error("bridge call failed",
			zap.String("op", op),
			zap.Int("status", res.err.Status),
			zap.String("message", logging.Truncate(res.err.Message, maxLoggedBody)))
	}
	c.metrics.BridgeRequest(op, outcome)
	return res
}

func (c *Client) do(ctx context.Context, endpoint string, body interface{}, statusPrefix, transportPrefix string) Result {
	payload, err := json.Marshal(body)
	if err != nil {
		return Fail(fmt.Sprintf("%s: %v", transportPrefix, err), 0, nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Fail(fmt.Sprintf("%s: %v", transportPrefix, err), 0, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Fail(fmt.Sprintf("%s: %v", transportPrefix, err), 0, nil)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Fail(fmt.Sprintf("%s: %v", transportPrefix, err), resp.StatusCode, nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var detail json.RawMessage
		if json.Valid(data) {
			detail = data
		}
		return Fail(fmt.Sprintf("%s: %d - %s", statusPrefix, resp.StatusCode, strings.TrimSpace(string(data))), resp.StatusCode, detail)
	}

	if !json.Valid(data) {
		return Fail(fmt.Sprintf("%s: malformed response body", transportPrefix), resp.StatusCode, nil)
	}
	return Ok(data)
}
