// Package policy gates executor commands through an OPA rego policy.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Decision is the outcome of evaluating one command.
type Decision struct {
	Decision string
	Reason   string
}

// Allowed reports whether the command may run.
func (d Decision) Allowed() bool {
	return d.Decision != DecisionBlock
}

// NewEngine creates a new policy engine with the given policy content.
// The module must be in package command_policy and define decision.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.command_policy"),
		rego.Module("command_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadEngine reads the policy from path, or uses DefaultPolicy when path is empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks one command. params is the params object as the client
// sent it, without executor defaults, and may be nil.
func (e *Engine) Evaluate(ctx context.Context, command string, params json.RawMessage) (Decision, error) {
	input := map[string]interface{}{
		"command": command,
		"params":  map[string]interface{}{},
	}
	if len(params) > 0 && string(params) != "null" {
		var decoded interface{}
		if err := json.Unmarshal(params, &decoded); err != nil {
			return Decision{}, fmt.Errorf("failed to decode params: %w", err)
		}
		input["params"] = decoded
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Decision: DecisionAllow, Reason: "default"}, nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{Decision: DecisionAllow, Reason: "unexpected return type"}, nil
	}

	out := Decision{Decision: DecisionAllow}
	if s, ok := doc["decision"].(string); ok {
		out.Decision = s
	}
	if s, ok := doc["reason"].(string); ok {
		out.Reason = s
	}
	return out, nil
}

// DefaultPolicy allows every command.
const DefaultPolicy = `
package command_policy

default decision = "allow"
`
