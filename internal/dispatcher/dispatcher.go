// Package dispatcher turns inbound command frames into exactly one response
// frame each, running the matching adapter under a deadline.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/metrics"
	"github.com/xiaot623/deskrelay/internal/policy"
	"github.com/xiaot623/deskrelay/internal/protocol"
)

// Gate decides whether a command may run.
type Gate interface {
	Evaluate(ctx context.Context, command string, params json.RawMessage) (policy.Decision, error)
}

// Options bounds command execution.
type Options struct {
	// ScreenshotTimeout applies to screenshot only and is capped by CommandTimeout.
	ScreenshotTimeout time.Duration
	// CommandTimeout is the hard ceiling for every command.
	CommandTimeout time.Duration
}

// Dispatcher routes frames to adapters.
type Dispatcher struct {
	registry *Registry
	gate     Gate
	metrics  *metrics.Metrics
	logger   *zap.Logger
	opts     Options
}

// New creates a dispatcher. gate and m may be nil.
func New(registry *Registry, gate Gate, m *metrics.Metrics, opts Options, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		gate:     gate,
		metrics:  m,
		logger:   logger.With(zap.String("component", "dispatcher")),
		opts:     opts,
	}
}

var errTimeout = errors.New("operation timed out")

// Dispatch handles one raw frame. It always returns a response frame.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) *protocol.ResponseFrame {
	start := time.Now()

	frame, err := protocol.ParseFrame(raw)
	if err != nil {
		var fe *protocol.FrameError
		if !errors.As(err, &fe) {
			fe = &protocol.FrameError{Message: err.Error()}
		}
		d.logger.Warn("rejected frame", zap.String("error", fe.Message), zap.ByteString("command_id", fe.CommandID))
		d.metrics.ObserveCommand("invalid", metrics.OutcomeInvalid, time.Since(start))
		return protocol.Failed(fe.CommandID, fe.Message)
	}

	command := string(frame.Name)
	logger := d.logger.With(zap.String("command", command), zap.ByteString("command_id", frame.CommandID))

	if d.gate != nil {
		if resp := d.checkPolicy(ctx, frame, logger); resp != nil {
			d.metrics.ObserveCommand(command, metrics.OutcomeBlocked, time.Since(start))
			return resp
		}
	}

	adapter, ok := d.registry.Lookup(frame.Name)
	if !ok {
		d.metrics.ObserveCommand(command, metrics.OutcomeFailure, time.Since(start))
		return protocol.Failed(frame.CommandID, fmt.Sprintf("No adapter registered for %s", command))
	}

	result, err := d.execute(ctx, adapter, frame)
	elapsed := time.Since(start)
	switch {
	case errors.Is(err, errTimeout):
		logger.Warn("command timed out", zap.Duration("elapsed", elapsed))
		d.metrics.ObserveCommand(command, metrics.OutcomeTimeout, elapsed)
		return protocol.Failed(frame.CommandID, fmt.Sprintf("%s operation timed out", command))
	case err != nil:
		logger.Warn("command failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		d.metrics.ObserveCommand(command, metrics.OutcomeFailure, elapsed)
		return protocol.Failed(frame.CommandID, err.Error())
	}

	logger.Debug("command completed", zap.Duration("elapsed", elapsed))
	d.metrics.ObserveCommand(command, metrics.OutcomeSuccess, elapsed)
	return protocol.Respond(frame.CommandID, result)
}

// checkPolicy evaluates the params exactly as the client sent them; executor
// defaults such as the left button are not filled in.
func (d *Dispatcher) checkPolicy(ctx context.Context, frame *protocol.Frame, logger *zap.Logger) *protocol.ResponseFrame {
	decision, err := d.gate.Evaluate(ctx, string(frame.Name), frame.RawParams)
	if err != nil {
		logger.Error("policy evaluation failed", zap.Error(err))
		return protocol.Failed(frame.CommandID, "policy evaluation failed")
	}
	if !decision.Allowed() {
		logger.Info("command blocked by policy", zap.String("reason", decision.Reason))
		return protocol.Failed(frame.CommandID, fmt.Sprintf("%s blocked by policy", frame.Name))
	}
	return nil
}

// timeoutFor returns the deadline for a command.
func (d *Dispatcher) timeoutFor(name protocol.CommandName) time.Duration {
	timeout := d.opts.CommandTimeout
	if name == protocol.CommandScreenshot && d.opts.ScreenshotTimeout > 0 {
		if timeout <= 0 || d.opts.ScreenshotTimeout < timeout {
			timeout = d.opts.ScreenshotTimeout
		}
	}
	return timeout
}

// execute runs the adapter in its own goroutine so a stuck native call is
// abandoned at the deadline. Panics become errors.
func (d *Dispatcher) execute(ctx context.Context, adapter Adapter, frame *protocol.Frame) (*protocol.Result, error) {
	if timeout := d.timeoutFor(frame.Name); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		result *protocol.Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("adapter panicked", zap.String("command", string(frame.Name)), zap.Any("panic", r))
				done <- outcome{err: fmt.Errorf("%s failed: internal error", frame.Name)}
			}
		}()
		result, err := adapter.Execute(ctx, frame.Params)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errTimeout
		}
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			return nil, errTimeout
		}
		return out.result, out.err
	}
}
