// Package supervisor starts, stops and reports on the named helper processes
// the coordinator manages.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/xiaot623/deskrelay/internal/config"
)

var (
	// ErrUnknownService is returned for names absent from the registry.
	ErrUnknownService = errors.New("unknown service")
	// ErrNotRunning is returned when stopping a service that is not running.
	ErrNotRunning = errors.New("service not running")
)

// DefaultStopTimeout is how long Stop waits after SIGTERM before killing.
const DefaultStopTimeout = 5 * time.Second

// Status reports one service.
type Status struct {
	Running bool `json:"running"`
	PID     *int `json:"pid"`
}

type process struct {
	cmd    *exec.Cmd
	done   chan struct{}
	output *zapio.Writer
	err    error
}

func (p *process) running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Registry owns the managed processes.
type Registry struct {
	specs       map[string]config.ServiceSpec
	stopTimeout time.Duration
	logger      *zap.Logger

	mu    sync.Mutex
	procs map[string]*process
}

// NewRegistry creates a registry for specs.
func NewRegistry(specs map[string]config.ServiceSpec, logger *zap.Logger) *Registry {
	return &Registry{
		specs:       specs,
		stopTimeout: DefaultStopTimeout,
		logger:      logger.With(zap.String("component", "supervisor")),
		procs:       make(map[string]*process),
	}
}

// Names lists the configured services in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is configured.
func (r *Registry) Known(name string) bool {
	_, ok := r.specs[name]
	return ok
}

// Start launches the service. Starting a running service is a no-op.
func (r *Registry) Start(name string) error {
	spec, ok := r.specs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	if len(spec.Command) == 0 {
		return fmt.Errorf("service %s has no command", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.procs[name]; ok && p.running() {
		r.logger.Info("service already running", zap.String("service", name), zap.Int("pid", p.cmd.Process.Pid))
		return nil
	}

	output := &zapio.Writer{
		Log:   r.logger.With(zap.String("service", name)),
		Level: zapcore.InfoLevel,
	}
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Stdout = output
	cmd.Stderr = output

	if err := cmd.Start(); err != nil {
		r.logger.Error("failed to start service", zap.String("service", name), zap.Error(err))
		return fmt.Errorf("start %s: %w", name, err)
	}

	p := &process{cmd: cmd, done: make(chan struct{}), output: output}
	r.procs[name] = p
	go func() {
		p.err = cmd.Wait()
		p.output.Close()
		close(p.done)
		r.logger.Info("service exited", zap.String("service", name), zap.Error(p.err))
	}()

	r.logger.Info("started service", zap.String("service", name), zap.Int("pid", cmd.Process.Pid))
	return nil
}

// Stop terminates the service, killing it if it outlives the stop timeout.
func (r *Registry) Stop(ctx context.Context, name string) error {
	if !r.Known(name) {
		return fmt.Errorf("%w: %s", ErrUnknownService, name)
	}

	r.mu.Lock()
	p, ok := r.procs[name]
	delete(r.procs, name)
	r.mu.Unlock()

	if !ok || !p.running() {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}

	pid := p.cmd.Process.Pid
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = p.cmd.Process.Kill()
	}

	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		r.logger.Warn("service ignored SIGTERM, killing", zap.String("service", name), zap.Int("pid", pid))
		_ = p.cmd.Process.Kill()
		<-p.done
	case <-ctx.Done():
		_ = p.cmd.Process.Kill()
		<-p.done
		return ctx.Err()
	}

	r.logger.Info("stopped service", zap.String("service", name), zap.Int("pid", pid))
	return nil
}

// Status reports whether the service is running and its pid.
func (r *Registry) Status(name string) (Status, error) {
	if !r.Known(name) {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[name]
	if !ok || !p.running() {
		return Status{}, nil
	}
	pid := p.cmd.Process.Pid
	return Status{Running: true, PID: &pid}, nil
}

// StatusAll reports every configured service.
func (r *Registry) StatusAll() map[string]Status {
	out := make(map[string]Status, len(r.specs))
	for _, name := range r.Names() {
		status, _ := r.Status(name)
		out[name] = status
	}
	return out
}

// Close stops every running service.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	var running []string
	for name, p := range r.procs {
		if p.running() {
			running = append(running, name)
		}
	}
	r.mu.Unlock()

	var result *multierror.Error
	for _, name := range running {
		if err := r.Stop(ctx, name); err != nil && !errors.Is(err, ErrNotRunning) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
