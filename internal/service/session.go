package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/deskrelay/internal/adapter/bridge"
	"github.com/xiaot623/deskrelay/internal/domain"
)

// CreateInput describes a new configuration and its session.
type CreateInput struct {
	Name        string
	Description *string
	Parameters  map[string]any
}

// Create stores a configuration and a fresh session in created status.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Session, error) {
	cfg := &domain.Configuration{
		Name:        in.Name,
		Description: in.Description,
		Parameters:  in.Parameters,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateConfiguration(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to create configuration: %w", err)
	}

	now := s.now()
	session := &domain.Session{
		SessionID:       uuid.New().String(),
		ConfigurationID: cfg.ID,
		Status:          domain.SessionStatusCreated,
		Metadata:        json.RawMessage(`{}`),
		LastActiveAt:    now,
		CreatedAt:       now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.metrics.SessionTransition(string(domain.SessionStatusCreated))
	s.logger.Info("session created",
		zap.String("session_id", session.SessionID),
		zap.Int64("configuration_id", cfg.ID))
	return session, nil
}

// Start registers the session's agent with the backend and marks it running.
// Starting a running session is a no-op; concurrent starts share one backend
// call, which is not cancelled when the caller that began it goes away.
func (s *Service) Start(ctx context.Context, sessionID string) (*domain.Session, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.starts.DoChan(sessionID, func() (interface{}, error) {
		return s.start(shared, sessionID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Session), nil
	}
}

func (s *Service) start(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch {
	case session.Status == domain.SessionStatusRunning:
		return session, nil
	case !session.Status.CanTransition(domain.SessionStatusRunning):
		return nil, fmt.Errorf("%w: session %s is %s", domain.ErrInvalidState, sessionID, session.Status)
	}

	cfg, err := s.store.GetConfiguration(ctx, session.ConfigurationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	instructions, ok := cfg.StringParam(domain.ParamInstructions)
	if !ok {
		instructions = s.config.DefaultInstructions
	}
	model, ok := cfg.StringParam(domain.ParamModel)
	if !ok {
		model = s.config.DefaultModel
	}

	res := s.bridge.CreateAgent(ctx, sessionID, instructions, model)
	if !res.OK() {
		s.logger.Warn("agent start failed, session left unchanged",
			zap.String("session_id", sessionID),
			zap.Error(res.Err()))
		return nil, res.Err()
	}

	now := s.now()
	changed, err := s.store.TransitionSessionStatus(ctx, sessionID, session.Status, domain.SessionStatusRunning, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	if !changed {
		// Someone else moved the session; report what is stored.
		return s.lookup(ctx, sessionID)
	}

	s.metrics.SessionTransition(string(domain.SessionStatusRunning))
	s.logger.Info("session started", zap.String("session_id", sessionID), zap.String("model", model))

	session.Status = domain.SessionStatusRunning
	session.LastActiveAt = now
	return session, nil
}

// Interact forwards input to the running session's agent and returns the
// backend result unchanged. Activity is refreshed whatever the outcome.
func (s *Service) Interact(ctx context.Context, sessionID, input string) (bridge.Result, error) {
	session, err := s.lookup(ctx, sessionID)
	if err != nil {
		return bridge.Result{}, err
	}
	if session.Status != domain.SessionStatusRunning {
		return bridge.Result{}, fmt.Errorf("%w: Session is not running", domain.ErrInvalidState)
	}

	res := s.bridge.RunAgent(ctx, sessionID, input)

	if _, err := s.store.TouchSession(context.WithoutCancel(ctx), sessionID, s.now()); err != nil {
		s.logger.Warn("failed to refresh session activity", zap.String("session_id", sessionID), zap.Error(err))
	}
	if !res.OK() {
		s.logger.Warn("agent run failed", zap.String("session_id", sessionID), zap.Error(res.Err()))
	}
	return res, nil
}

// Status returns the session.
func (s *Service) Status(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.lookup(ctx, sessionID)
}

// Get returns the session with its configuration.
func (s *Service) Get(ctx context.Context, sessionID string) (*domain.SessionDetail, error) {
	detail, err := s.store.GetSessionDetail(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if detail == nil {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	return detail, nil
}

// List returns every session, most recently active first.
func (s *Service) List(ctx context.Context) ([]domain.SessionSummary, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (s *Service) lookup(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	return session, nil
}
