// Package service implements the session coordinator: session creation, agent
// start and interaction, and read models over the session store.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xiaot623/deskrelay/internal/adapter/bridge"
	"github.com/xiaot623/deskrelay/internal/config"
	"github.com/xiaot623/deskrelay/internal/metrics"
	"github.com/xiaot623/deskrelay/internal/repository"
)

// Bridge is the agent-execution backend.
type Bridge interface {
	CreateAgent(ctx context.Context, agentID, instructions, model string) bridge.Result
	RunAgent(ctx context.Context, agentID, input string) bridge.Result
}

type Service struct {
	store   repository.Store
	bridge  Bridge
	config  *config.Config
	metrics *metrics.Metrics
	logger  *zap.Logger

	// starts collapses concurrent start calls per session id.
	starts singleflight.Group
	now    func() time.Time
}

func New(store repository.Store, b Bridge, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		bridge:  b,
		config:  cfg,
		metrics: m,
		logger:  logger.With(zap.String("component", "coordinator")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
