// Package scheduler starts collection sessions on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/leadscout/hiring-feed-collector/internal/session"
)

// Starter starts a collection session
type Starter interface {
	Start(ctx context.Context, opts session.StartOptions) error
}

// Scheduler wraps robfig/cron and triggers resumed sessions.
type Scheduler struct {
	cron    *cron.Cron
	starter Starter
	spec    string // cron spec, e.g. "@every 6h"
}

// New creates a Scheduler for the given cron spec.
func New(starter Starter, spec string) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		starter: starter,
		spec:    spec,
	}
}

// Start registers the job and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Trigger(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	zap.L().Info("scheduler: cron started", zap.String("spec", s.spec))
	return nil
}

// Stop stops the cron runner and waits for a running trigger to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	zap.L().Info("scheduler: cron stopped")
}

// Trigger starts a resumed session. A session that is already running is
// left alone. It reports whether a session was started.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	err := s.starter.Start(ctx, session.StartOptions{Resume: true})
	switch {
	case err == nil:
		zap.L().Info("scheduler: session started")
		return true
	case errors.Is(err, session.ErrAlreadyRunning):
		zap.L().Debug("scheduler: session already running, skipping")
	default:
		zap.L().Error("scheduler: failed to start session", zap.Error(err))
	}
	return false
}
