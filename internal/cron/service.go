package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/samber/oops"
)

// Service runs the periodic maintenance sweep on a cron schedule with
// seconds granularity. The sweep itself is supplied by the caller; the
// service only owns the timing and the lifecycle.
type Service struct {
	schedule string
	sweep    func(ctx context.Context)

	mu     sync.Mutex
	cron   *rcron.Cron
	cancel context.CancelFunc
	stopCh chan struct{}
}

func NewService(schedule string, sweep func(ctx context.Context)) *Service {
	return &Service{
		schedule: schedule,
		sweep:    sweep,
	}
}

func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	stopCh := make(chan struct{})

	c := rcron.New(rcron.WithSeconds())
	if _, err := c.AddFunc(s.schedule, func() {
		slog.Info("maintenance sweep starting", "component", "cron")
		s.sweep(runCtx)
	}); err != nil {
		cancel()
		return oops.Errorf("register sweep schedule %q: %w", s.schedule, err)
	}

	s.mu.Lock()
	s.cron = c
	s.cancel = cancel
	s.stopCh = stopCh
	s.mu.Unlock()

	c.Start()
	slog.Info("scheduler started", "component", "cron", "schedule", s.schedule)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
		}
	}()

	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	stopCh := s.stopCh
	s.cron = nil
	s.cancel = nil
	s.stopCh = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stopCh != nil {
		close(stopCh)
	}
	if c != nil {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			slog.Warn("scheduler stop timed out waiting for a running sweep",
				"component", "cron")
		}
		slog.Info("scheduler stopped", "component", "cron")
	}
}
