package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FollowupScheduler runs the follow-up sweep on a fixed interval, independent of request traffic.
type FollowupScheduler struct {
	service  FollowupService
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFollowupScheduler constructs a scheduler. Call Start to begin ticking.
func NewFollowupScheduler(service FollowupService, interval time.Duration, logger zerolog.Logger) *FollowupScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &FollowupScheduler{
		service:  service,
		interval: interval,
		logger:   logger.With().Str("component", "followup_scheduler").Logger(),
	}
}

// Start launches the ticker loop. A sweep runs immediately, then once per interval.
func (s *FollowupScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
	s.logger.Info().Dur("interval", s.interval).Msg("followup scheduler started")
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (s *FollowupScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *FollowupScheduler) runOnce(ctx context.Context) {
	if _, err := s.service.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("followup sweep reported errors")
	}
}
