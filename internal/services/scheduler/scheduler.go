package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/spabas/libreo-bridge/internal/common"
	"github.com/spabas/libreo-bridge/internal/services/mirror"
)

// Scheduler runs the periodic re-polls: user info every minute, charging
// sessions every five minutes and organizations every twenty minutes by
// default. The org re-sync doubles as the realtime channel's only
// reconnect path, since activation replaces the open channel.
type Scheduler struct {
	config *common.Config
	mirror *mirror.Service
	cron   *cron.Cron
	logger arbor.ILogger
}

// NewScheduler creates the polling scheduler
func NewScheduler(config *common.Config, mirrorService *mirror.Service, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		config: config,
		mirror: mirrorService,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers and starts the polling jobs
func (s *Scheduler) Start() error {
	jobs := []struct {
		name     string
		interval string
		run      func()
	}{
		{"userinfo", s.config.Polling.UserInfoInterval, s.runUserInfo},
		{"sessions", s.config.Polling.SessionsInterval, s.runSessions},
		{"orgs", s.config.Polling.OrgsInterval, s.runOrgs},
	}

	for _, job := range jobs {
		schedule := "@every " + job.interval
		if _, err := s.cron.AddFunc(schedule, job.run); err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", job.name, err)
		}
		s.logger.Info().Str("job", job.name).Str("schedule", schedule).Msg("Polling job registered")
	}

	s.cron.Start()
	s.logger.Info().Msg("Polling scheduler started")
	return nil
}

// Stop cancels all polling jobs. Running jobs finish; no new ones start.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Polling scheduler stopped")
}

func (s *Scheduler) runUserInfo() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s.logger.Info().Msg("Refreshing user info")
	if err := s.mirror.SyncUserInfo(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("User info refresh failed")
		return
	}
	s.logger.Info().Msg("User info refreshed")
}

func (s *Scheduler) runSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	from, until := s.mirror.SessionWindow(ctx)
	s.logger.Info().
		Str("from", from.Format(time.RFC3339)).
		Str("until", until.Format(time.RFC3339)).
		Msg("Refreshing charging sessions")
	if err := s.mirror.SyncSessions(ctx, from, until); err != nil {
		s.logger.Warn().Err(err).Msg("Charging session refresh failed")
		return
	}
	s.logger.Info().Msg("Charging sessions refreshed")
}

func (s *Scheduler) runOrgs() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	s.logger.Info().Msg("Re-syncing organizations")
	if err := s.mirror.SyncOrgs(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Organization re-sync failed")
	}
}
