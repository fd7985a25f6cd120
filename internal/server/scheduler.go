package server

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

const defaultSchedule = "@every 6h"

// NewScheduler creates a scheduler for spec, a robfig/cron expression.
func NewScheduler(server *Server, spec string) *Scheduler {
	if spec == "" {
		spec = defaultSchedule
	}
	return &Scheduler{
		cron:   cron.New(),
		server: server,
		spec:   spec,
		logger: server.Logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the scrape cycle, starts the cron and runs one cycle
// immediately so the index is populated without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunCycle(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Str("spec", s.spec).Msg("Scheduler started")

	go s.RunCycle(ctx)
	return nil
}

// Stop stops the cron and waits for a running cycle to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// RunCycle enqueues every configured repository and tenant.
func (s *Scheduler) RunCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	src := s.server.Sources
	if len(src.Repositories) == 0 && len(src.Tenants) == 0 {
		s.logger.Info().Msg("No sources configured, nothing to scrape")
		return
	}

	s.logger.Info().
		Int("repositories", len(src.Repositories)).
		Int("tenants", len(src.Tenants)).
		Msg("Scrape cycle started")

	queued := 0
	for _, name := range src.Repositories {
		if _, err := s.server.enqueue(RunKindRepository, name, "schedule"); err != nil {
			s.logger.Error().Err(err).Str("repository", name).Msg("Failed to queue repository scrape")
			continue
		}
		queued++
	}
	if s.server.Jobs == nil && len(src.Tenants) > 0 {
		s.logger.Warn().Msg("Job service not configured, skipping tenants")
	} else {
		for _, tenant := range src.Tenants {
			if _, err := s.server.enqueue(RunKindTenant, tenant, "schedule"); err != nil {
				s.logger.Error().Err(err).Str("tenant", tenant).Msg("Failed to queue tenant scrape")
				continue
			}
			queued++
		}
	}
	s.logger.Info().Int("queued", queued).Msg("Scrape cycle queued")
}
