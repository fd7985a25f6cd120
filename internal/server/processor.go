package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ci-scraper/internal/render"
	"ci-scraper/internal/scraper"
)

var errQueueFull = errors.New("scrape queue is full")

// NewJobProcessor creates a processor running workers goroutines.
func NewJobProcessor(server *Server, workers int) *JobProcessor {
	if workers < 1 {
		workers = 1
	}
	return &JobProcessor{
		server:  server,
		workers: workers,
	}
}

// Start launches the workers. They stop once ctx is done or the queue is closed.
func (p *JobProcessor) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			p.ProcessJobs(ctx, worker)
		}(i)
	}
}

// Wait blocks until every worker has returned.
func (p *JobProcessor) Wait() {
	p.wg.Wait()
}

// ProcessJobs continuously processes runs from the queue
func (p *JobProcessor) ProcessJobs(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case run, ok := <-p.server.RunQueue:
			if !ok {
				return
			}
			p.processRun(ctx, worker, run)
		}
	}
}

func (p *JobProcessor) processRun(ctx context.Context, worker int, run *ScrapeRun) {
	runLogger := p.server.Logger.With().
		Str("run_id", run.ID).
		Str("kind", run.Kind).
		Str("target", run.Target).
		Int("worker", worker).
		Logger()

	runLogger.Info().Msg("Starting scrape run")

	p.server.RunMutex.Lock()
	run.Status = StatusRunning
	run.StartTime = time.Now().UTC()
	p.server.RunMutex.Unlock()

	startTime := time.Now()
	var err error
	switch run.Kind {
	case RunKindRepository:
		err = p.scrapeRepository(ctx, run)
	case RunKindTenant:
		err = p.scrapeTenant(ctx, run)
	default:
		err = fmt.Errorf("unknown run kind %q", run.Kind)
	}

	if err != nil {
		runLogger.Error().Err(err).Dur("duration", time.Since(startTime)).Msg("Scrape run failed")
		p.server.finishRun(run, StatusFailed, err.Error())
		return
	}
	runLogger.Info().Dur("duration", time.Since(startTime)).Msg("Scrape run completed")
	p.server.finishRun(run, StatusCompleted, "")
}

func (p *JobProcessor) scrapeRepository(ctx context.Context, run *ScrapeRun) error {
	browser, release, err := p.server.Browsers(ctx, run.Target)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	defer release()

	jobFiles, roles := scraper.NewRepoScraper(browser, p.server.Logger).Scrape(ctx)

	if err := p.server.Store.SaveJobFiles(ctx, run.Target, jobFiles); err != nil {
		return fmt.Errorf("failed to store job files: %w", err)
	}
	if err := p.server.Store.SaveRoles(ctx, run.Target, roles); err != nil {
		return fmt.Errorf("failed to store roles: %w", err)
	}

	p.server.RunMutex.Lock()
	run.JobFiles = len(jobFiles)
	run.Roles = len(roles)
	p.server.RunMutex.Unlock()
	return nil
}

func (p *JobProcessor) scrapeTenant(ctx context.Context, run *ScrapeRun) error {
	if p.server.Jobs == nil {
		return errors.New("job service not configured")
	}

	collector := scraper.NewTenantJobCollector(run.Target, p.server.Jobs, render.NewRSTRenderer(), time.Now().UTC(), p.server.Logger)
	records := collector.Scrape(ctx)
	if records == nil {
		return fmt.Errorf("no job list for tenant %s", run.Target)
	}

	if err := p.server.Store.SaveJobs(ctx, records); err != nil {
		return fmt.Errorf("failed to store jobs: %w", err)
	}

	p.server.RunMutex.Lock()
	run.Jobs = len(records)
	p.server.RunMutex.Unlock()
	return nil
}

// finishRun updates the status of a run
func (s *Server) finishRun(run *ScrapeRun, status, errMsg string) {
	s.RunMutex.Lock()
	defer s.RunMutex.Unlock()

	run.Status = status
	run.Error = errMsg
	run.EndTime = time.Now().UTC()
}
