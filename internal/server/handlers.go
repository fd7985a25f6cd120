package server

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) registerRoutes() {
	r := s.Router

	r.Use(s.requestLogger())
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/scrape/repository", s.rateLimited, s.handleScrapeRepository)
	api.POST("/scrape/tenant", s.rateLimited, s.handleScrapeTenant)
	api.GET("/scrapes", s.handleRuns)
	api.GET("/scrapes/:run_id", s.handleRunStatus)
	api.GET("/tenant/:tenant/jobs", s.handleTenantJobs)
	api.GET("/tenant/:tenant/job/:job_name", s.handleTenantJob)
	api.GET("/search_jobs", s.rateLimited, s.handleSearchJobs)
	api.GET("/definitions/:job_name", s.handleDefinitions)
}

// requestLogger middleware logs all HTTP requests with structured data
func (s *Server) requestLogger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		s.Logger.Info().
			Str("method", param.Method).
			Str("path", param.Path).
			Str("remote_addr", param.ClientIP).
			Int("status", param.StatusCode).
			Int("body_size", param.BodySize).
			Dur("latency", param.Latency).
			Str("error", param.ErrorMessage).
			Msg("HTTP request")
		return ""
	})
}

func (s *Server) rateLimited(c *gin.Context) {
	if !s.RateLimiter.Allow() {
		s.Logger.Warn().Str("path", c.FullPath()).Msg("Rate limit exceeded")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": "1.0.0"})
}

func (s *Server) handleScrapeRepository(c *gin.Context) {
	var req RepositoryScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.Logger.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := s.validator.Validate(&req); err != nil {
		s.Logger.Error().Err(err).Str("repository", req.Repository).Msg("Request validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := s.enqueue(RunKindRepository, req.Repository, "api")
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": StatusQueued, "run_id": run.ID})
}

func (s *Server) handleScrapeTenant(c *gin.Context) {
	if s.Jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job service not configured"})
		return
	}

	var req TenantScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.Logger.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := s.validator.Validate(&req); err != nil {
		s.Logger.Error().Err(err).Str("tenant", req.Tenant).Msg("Request validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := s.enqueue(RunKindTenant, req.Tenant, "api")
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": StatusQueued, "run_id": run.ID})
}

func (s *Server) handleRuns(c *gin.Context) {
	s.RunMutex.RLock()
	runs := make([]ScrapeRun, 0, len(s.Runs))
	for _, run := range s.Runs {
		runs = append(runs, *run)
	}
	s.RunMutex.RUnlock()

	slices.SortFunc(runs, func(a, b ScrapeRun) int {
		return b.QueuedAt.Compare(a.QueuedAt)
	})
	c.JSON(http.StatusOK, runs)
}

func (s *Server) handleRunStatus(c *gin.Context) {
	runID := c.Param("run_id")

	s.RunMutex.RLock()
	run, exists := s.Runs[runID]
	var snapshot ScrapeRun
	if exists {
		snapshot = *run
	}
	s.RunMutex.RUnlock()

	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scrape run not found"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleTenantJobs(c *gin.Context) {
	tenant := c.Param("tenant")
	jobs, err := s.Store.ListJobs(c.Request.Context(), tenant)
	if err != nil {
		s.Logger.Error().Err(err).Str("tenant", tenant).Msg("Failed to list jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (s *Server) handleTenantJob(c *gin.Context) {
	if s.Jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job service not configured"})
		return
	}
	body := s.Jobs.GetJob(c.Request.Context(), c.Param("tenant"), c.Param("job_name"))
	if body == nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Job service request failed"})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) handleSearchJobs(c *gin.Context) {
	if s.Jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Job service not configured"})
		return
	}

	query := SearchJobsQuery{End: 50}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}
	if err := s.validator.Validate(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	body := s.Jobs.SearchJobs(c.Request.Context(), query.Query, query.Exact, query.Start, query.End)
	if body == nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Job service request failed"})
		return
	}
	if !json.Valid(body) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Job service returned invalid JSON"})
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) handleDefinitions(c *gin.Context) {
	jobName := c.Param("job_name")
	locations, err := s.Store.FindDefinitions(c.Request.Context(), jobName)
	if err != nil {
		s.Logger.Error().Err(err).Str("job", jobName).Msg("Failed to find job definitions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find job definitions"})
		return
	}
	c.JSON(http.StatusOK, locations)
}

// enqueue registers a run and hands it to the workers. It fails when the queue
// is full.
func (s *Server) enqueue(kind, target, trigger string) (*ScrapeRun, error) {
	run := &ScrapeRun{
		ID:       uuid.NewString(),
		Kind:     kind,
		Target:   target,
		Status:   StatusQueued,
		Trigger:  trigger,
		QueuedAt: time.Now().UTC(),
	}

	s.RunMutex.Lock()
	s.Runs[run.ID] = run
	s.RunMutex.Unlock()

	select {
	case s.RunQueue <- run:
	default:
		s.finishRun(run, StatusFailed, "scrape queue is full")
		s.Logger.Warn().Str("run_id", run.ID).Str("target", target).Msg("Scrape queue is full")
		return nil, errQueueFull
	}

	s.Logger.Debug().
		Str("run_id", run.ID).
		Str("kind", kind).
		Str("target", target).
		Int("queue_size", len(s.RunQueue)).
		Msg("Scrape run added to queue")
	return run, nil
}
