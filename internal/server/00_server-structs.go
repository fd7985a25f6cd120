package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"ci-scraper/internal/config"
	"ci-scraper/internal/repo"
	"ci-scraper/internal/sources"
	"ci-scraper/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	RunKindRepository = "repository"
	RunKindTenant     = "tenant"

	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// JobService is the part of the job service API the server uses.
type JobService interface {
	GetJobs(ctx context.Context, tenant string) map[string][]json.RawMessage
	GetJob(ctx context.Context, tenant, jobName string) []byte
	SearchJobs(ctx context.Context, query string, exact bool, start, end int) []byte
}

// BrowserFactory opens a repository for one scrape run. release frees whatever
// the browser holds (a clone directory, for instance) and is never nil.
type BrowserFactory func(ctx context.Context, repoName string) (browser repo.Browser, release func(), err error)

// Dependencies are the collaborators a Server is built from.
type Dependencies struct {
	Config   *config.Config
	Store    store.Indexer
	Jobs     JobService
	Browsers BrowserFactory
	Sources  sources.Sources
	Logger   zerolog.Logger
}

// Server represents the main API server and its dependencies.
type Server struct {
	Router       *gin.Engine
	Logger       zerolog.Logger
	Runs         map[string]*ScrapeRun
	RunMutex     sync.RWMutex
	RunQueue     chan *ScrapeRun
	RateLimiter  *rate.Limiter
	Config       *config.Config
	Store        store.Indexer
	Jobs         JobService
	Browsers     BrowserFactory
	Sources      sources.Sources
	JobProcessor *JobProcessor
	Scheduler    *Scheduler
	validator    *RequestValidator
	httpServer   *http.Server
	runCtx       context.Context
	cancel       context.CancelFunc

	// lifecycle orders Start against Stop
	lifecycle sync.Mutex
	stopped   bool
}

// RepositoryScrapeRequest asks for one repository to be scraped.
type RepositoryScrapeRequest struct {
	Repository string `json:"repository" validate:"required,reponame"`
}

// TenantScrapeRequest asks for one tenant's jobs to be collected.
type TenantScrapeRequest struct {
	Tenant string `json:"tenant" validate:"required,max=255,excludesall=/?#"`
}

// SearchJobsQuery holds the parameters of a proxied job search.
type SearchJobsQuery struct {
	Query string `form:"query" validate:"required"`
	Exact bool   `form:"exact"`
	Start int    `form:"start" validate:"gte=0"`
	End   int    `form:"end" validate:"gtefield=Start"`
}

// ScrapeRun is one queued or finished scrape.
type ScrapeRun struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Target    string    `json:"target"`
	Status    string    `json:"status"`
	Trigger   string    `json:"trigger"`
	QueuedAt  time.Time `json:"queued_at"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Error     string    `json:"error,omitempty"`
	JobFiles  int       `json:"job_files"`
	Roles     int       `json:"roles"`
	Jobs      int       `json:"jobs"`
}

// ServerBuilder handles server construction and initialization
type ServerBuilder struct {
	logger zerolog.Logger
}

// RequestValidator handles request validation
type RequestValidator struct {
	validator *validator.Validate
}

// JobProcessor drains the run queue with a fixed number of workers.
type JobProcessor struct {
	server  *Server
	workers int
	wg      sync.WaitGroup
}

// Scheduler enqueues every configured source on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	server *Server
	spec   string
	logger zerolog.Logger
}
