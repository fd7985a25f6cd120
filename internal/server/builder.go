package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"time"

	"ci-scraper/internal/config"
	"ci-scraper/internal/sources"
	"ci-scraper/internal/store"
	"ci-scraper/internal/vault"
	"ci-scraper/internal/zuul"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const runQueueSize = 100

var repoNameRegex = regexp.MustCompile(`^[\w.\-]+/[\w.\-]+$`)

// ConfigureLogging sets up the global console logger from LOG_LEVEL.
func ConfigureLogging() {
	zerolog.TimeFieldFormat = time.RFC3339

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})
}

// LoadConfig reads the configuration, trying Vault first.
func LoadConfig(ctx context.Context, logger zerolog.Logger) (*config.Config, error) {
	var secrets config.SecretReader
	vaultClient, err := vault.NewClient(ctx, vault.CredentialsFromEnv(), logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Vault client, falling back to environment variables")
	} else {
		secrets = vaultClient
	}

	cfg, err := config.NewConfigManager(logger).LoadConfiguration(ctx, secrets)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewServerBuilder creates a new server builder
func NewServerBuilder() *ServerBuilder {
	return &ServerBuilder{
		logger: log.With().Str("component", "server-builder").Logger(),
	}
}

// Build loads configuration and wires every collaborator of the server.
func (sb *ServerBuilder) Build(ctx context.Context) (*Server, error) {
	cfg, err := LoadConfig(ctx, log.Logger)
	if err != nil {
		return nil, err
	}

	src, err := sources.Load(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	sb.logger.Info().
		Int("repositories", len(src.Repositories)).
		Int("tenants", len(src.Tenants)).
		Msg("Loaded scrape sources")

	indexer, err := store.Open(ctx, cfg.StoreBackend, cfg.StoreTarget(), log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	browsers, err := NewBrowserFactory(ctx, cfg, log.Logger)
	if err != nil {
		indexer.Close()
		return nil, fmt.Errorf("failed to set up repository access: %w", err)
	}

	var jobs JobService
	if cfg.ZuulURL != "" {
		jobs = zuul.NewClient(zuul.Options{
			BaseURL:           cfg.ZuulURL,
			AuthToken:         cfg.ZuulAuthToken,
			MaxRetries:        cfg.ZuulMaxRetries,
			RequestsPerSecond: cfg.ZuulRateLimit,
		}, log.Logger)
	} else {
		sb.logger.Warn().Msg("ZUUL_URL not set, tenant scraping is disabled")
	}

	return NewServer(Dependencies{
		Config:   cfg,
		Store:    indexer,
		Jobs:     jobs,
		Browsers: browsers,
		Sources:  src,
		Logger:   log.Logger,
	}), nil
}

// NewServer builds a server from its dependencies. Workers are started by Start.
func NewServer(deps Dependencies) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Router:      router,
		Logger:      deps.Logger.With().Str("component", "server").Logger(),
		Runs:        make(map[string]*ScrapeRun),
		RunQueue:    make(chan *ScrapeRun, runQueueSize),
		RateLimiter: rate.NewLimiter(rate.Limit(deps.Config.RateLimit), deps.Config.RateLimit),
		Config:      deps.Config,
		Store:       deps.Store,
		Jobs:        deps.Jobs,
		Browsers:    deps.Browsers,
		Sources:     deps.Sources,
		validator:   NewRequestValidator(),
	}
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:              ":" + deps.Config.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.JobProcessor = NewJobProcessor(s, deps.Config.WorkerCount)
	s.Scheduler = NewScheduler(s, deps.Config.ScrapeSchedule)
	s.registerRoutes()
	return s
}

// NewRequestValidator creates a new request validator
func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterValidation("reponame", func(fl validator.FieldLevel) bool {
		return repoNameRegex.MatchString(fl.Field().String())
	})
	return &RequestValidator{validator: v}
}

// Validate validates a request struct.
func (rv *RequestValidator) Validate(req interface{}) error {
	return rv.validator.Struct(req)
}
