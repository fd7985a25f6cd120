package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	index_model "ci-scraper/datamodel/index-model"
	"ci-scraper/internal/config"
	"ci-scraper/internal/render"
	"ci-scraper/internal/scraper"
	"ci-scraper/internal/server"
	"ci-scraper/internal/store"
	"ci-scraper/internal/vault"
	"ci-scraper/internal/zuul"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type CLI struct {
	Verbose bool `help:"Enable debug logging."`
	Save    bool `help:"Also write the result to the configured store."`

	Repo   RepoCmd   `cmd:"" help:"Scrape job files and roles of a repository."`
	Tenant TenantCmd `cmd:"" help:"Collect the job definitions of a tenant."`
}

type RepoCmd struct {
	Repository string `arg:"" help:"Repository as org/name."`
}

type TenantCmd struct {
	Tenant string `arg:"" help:"Tenant name."`
}

type runContext struct {
	ctx    context.Context
	out    io.Writer
	config *config.Config
	logger zerolog.Logger
	save   bool
}

type repoResult struct {
	Repository string                `json:"repository"`
	JobFiles   index_model.JobFiles  `json:"job_files"`
	Roles      index_model.RoleFiles `json:"roles"`
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("scrape"),
		kong.Description("One-shot scrape of a repository or tenant."),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, err)
	}

	zerolog.SetGlobalLevel(logLevel(cli.Verbose, os.Getenv("LOG_LEVEL")))
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var secrets config.SecretReader
	if vaultClient, err := vault.NewClient(ctx, vault.CredentialsFromEnv(), logger); err == nil {
		secrets = vaultClient
	} else {
		logger.Debug().Err(err).Msg("Vault not available, using environment variables")
	}
	cfg, err := config.NewConfigManager(logger).LoadConfiguration(ctx, secrets)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	err = kctx.Run(&runContext{ctx: ctx, out: os.Stdout, config: cfg, logger: logger, save: cli.Save})
	if err != nil {
		logger.Error().Err(err).Msg("Scrape failed")
		os.Exit(1)
	}
}

// logLevel lets --verbose override LOG_LEVEL; anything unparsable is info.
func logLevel(verbose bool, env string) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	level, err := zerolog.ParseLevel(env)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func (c *RepoCmd) Run(rc *runContext) error {
	if err := rc.config.Validate(); err != nil {
		return err
	}
	browsers, err := server.NewBrowserFactory(rc.ctx, rc.config, rc.logger)
	if err != nil {
		return err
	}
	browser, release, err := browsers(rc.ctx, c.Repository)
	if err != nil {
		return err
	}
	defer release()

	jobFiles, roles := scraper.NewRepoScraper(browser, rc.logger).Scrape(rc.ctx)

	if rc.save {
		if err := withStore(rc, func(s store.Indexer) error {
			if err := s.SaveJobFiles(rc.ctx, c.Repository, jobFiles); err != nil {
				return err
			}
			return s.SaveRoles(rc.ctx, c.Repository, roles)
		}); err != nil {
			return err
		}
	}
	return writeJSON(rc.out, repoResult{Repository: c.Repository, JobFiles: jobFiles, Roles: roles})
}

func (c *TenantCmd) Run(rc *runContext) error {
	if rc.config.ZuulURL == "" {
		return errors.New("ZUUL_URL must be set to collect tenant jobs")
	}
	client := zuul.NewClient(zuul.Options{
		BaseURL:           rc.config.ZuulURL,
		AuthToken:         rc.config.ZuulAuthToken,
		MaxRetries:        rc.config.ZuulMaxRetries,
		RequestsPerSecond: rc.config.ZuulRateLimit,
	}, rc.logger)

	records := scraper.NewTenantJobCollector(c.Tenant, client, render.NewRSTRenderer(), time.Now().UTC(), rc.logger).Scrape(rc.ctx)
	if records == nil {
		return fmt.Errorf("no job list for tenant %s", c.Tenant)
	}

	if rc.save {
		if err := withStore(rc, func(s store.Indexer) error {
			return s.SaveJobs(rc.ctx, records)
		}); err != nil {
			return err
		}
	}
	return writeJSON(rc.out, records)
}

func withStore(rc *runContext, fn func(store.Indexer) error) error {
	s, err := store.Open(rc.ctx, rc.config.StoreBackend, rc.config.StoreTarget(), rc.logger)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
