package zuul

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// NewClient creates a job service client for the given options.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	logger = logger.With().Str("component", "zuul").Logger()

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = opts.MaxRetries
	httpClient.Logger = leveledLogger{logger: logger}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient.HTTPClient.Timeout = timeout

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/") + "/",
		authToken: opts.AuthToken,
		http:      httpClient,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// GetJobs returns the full job list of a tenant, or nil when the list could not be
// retrieved or parsed.
func (c *Client) GetJobs(ctx context.Context, tenant string) TenantJobs {
	endpoint := fmt.Sprintf("api/tenant/%s/jobs?full=true", url.PathEscape(tenant))
	body := c.get(ctx, endpoint)
	if body == nil {
		c.logger.Error().Str("tenant", tenant).Msg("Could not retrieve job list for tenant")
		return nil
	}

	var jobs TenantJobs
	if err := json.Unmarshal(body, &jobs); err != nil {
		c.logger.Error().Err(err).Str("tenant", tenant).Msg("Job list for tenant could not be parsed as JSON")
		return nil
	}
	if jobs == nil {
		// a JSON null body
		c.logger.Error().Str("tenant", tenant).Msg("Job list for tenant is null")
	}
	return jobs
}

// GetJob returns the raw definition of a single job, or nil on failure.
func (c *Client) GetJob(ctx context.Context, tenant, jobName string) []byte {
	endpoint := fmt.Sprintf("api/tenant/%s/job/%s", url.PathEscape(tenant), url.PathEscape(jobName))
	return c.get(ctx, endpoint)
}

// SearchJobs returns the raw result of a job search, or nil on failure.
func (c *Client) SearchJobs(ctx context.Context, query string, exact bool, start, end int) []byte {
	params := url.Values{}
	params.Set("query", query)
	params.Set("start", strconv.Itoa(start))
	params.Set("end", strconv.Itoa(end))
	params.Set("exact", strconv.FormatBool(exact))
	return c.get(ctx, "api/search_jobs?"+params.Encode())
}

// get performs a GET against the service and returns the body of a successful
// response. Failures are logged here and reported as nil.
func (c *Client) get(ctx context.Context, endpoint string) []byte {
	endpointURL := c.baseURL + endpoint

	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Error().Err(err).Str("url", endpointURL).Msg("API request cancelled")
		return nil
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpointURL, nil)
	if err != nil {
		c.logger.Error().Err(err).Str("url", endpointURL).Msg("Failed to build API request")
		return nil
	}
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", endpointURL).Msg("API request failed")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error().Err(err).Str("url", endpointURL).Msg("Failed to read API response")
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("url", endpointURL).
			Msg("API request failed")
		return nil
	}
	c.logger.Debug().Str("url", endpointURL).Int("bytes", len(body)).Msg("API request succeeded")
	return body
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}
