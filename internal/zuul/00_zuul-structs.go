package zuul

import (
	"encoding/json"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL    string
	AuthToken  string
	MaxRetries int
	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client talks to the job service HTTP API. One instance reuses a single
// connection pool for all requests.
type Client struct {
	baseURL   string
	authToken string
	http      *retryablehttp.Client
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// TenantJobs maps job names to the raw JSON of each variant.
type TenantJobs = map[string][]json.RawMessage

// leveledLogger routes retryablehttp logging through zerolog.
type leveledLogger struct {
	logger zerolog.Logger
}
