package stitch

import (
	"log/slog"
	nethttp "net/http"
	"time"
)

// DefaultBaseURL is the Stitch Connect API base, version segment included.
const DefaultBaseURL = "https://api.stitchdata.com/v4/"

// DefaultPollInterval is the default wait between poll iterations.
const DefaultPollInterval = 10 * time.Second

// DefaultRequestRetryDelay is the default wait between request attempts.
const DefaultRequestRetryDelay = 250 * time.Millisecond

// DefaultRequestMaxRetries is the default request attempt budget.
const DefaultRequestMaxRetries = 3

// Config holds Stitch connection configuration.
type Config struct {
	// APIKey is the Stitch API access key (bearer token).
	APIKey string `json:"apiKey" yaml:"apiKey"`

	// AccountID is the Stitch account ID; account-scoped endpoints
	// (extractions, loads) are keyed by it.
	AccountID string `json:"accountId" yaml:"accountId"`

	// BaseURL overrides the API base, mainly for tests.
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// RequestMaxRetries is the total attempts per API request.
	RequestMaxRetries int `json:"requestMaxRetries,omitempty" yaml:"requestMaxRetries,omitempty"`

	// RequestRetryDelay is the fixed wait between attempts.
	RequestRetryDelay time.Duration `json:"requestRetryDelay,omitempty" yaml:"requestRetryDelay,omitempty"`

	// DefaultPollInterval is the wait between poll iterations when the
	// caller does not override it.
	DefaultPollInterval time.Duration `json:"defaultPollInterval,omitempty" yaml:"defaultPollInterval,omitempty"`

	// DefaultExtractionTimeout bounds phase A. Zero means unbounded.
	DefaultExtractionTimeout time.Duration `json:"defaultExtractionTimeout,omitempty" yaml:"defaultExtractionTimeout,omitempty"`

	// DefaultLoadTimeout bounds phase B. Zero means unbounded.
	DefaultLoadTimeout time.Duration `json:"defaultLoadTimeout,omitempty" yaml:"defaultLoadTimeout,omitempty"`

	// RateLimit caps requests per second (default: the transport default).
	RateLimit float64 `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`

	// RateBurst is the maximum request burst size.
	RateBurst int `json:"rateBurst,omitempty" yaml:"rateBurst,omitempty"`

	// Logger receives poll progress and downgraded per-stream load
	// failures. Defaults to slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport nethttp.RoundTripper `json:"-" yaml:"-"`
}

// Validate validates the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return &ValidationError{Field: "apiKey", Message: "required"}
	}
	if c.AccountID == "" {
		return &ValidationError{Field: "accountId", Message: "required"}
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RequestMaxRetries <= 0 {
		c.RequestMaxRetries = DefaultRequestMaxRetries
	}
	if c.RequestRetryDelay <= 0 {
		c.RequestRetryDelay = DefaultRequestRetryDelay
	}
	if c.DefaultPollInterval <= 0 {
		c.DefaultPollInterval = DefaultPollInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}
