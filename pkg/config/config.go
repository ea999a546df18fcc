package config

import (
	"time"

	"github.com/ajitpratap0/crmtap/pkg/errors"
)

const redacted = "********"

// Config is the tap configuration. It is built once at startup by Load and
// passed by value to the components that need it; nothing mutates it afterwards.
type Config struct {
	// Credentials consumed by the OAuth refresh-token flow
	RefreshToken string `mapstructure:"refresh_token" yaml:"refresh_token" json:"refresh_token"`
	AccessToken  string `mapstructure:"access_token" yaml:"access_token" json:"access_token"`
	ClientID     string `mapstructure:"client_id" yaml:"client_id" json:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret" json:"client_secret"`

	// StartDate seeds bookmarks for streams with no prior state. It is copied
	// into state verbatim.
	StartDate string `mapstructure:"start_date" yaml:"start_date" json:"start_date"`

	// Remote API
	LoginURL    string `mapstructure:"login_url" yaml:"login_url" json:"login_url"`
	InstanceURL string `mapstructure:"instance_url" yaml:"instance_url" json:"instance_url"`
	APIVersion  string `mapstructure:"api_version" yaml:"api_version" json:"api_version"`
	PageSize    int    `mapstructure:"page_size" yaml:"page_size" json:"page_size"`

	// HTTP behaviour
	RateLimitPerSec int           `mapstructure:"rate_limit_per_sec" yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	RetryAttempts   int           `mapstructure:"retry_attempts" yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" json:"request_timeout"`

	// Observability
	LogLevel           string        `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat          string        `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	EnableTracing      bool          `mapstructure:"enable_tracing" yaml:"enable_tracing" json:"enable_tracing"`
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" json:"metrics_log_interval"`

	// CheckpointDB is the SQLite checkpoint journal path. Empty disables the journal.
	CheckpointDB string `mapstructure:"checkpoint_db" yaml:"checkpoint_db" json:"checkpoint_db"`
}

// Default returns a Config holding every default value and no credentials.
func Default() Config {
	return Config{
		LoginURL:           "https://login.salesforce.com",
		APIVersion:         "41.0",
		PageSize:           2000,
		RetryAttempts:      3,
		RetryDelay:         time.Second,
		RequestTimeout:     60 * time.Second,
		LogLevel:           "info",
		LogFormat:          "json",
		MetricsLogInterval: 60 * time.Second,
	}
}

// Validate checks required keys and value ranges.
func (c Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"refresh_token", c.RefreshToken},
		{"client_id", c.ClientID},
		{"client_secret", c.ClientSecret},
		{"start_date", c.StartDate},
	}
	for _, r := range required {
		if r.value == "" {
			return errors.Newf(errors.ErrorTypeConfig, "%s is required", r.key)
		}
	}

	if _, err := time.Parse(time.RFC3339, c.StartDate); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "start_date must be an RFC 3339 timestamp").
			WithDetail("start_date", c.StartDate)
	}
	if c.LoginURL == "" {
		return errors.New(errors.ErrorTypeConfig, "login_url is required")
	}
	if c.PageSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "page_size must be positive")
	}
	if c.RetryAttempts < 0 {
		return errors.New(errors.ErrorTypeConfig, "retry_attempts cannot be negative")
	}
	if c.RateLimitPerSec < 0 {
		return errors.New(errors.ErrorTypeConfig, "rate_limit_per_sec cannot be negative")
	}
	return nil
}

// Redacted returns a copy with every secret masked.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.RefreshToken = mask(c.RefreshToken)
	c.AccessToken = mask(c.AccessToken)
	c.ClientSecret = mask(c.ClientSecret)
	return c
}

// IsRateLimited returns true if client-side throttling is enabled
func (c Config) IsRateLimited() bool {
	return c.RateLimitPerSec > 0
}
