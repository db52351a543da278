package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	// API settings
	BaseURL        string        `validate:"required,url"`
	APIToken       string        `validate:"-"`
	RequestTimeout time.Duration `validate:"gt=0"`
	RateLimit      int           `validate:"gte=1"`

	// Polling settings
	SinglePollInterval time.Duration `validate:"gt=0"`
	BatchPollInterval  time.Duration `validate:"gt=0"`
	MaxBackoff         time.Duration `validate:"gtefield=BatchPollInterval"`
	MaxTransientErrors int           `validate:"gte=1"`

	// RunTimeout bounds a whole pipeline run. Zero disables the deadline.
	RunTimeout time.Duration `validate:"gte=0"`

	// Output settings
	MetricsAddr string
	ResultsDir  string
}

// fileConfig mirrors Config for TOML decoding; durations are written as
// strings such as "2s" or "1m30s".
type fileConfig struct {
	API struct {
		BaseURL        string `toml:"base_url"`
		Token          string `toml:"token"`
		RequestTimeout string `toml:"request_timeout"`
		RateLimit      int    `toml:"rate_limit"`
	} `toml:"api"`
	Polling struct {
		SingleInterval     string `toml:"single_interval"`
		BatchInterval      string `toml:"batch_interval"`
		MaxBackoff         string `toml:"max_backoff"`
		MaxTransientErrors int    `toml:"max_transient_errors"`
		RunTimeout         string `toml:"run_timeout"`
	} `toml:"polling"`
	Output struct {
		MetricsAddr string `toml:"metrics_addr"`
		ResultsDir  string `toml:"results_dir"`
	} `toml:"output"`
}

var validate = validator.New()

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		BaseURL:            "http://localhost:3000/api",
		RequestTimeout:     30 * time.Second,
		RateLimit:          5,
		SinglePollInterval: 2 * time.Second,
		BatchPollInterval:  3 * time.Second,
		MaxBackoff:         30 * time.Second,
		MaxTransientErrors: 10,
	}
}

// LoadFromEnvironment loads configuration from environment variables
func (c *Config) LoadFromEnvironment() {
	if baseURL := os.Getenv("QUICKRANK_BASE_URL"); baseURL != "" {
		c.BaseURL = strings.TrimRight(baseURL, "/")
	}

	if token := os.Getenv("QUICKRANK_TOKEN"); token != "" {
		c.APIToken = token
	}

	c.RequestTimeout = durationEnv("QUICKRANK_REQUEST_TIMEOUT", c.RequestTimeout)
	c.SinglePollInterval = durationEnv("QUICKRANK_SINGLE_POLL_INTERVAL", c.SinglePollInterval)
	c.BatchPollInterval = durationEnv("QUICKRANK_BATCH_POLL_INTERVAL", c.BatchPollInterval)
	c.MaxBackoff = durationEnv("QUICKRANK_MAX_BACKOFF", c.MaxBackoff)
	c.RunTimeout = durationEnv("QUICKRANK_RUN_TIMEOUT", c.RunTimeout)

	if limit := os.Getenv("QUICKRANK_RATE_LIMIT"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			c.RateLimit = l
		}
	}

	if retries := os.Getenv("QUICKRANK_MAX_TRANSIENT_ERRORS"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil {
			c.MaxTransientErrors = r
		}
	}

	if addr := os.Getenv("QUICKRANK_METRICS_ADDR"); addr != "" {
		c.MetricsAddr = addr
	}

	if dir := os.Getenv("QUICKRANK_RESULTS_DIR"); dir != "" {
		c.ResultsDir = dir
	}
}

// LoadFile overlays values from a TOML file. Keys missing from the file keep
// their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.API.BaseURL != "" {
		c.BaseURL = strings.TrimRight(fc.API.BaseURL, "/")
	}
	if fc.API.Token != "" {
		c.APIToken = fc.API.Token
	}
	if fc.API.RateLimit != 0 {
		c.RateLimit = fc.API.RateLimit
	}
	if fc.Polling.MaxTransientErrors != 0 {
		c.MaxTransientErrors = fc.Polling.MaxTransientErrors
	}
	if fc.Output.MetricsAddr != "" {
		c.MetricsAddr = fc.Output.MetricsAddr
	}
	if fc.Output.ResultsDir != "" {
		c.ResultsDir = fc.Output.ResultsDir
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"api.request_timeout", fc.API.RequestTimeout, &c.RequestTimeout},
		{"polling.single_interval", fc.Polling.SingleInterval, &c.SinglePollInterval},
		{"polling.batch_interval", fc.Polling.BatchInterval, &c.BatchPollInterval},
		{"polling.max_backoff", fc.Polling.MaxBackoff, &c.MaxBackoff},
		{"polling.run_timeout", fc.Polling.RunTimeout, &c.RunTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
