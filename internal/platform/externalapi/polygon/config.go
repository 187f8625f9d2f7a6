// Package polygon provides a rate-limited client and a market repository for the Polygon.io REST API.
package polygon

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL    = "https://api.polygon.io"
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 5
	defaultBaseDelay  = time.Second
	defaultMaxJitter  = time.Second
)

// Config holds configuration for the Polygon API client.
type Config struct {
	APIKey            string        // API key, sent as the apiKey query parameter
	BaseURL           string        // Base URL for the API (e.g., "https://api.polygon.io")
	Timeout           time.Duration // HTTP request timeout
	MaxRetries        int           // total attempts for a rate-limited request
	BaseDelay         time.Duration // first backoff step after a 429
	MaxJitter         time.Duration // exclusive upper bound of the random delay added to each backoff
	RequestsPerMinute int           // client-side quota pacing, 0 disables it
	Multiplier        int           // aggregate bar size multiplier
	Timespan          string        // aggregate bar size unit (minute, hour, day, ...)
}

// LoadConfig loads Polygon configuration from environment variables.
func LoadConfig() Config {
	return Config{
		APIKey:            os.Getenv("POLYGON_API_KEY"),
		BaseURL:           os.Getenv("POLYGON_BASE_URL"),
		Timeout:           envDuration("POLYGON_TIMEOUT", defaultTimeout),
		MaxRetries:        envInt("MAX_RETRIES", defaultMaxRetries),
		BaseDelay:         envDuration("BASE_DELAY", defaultBaseDelay),
		RequestsPerMinute: envInt("POLYGON_REQUESTS_PER_MINUTE", 0),
		Multiplier:        1,
		Timespan:          "day",
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 1
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = 0
	}
	if c.MaxJitter <= 0 {
		c.MaxJitter = defaultMaxJitter
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 1
	}
	if c.Timespan == "" {
		c.Timespan = "day"
	}
	return c
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// envDuration accepts Go durations ("1.5s") or plain seconds ("2").
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}
