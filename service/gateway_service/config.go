package gateway_service

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config represents the configuration for the push gateway client
type Config struct {
	// Gateway multicast endpoint, e.g. https://push.example.com/v1/multicast
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Authentication
	AccessToken string `yaml:"access_token" json:"access_token"` // Bearer token

	// HTTP client settings
	Timeout time.Duration `yaml:"timeout" json:"timeout"` // Per batch request timeout

	// Batch processing settings
	BatchSize int `yaml:"batch_size" json:"batch_size"` // Tokens per multicast call (<= 500)

	// Rate limiting
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"` // Concurrent batches in flight

	// 请求体 gzip 压缩，大批量广播时可显著减小上行流量
	GzipRequests bool `yaml:"gzip_requests" json:"gzip_requests"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Timeout:        10 * time.Second,
		BatchSize:      MaxTokensPerRequest,
		MaxConcurrency: 4,
	}
}

// ApplyDefaults applies default values to missing configuration fields
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaults.MaxConcurrency
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("gateway endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid gateway endpoint %q", c.Endpoint)
	}
	if c.BatchSize > MaxTokensPerRequest {
		return fmt.Errorf("batch size %d exceeds multicast limit %d", c.BatchSize, MaxTokensPerRequest)
	}
	if c.BatchSize <= 0 || c.MaxConcurrency <= 0 || c.Timeout <= 0 {
		return errors.New("batch size, concurrency and timeout must be positive")
	}
	return nil
}
