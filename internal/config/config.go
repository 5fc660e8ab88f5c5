package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/Chichichkin/EdgeCollector/internal/daemon"
	"github.com/Chichichkin/EdgeCollector/internal/logging/batch"
	"github.com/Chichichkin/EdgeCollector/internal/logging/ingest"
)

const (
	EnvPrefix = "EDGE_COLLECTOR_"

	minBatchSize     = 1
	maxBatchSize     = 10_000
	minFlushInterval = 1
	maxFlushInterval = 300

	unknownNode = "unknown"
)

// Error names the offending environment variable.
type Error struct {
	EnvVar  string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s%s: %s", EnvPrefix, e.EnvVar, e.Message)
}

type Config struct {
	APIURL     string `env:"API_URL" envDefault:"http://localhost:8000"`
	IngestPath string `env:"INGEST_PATH" envDefault:"/api/v1/ingest/logs"`

	BatchSize          int `env:"BATCH_SIZE" envDefault:"100"`
	FlushIntervalSecs  int `env:"FLUSH_INTERVAL_SECS" envDefault:"5"`
	RequestTimeoutSecs int `env:"REQUEST_TIMEOUT_SECS" envDefault:"30"`
	MaxRetries         int `env:"MAX_RETRIES" envDefault:"3"`
	ChannelCapacity    int `env:"CHANNEL_CAPACITY" envDefault:"1000"`
	MaxBufferCapacity  int `env:"MAX_BUFFER_CAPACITY" envDefault:"10000"`
	DeliveryWorkers    int `env:"DELIVERY_WORKERS" envDefault:"1"`

	Source string `env:"SOURCE" envDefault:"edge-collector-go"`

	GeneratorEnabled     bool `env:"GENERATOR_ENABLED" envDefault:"true"`
	GenerationIntervalMs int  `env:"GENERATION_INTERVAL_MS" envDefault:"50"`
	SensorsPerType       int  `env:"SENSORS_PER_TYPE" envDefault:"3"`
	IncludeMetadata      bool `env:"INCLUDE_METADATA" envDefault:"true"`

	TailPath             string `env:"TAIL_PATH"`
	TailScanIntervalSecs int    `env:"TAIL_SCAN_INTERVAL_SECS" envDefault:"30"`
	TailMaxFiles         int    `env:"TAIL_MAX_FILES" envDefault:"64"`
	TailIdleTimeoutSecs  int    `env:"TAIL_IDLE_TIMEOUT_SECS" envDefault:"300"`
	TailFromStart        bool   `env:"TAIL_FROM_START"`

	NodeName            string `env:"NODE_NAME"`
	MetricsAddr         string `env:"METRICS_ADDR"`
	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeoutSecs int    `env:"SHUTDOWN_TIMEOUT_SECS" envDefault:"10"`
}

// Load reads an optional .env file, then the EDGE_COLLECTOR_* environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.NodeName == "" {
		cfg.NodeName = hostName()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func hostName() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	info, err := host.InfoWithContext(ctx)
	if err != nil || info.Hostname == "" {
		return unknownNode
	}
	return info.Hostname
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &Error{EnvVar: "API_URL", Message: fmt.Sprintf("%q is not an absolute http(s) URL", c.APIURL)}
	}
	if !strings.HasPrefix(c.IngestPath, "/") {
		return &Error{EnvVar: "INGEST_PATH", Message: "must start with /"}
	}
	if c.BatchSize < minBatchSize || c.BatchSize > maxBatchSize {
		return &Error{EnvVar: "BATCH_SIZE", Message: fmt.Sprintf("must be between %d and %d", minBatchSize, maxBatchSize)}
	}
	if c.FlushIntervalSecs < minFlushInterval || c.FlushIntervalSecs > maxFlushInterval {
		return &Error{EnvVar: "FLUSH_INTERVAL_SECS", Message: fmt.Sprintf("must be between %d and %d", minFlushInterval, maxFlushInterval)}
	}
	if c.RequestTimeoutSecs <= 0 {
		return &Error{EnvVar: "REQUEST_TIMEOUT_SECS", Message: "must be greater than 0"}
	}
	if c.MaxRetries < 0 {
		return &Error{EnvVar: "MAX_RETRIES", Message: "must not be negative"}
	}
	if c.ChannelCapacity <= 0 {
		return &Error{EnvVar: "CHANNEL_CAPACITY", Message: "must be greater than 0"}
	}
	if c.MaxBufferCapacity < c.BatchSize {
		return &Error{EnvVar: "MAX_BUFFER_CAPACITY", Message: "must not be below BATCH_SIZE"}
	}
	if c.DeliveryWorkers < 1 {
		return &Error{EnvVar: "DELIVERY_WORKERS", Message: "must be at least 1"}
	}
	if c.GeneratorEnabled {
		if c.GenerationIntervalMs <= 0 {
			return &Error{EnvVar: "GENERATION_INTERVAL_MS", Message: "must be greater than 0"}
		}
		if c.SensorsPerType <= 0 {
			return &Error{EnvVar: "SENSORS_PER_TYPE", Message: "must be greater than 0"}
		}
	}
	if c.TailPath != "" {
		if c.TailScanIntervalSecs <= 0 {
			return &Error{EnvVar: "TAIL_SCAN_INTERVAL_SECS", Message: "must be greater than 0"}
		}
		if c.TailMaxFiles <= 0 {
			return &Error{EnvVar: "TAIL_MAX_FILES", Message: "must be greater than 0"}
		}
		if c.TailIdleTimeoutSecs < 0 {
			return &Error{EnvVar: "TAIL_IDLE_TIMEOUT_SECS", Message: "must not be negative"}
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &Error{EnvVar: "LOG_LEVEL", Message: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	if c.ShutdownTimeoutSecs <= 0 {
		return &Error{EnvVar: "SHUTDOWN_TIMEOUT_SECS", Message: "must be greater than 0"}
	}
	return nil
}

func (c *Config) IngestURL() string {
	return strings.TrimRight(c.APIURL, "/") + c.IngestPath
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSecs) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

func (c *Config) GenerationInterval() time.Duration {
	return time.Duration(c.GenerationIntervalMs) * time.Millisecond
}

func (c *Config) TailScanInterval() time.Duration {
	return time.Duration(c.TailScanIntervalSecs) * time.Second
}

func (c *Config) TailIdleTimeout() time.Duration {
	return time.Duration(c.TailIdleTimeoutSecs) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSecs) * time.Second
}

func (c *Config) BufferConfig() batch.Config {
	return batch.Config{
		BatchSize:      c.BatchSize,
		FlushInterval:  c.FlushInterval(),
		MaxCapacity:    c.MaxBufferCapacity,
		IntakeCapacity: c.ChannelCapacity,
		Source:         c.Source,
	}
}

func (c *Config) ClientConfig() ingest.Config {
	return ingest.Config{
		URL:            c.IngestURL(),
		RequestTimeout: c.RequestTimeout(),
		MaxRetries:     c.MaxRetries,
	}
}

func (c *Config) TailConfig() daemon.Config {
	return daemon.Config{
		LogRootPath:     c.TailPath,
		ScanInterval:    c.TailScanInterval(),
		MaxFiles:        c.TailMaxFiles,
		NodeName:        c.NodeName,
		FileIdleTimeout: c.TailIdleTimeout(),
		FromStart:       c.TailFromStart,
	}
}
