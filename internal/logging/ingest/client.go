package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/Chichichkin/EdgeCollector/internal/logging"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRetries     = 3

	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
	maxErrorBodyLen     = 512
)

type Config struct {
	// URL is the full ingestion endpoint, e.g. http://host:8000/api/v1/ingest/logs.
	URL            string
	RequestTimeout time.Duration
	MaxRetries     int
}

func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if c.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Field: "url", Message: fmt.Sprintf("%q is not an absolute http(s) URL", c.URL)}
	}
	if c.RequestTimeout <= 0 {
		return &ConfigError{Field: "request_timeout", Message: "must be greater than 0"}
	}
	if c.MaxRetries < 0 {
		return &ConfigError{Field: "max_retries", Message: "must not be negative"}
	}
	return nil
}

type Stats struct {
	BatchesSent   uint64
	RecordsSent   uint64
	BatchesFailed uint64
	Retries       uint64
}

type Option func(*Client)

func WithBackoff(b Backoff) Option {
	return func(c *Client) {
		c.backoff = b
	}
}

// Client ships batches to the ingestion endpoint. It is safe for concurrent
// use; all calls share one connection pool.
type Client struct {
	config  Config
	http    *resty.Client
	backoff Backoff
	log     *zap.SugaredLogger

	batchesSent   atomic.Uint64
	recordsSent   atomic.Uint64
	batchesFailed atomic.Uint64
	retries       atomic.Uint64
}

func NewClient(config Config, log *zap.SugaredLogger, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
	}

	c := &Client{
		config:  config,
		backoff: DefaultBackoff(),
		log:     log,
		http: resty.New().
			SetTransport(transport).
			SetTimeout(config.RequestTimeout).
			SetRetryCount(0).
			SetLogger(log).
			SetJSONMarshaler(json.Marshal).
			SetJSONUnmarshaler(json.Unmarshal).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// SendBatch POSTs the batch, retrying transient failures with backoff. The
// payload is encoded once so every attempt carries the same bytes and batch id.
func (c *Client) SendBatch(ctx context.Context, batch logging.Batch) (Response, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		c.batchesFailed.Add(1)
		return Response{}, fmt.Errorf("failed to encode batch %s: %w", batch.ID(), err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff.Delay(attempt)
			c.log.Infow("Retrying batch",
				"batch_id", batch.ID(),
				"attempt", attempt+1,
				"delay", delay,
			)
			if err := sleep(ctx, delay); err != nil {
				c.batchesFailed.Add(1)
				return Response{}, err
			}
			c.retries.Add(1)
		}

		resp, err := c.send(ctx, body)
		if err == nil {
			c.batchesSent.Add(1)
			c.recordsSent.Add(uint64(max(resp.Accepted, 0)))
			c.log.Debugw("Batch delivered",
				"batch_id", batch.ID(),
				"records", batch.Len(),
				"accepted", resp.Accepted,
				"rejected", resp.Rejected,
			)
			return resp, nil
		}

		if !IsRetryable(err) {
			c.batchesFailed.Add(1)
			c.log.Warnw("Batch send failed, not retrying", "batch_id", batch.ID(), "error", err)
			return Response{}, err
		}

		lastErr = err
		c.log.Warnw("Batch send attempt failed",
			"batch_id", batch.ID(),
			"attempt", attempt+1,
			"max_attempts", c.config.MaxRetries+1,
			"error", err,
		)
	}

	c.batchesFailed.Add(1)
	return Response{}, &RetriesExhaustedError{
		Attempts:  c.config.MaxRetries + 1,
		LastError: lastErr.Error(),
		last:      lastErr,
	}
}

// Deliver lets the client serve as the engine's delivery target.
func (c *Client) Deliver(ctx context.Context, batch logging.Batch) error {
	_, err := c.SendBatch(ctx, batch)
	return err
}

func (c *Client) send(ctx context.Context, body []byte) (Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(attemptCtx).
		SetBody(body).
		Post(c.config.URL)
	if err != nil {
		return Response{}, c.classify(ctx, attemptCtx, err)
	}

	if !resp.IsSuccess() {
		text := resp.String()
		if len(text) > maxErrorBodyLen {
			text = text[:maxErrorBodyLen]
		}
		return Response{}, &StatusError{StatusCode: resp.StatusCode(), Body: text}
	}

	return parseResponse(resp.Body())
}

func (c *Client) classify(ctx, attemptCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var netErr net.Error
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{Timeout: c.config.RequestTimeout, Err: err}
	}

	var opErr *net.OpError
	if (errors.As(err, &opErr) && opErr.Op == "dial") || errors.Is(err, syscall.ECONNREFUSED) {
		return &ConnectError{Err: err}
	}

	return &TransportError{Err: err}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Stats() Stats {
	return Stats{
		BatchesSent:   c.batchesSent.Load(),
		RecordsSent:   c.recordsSent.Load(),
		BatchesFailed: c.batchesFailed.Load(),
		Retries:       c.retries.Load(),
	}
}

func (c *Client) URL() string { return c.config.URL }
func (c *Client) MaxRetries() int { return c.config.MaxRetries }
func (c *Client) Timeout() time.Duration { return c.config.RequestTimeout }
