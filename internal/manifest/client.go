package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/starter/internal/logging"
)

const (
	// DefaultTimeout is the default per-request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultRetries is the default number of retries for transient failures
	DefaultRetries = 3
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "starter/1.0"
	// MaxDocumentSize bounds manifests and API responses read into memory
	MaxDocumentSize = 32 << 20
)

// ClientOptions configures a Client. Zero values select defaults.
type ClientOptions struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
	Header    http.Header // added to every request
	Logger    logging.Logger
}

// Client performs GET requests with a per-request timeout and retries
// transient failures with exponential backoff (1s, 2s, 4s, ...).
type Client struct {
	client    *http.Client
	userAgent string
	header    http.Header
	retries   int
	backoff   func(attempt int) time.Duration
	logger    logging.Logger
}

// Response is a fully read HTTP response.
type Response struct {
	Body   []byte
	Header http.Header
	URL    string
}

// NewClient creates a new client
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	return &Client{
		client: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
		header:    opts.Header.Clone(),
		retries:   opts.Retries,
		backoff:   exponentialBackoff,
		logger:    logging.OrNop(opts.Logger),
	}
}

func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt-1)) * time.Second
}

// Get fetches url into memory.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	var resp *Response
	err := c.retry(ctx, url, func() error {
		var err error
		resp, err = c.getOnce(ctx, url)
		return err
	})
	return resp, err
}

// DownloadToFile streams url into destPath, truncating it on every attempt.
// The caller owns destPath and is responsible for verifying and moving it.
func (c *Client) DownloadToFile(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	return c.retry(ctx, url, func() error {
		return c.downloadOnce(ctx, url, destPath)
	})
}

func (c *Client) retry(ctx context.Context, url string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.logger.Debug("retrying request", "url", url, "attempt", attempt+1, "backoff", backoff, "err", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsTransient(err) {
			return err
		}
	}

	return &NetworkError{URL: url, Attempts: c.retries + 1, Err: lastErr}
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func (c *Client) do(ctx context.Context, url string) (*http.Response, error) {
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) getOnce(ctx context.Context, url string) (*Response, error) {
	resp, err := c.do(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if n > MaxDocumentSize {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, MaxDocumentSize)
	}

	return &Response{Body: buf.Bytes(), Header: resp.Header, URL: resp.Request.URL.String()}, nil
}

func (c *Client) downloadOnce(ctx context.Context, url, destPath string) error {
	resp, err := c.do(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("copy response body: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}
