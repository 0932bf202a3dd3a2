// Package httpclient provides the HTTP client used for acquisition:
// SSRF-guarded transport underneath bounded retries with backoff.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/version"
)

// Options configures the acquisition client
type Options struct {
	Timeout        time.Duration // per attempt
	MaxRetries     int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
	UserAgent      string
	BlockPrivateIP bool
}

// Client issues GET requests with a fixed retry budget.
// Retries cover connection errors, 429 and 5xx; the final response is
// returned as-is so callers see the real status code.
type Client struct {
	retry     *retryablehttp.Client
	safer     *SaferClient
	userAgent string
}

// New builds a Client. logger may be nil.
func New(opts Options, logger *zap.SugaredLogger) *Client {
	block := opts.BlockPrivateIP
	safer := NewSaferClientWithOptions(opts.Timeout, SaferClientOptions{BlockPrivateIP: &block})

	rc := retryablehttp.NewClient()
	rc.HTTPClient = safer.Client
	rc.RetryMax = opts.MaxRetries
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if logger != nil {
		rc.Logger = leveledLogger{logger}
	} else {
		rc.Logger = nil
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = version.Get().UserAgent()
	}
	return &Client{retry: rc, safer: safer, userAgent: ua}
}

// Get fetches url. A non-nil response may carry any status code;
// the caller owns the body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	if _, err := c.safer.ValidateURL(url); err != nil {
		return nil, errors.Wrap(err, "request blocked")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build request for %s", url)
	}
	req.Header.Set("User-Agent", c.userAgent)

	return c.retry.Do(req)
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger
type leveledLogger struct {
	l *zap.SugaredLogger
}

func (z leveledLogger) Error(msg string, kv ...interface{}) { z.l.Errorw(msg, kv...) }
func (z leveledLogger) Info(msg string, kv ...interface{})  { z.l.Debugw(msg, kv...) }
func (z leveledLogger) Debug(msg string, kv ...interface{}) { z.l.Debugw(msg, kv...) }
func (z leveledLogger) Warn(msg string, kv ...interface{})  { z.l.Warnw(msg, kv...) }
