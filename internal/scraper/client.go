// Package scraper provides the HTTP client used to fetch program pages and
// curriculum documents from the admissions site. Requests are paced with a
// token bucket, retried with backoff and sent with a rotating User-Agent.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/corpix/uarand"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"

	domerrors "github.com/garyellow/itmo-advisor-go/internal/errors"
)

// DefaultMaxBodyBytes caps a downloaded document (curriculum PDFs are a few MB).
const DefaultMaxBodyBytes = 32 << 20

// Config configures a Client.
type Config struct {
	Timeout      time.Duration // per request
	MaxRetries   int
	RetryInitial time.Duration
	MinInterval  time.Duration // minimum spacing between requests
	MaxBodyBytes int64
}

// Client is an HTTP client for scraping with pacing and retries.
type Client struct {
	httpClient   *http.Client
	limiter      *rate.Limiter
	maxRetries   int
	retryInitial time.Duration
	maxBodyBytes int64
}

// NewClient creates a scraper client. Zero fields take sensible defaults.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 2 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:      rate.NewLimiter(limit, 1),
		maxRetries:   max(cfg.MaxRetries, 0),
		retryInitial: cfg.RetryInitial,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

// permanentError marks a failure that retrying cannot fix (4xx other than 429).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Get performs a GET request with pacing and retries. The caller closes the
// response body. Failures are *errors.ScraperError.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	var resp *http.Response
	var status int

	err := RetryWithBackoff(ctx, c.maxRetries, c.retryInitial, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return &permanentError{err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return &permanentError{err: fmt.Errorf("create request: %w", err)}
		}
		req.Header.Set("User-Agent", uarand.GetRandom())
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf,*/*;q=0.8")
		req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7")
		req.Header.Set("Accept-Encoding", "gzip")

		r, err := c.httpClient.Do(req)
		if err != nil {
			status = 0
			return fmt.Errorf("request failed: %w", err)
		}
		status = r.StatusCode
		if r.StatusCode >= 200 && r.StatusCode < 300 {
			resp = r
			return nil
		}
		_ = r.Body.Close()

		statusErr := fmt.Errorf("unexpected status %d", r.StatusCode)
		switch {
		case r.StatusCode == http.StatusTooManyRequests, r.StatusCode >= 500:
			return statusErr
		case r.StatusCode >= 400:
			return &permanentError{err: statusErr}
		default:
			return statusErr
		}
	})
	if err != nil {
		return nil, domerrors.NewScraperError(url, status, err)
	}
	return resp, nil
}

// GetBytes downloads url, decompressing gzip bodies and refusing bodies over
// the configured size cap.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := decodedBody(resp)
	if err != nil {
		return nil, domerrors.NewScraperError(url, resp.StatusCode, err)
	}
	if closer, ok := body.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	data, err := io.ReadAll(io.LimitReader(body, c.maxBodyBytes+1))
	if err != nil {
		return nil, domerrors.NewScraperError(url, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	if int64(len(data)) > c.maxBodyBytes {
		return nil, domerrors.NewScraperError(url, resp.StatusCode,
			fmt.Errorf("body exceeds %d bytes", c.maxBodyBytes))
	}
	return data, nil
}

// GetDocument performs a GET request and parses the response as HTML
func (c *Client) GetDocument(ctx context.Context, url string) (*goquery.Document, error) {
	data, err := c.GetBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		return nil, domerrors.NewScraperError(url, 0, fmt.Errorf("parse HTML: %w", err))
	}
	return doc, nil
}

func decodedBody(resp *http.Response) (io.Reader, error) {
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return resp.Body, nil
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decompress gzip: %w", err)
	}
	return zr, nil
}

// IsNetworkError reports whether err looks like a transient transport or
// server problem worth retrying later.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var permErr *permanentError
	if errors.As(err, &permErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "no such host", "eof", "server error", "rate limited", "status 5", "status 429"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
