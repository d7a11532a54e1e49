package imagehash

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/pawmatch/internal/utils"
)

const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxBytes     = 10 << 20
	DefaultUserAgent    = "spigell/pawmatch (+https://github.com/spigell/pawmatch)"

	defaultRetryDelay = 500 * time.Millisecond
	acceptHeader      = "image/*"
	contentEncoding   = "gzip"
)

// Fetcher downloads remote images with a hard per-request timeout.
type Fetcher struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	// Timeout bounds a single request including reading the body.
	Timeout  time.Duration
	MaxBytes int64
	// Retries is the number of extra attempts after a server or transport error.
	Retries    int
	RetryDelay time.Duration
}

// NewFetcher returns a fetcher with default limits.
func NewFetcher(logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		logger:     logger,
		HTTPClient: &http.Client{},
		UserAgent:  DefaultUserAgent,
		Timeout:    DefaultFetchTimeout,
		MaxBytes:   DefaultMaxBytes,
		RetryDelay: defaultRetryDelay,
	}
}

// Fetch returns the body of url. Exceeding the timeout yields *TimeoutError;
// cancellation of ctx is returned as is.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	delay := f.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	var lastErr error
	for attempt := 0; attempt <= f.Retries; attempt++ {
		data, retry, err := f.fetch(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if !retry || attempt == f.Retries {
			break
		}

		f.log().Debug("retrying image fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := utils.WaitFor(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}

	return nil, lastErr
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, bool, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("building image request: %w", err)
	}
	f.setHeaders(req)

	f.log().Debug("make request", zap.String("url", req.URL.String()))

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		err = f.classify(ctx, url, timeout, err)
		return nil, retryable(err), err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode >= http.StatusInternalServerError
		return nil, retry, fmt.Errorf("fetch image %s: bad status: %s", url, resp.Status)
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == contentEncoding {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, false, &DecodeError{Source: url, Err: fmt.Errorf("gzip body: %w", err)}
		}
		defer gz.Close()
		body = gz
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		err = f.classify(ctx, url, timeout, err)
		return nil, retryable(err), err
	}
	if int64(len(data)) > limit {
		return nil, false, fmt.Errorf("fetch image %s: body exceeds %d bytes", url, limit)
	}

	return data, false, nil
}

func (f *Fetcher) setHeaders(req *http.Request) {
	userAgent := f.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Encoding", contentEncoding)
}

// classify turns deadline failures into *TimeoutError and keeps caller
// cancellation visible.
func (f *Fetcher) classify(ctx context.Context, url string, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{URL: url, After: timeout, Err: err}
	}

	return fmt.Errorf("fetch image %s: %w", url, err)
}

// retryable reports whether a transport failure is worth another attempt.
// Timeouts fail fast.
func retryable(err error) bool {
	var timeoutErr *TimeoutError
	return !errors.As(err, &timeoutErr) && !errors.Is(err, context.Canceled)
}

func (f *Fetcher) log() *zap.Logger {
	if f.logger == nil {
		return zap.NewNop()
	}
	return f.logger
}
