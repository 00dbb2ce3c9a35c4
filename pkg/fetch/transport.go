package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/matzehuels/mybget/pkg/cache"
	"github.com/matzehuels/mybget/pkg/observability"
)

// MaxRegistrySize bounds the size of a registry payload read into memory.
const MaxRegistrySize = 64 << 20

// Response is the outcome of a conditional GET.
type Response struct {
	Status int
	ETag   string
	Body   []byte
}

// Transport performs conditional GET requests. Implementations return a
// Response only for 200 and 304; every other outcome is an error.
type Transport interface {
	Get(ctx context.Context, url, etag string) (*Response, error)
}

// Downloader streams a remote file to a local path.
type Downloader interface {
	Download(ctx context.Context, url, dst string) (int64, error)
}

// HTTPTransport implements [Transport] and [Downloader] over net/http.
// Connection failures and 5xx responses are retried with exponential
// backoff.
type HTTPTransport struct {
	http    *http.Client
	headers map[string]string

	// Attempts is the number of tries for retryable failures.
	Attempts int
	// Backoff is the delay before the first retry; it doubles each time.
	// Zero uses the policy of [cache.RetryWithBackoff] and ignores Attempts.
	Backoff time.Duration
}

// NewHTTPTransport creates a transport sending userAgent with every request.
// headerTimeout bounds the wait for response headers; overall request
// deadlines come from the caller's context.
func NewHTTPTransport(userAgent string, headerTimeout time.Duration) *HTTPTransport {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = headerTimeout
	return &HTTPTransport{
		http:     &http.Client{Transport: base},
		headers:  map[string]string{"User-Agent": userAgent},
		Attempts: 3,
	}
}

func (t *HTTPTransport) retry(ctx context.Context, fn func() error) error {
	if t.Backoff <= 0 {
		return cache.RetryWithBackoff(ctx, fn)
	}
	return cache.Retry(ctx, t.Attempts, t.Backoff, fn)
}

// Get implements [Transport].
func (t *HTTPTransport) Get(ctx context.Context, url, etag string) (*Response, error) {
	var out *Response
	err := t.retry(ctx, func() error {
		var headers map[string]string
		if etag != "" {
			headers = map[string]string{"If-None-Match": etag}
		}
		resp, err := t.doRequest(ctx, url, headers)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		out = &Response{Status: resp.StatusCode, ETag: resp.Header.Get("ETag")}
		if resp.StatusCode == http.StatusNotModified {
			return nil
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, MaxRegistrySize+1))
		if err != nil {
			return cache.Retryable(fmt.Errorf("%w: read body: %v", cache.ErrNetwork, err))
		}
		if len(body) > MaxRegistrySize {
			return fmt.Errorf("registry payload exceeds %d bytes", MaxRegistrySize)
		}
		out.Body = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Download implements [Downloader]. The file is written next to dst and
// renamed into place once complete.
func (t *HTTPTransport) Download(ctx context.Context, url, dst string) (int64, error) {
	var n int64
	err := t.retry(ctx, func() error {
		resp, err := t.doRequest(ctx, url, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: unexpected status %d", cache.ErrNetwork, resp.StatusCode)
		}

		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		part := dst + ".part"
		f, err := os.Create(part)
		if err != nil {
			return err
		}
		n, err = io.Copy(f, resp.Body)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(part)
			return cache.Retryable(fmt.Errorf("%w: %v", cache.ErrNetwork, err))
		}
		return os.Rename(part, dst)
	})
	return n, err
}

func (t *HTTPTransport) doRequest(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, req.URL.Host, req.URL.Path)
	start := time.Now()
	resp, err := t.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, req.URL.Host, req.URL.Path, err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", cache.ErrNetwork, err)
		}
		return nil, cache.Retryable(fmt.Errorf("%w: %v", cache.ErrNetwork, err))
	}

	hooks.OnResponse(ctx, req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))
	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK, code == http.StatusNotModified:
		return nil
	case code >= 500:
		return cache.Retryable(fmt.Errorf("%w: status %d", cache.ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", cache.ErrNetwork, code)
	}
}

var (
	_ Transport  = (*HTTPTransport)(nil)
	_ Downloader = (*HTTPTransport)(nil)
)
