package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
)

type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
	// newBackOff is swapped in tests to avoid real sleeps.
	newBackOff func() backoff.BackOff
}

func New(timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  "nft-cli/1.0",
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 120 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.RandomizationFactor = 0.3
	b.MaxElapsedTime = 0
	return b
}

// DoJSON sends req and decodes a 2xx JSON body into out. 429, 5xx and
// transport failures are retried; every other failure is permanent.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var header http.Header
	operation := func() error {
		h, err := c.once(ctx, req, out)
		header = h
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.retries)), ctx)
	err := backoff.Retry(operation, policy)
	if err == nil {
		return header, nil
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if ctx.Err() != nil && !isCLIError(err) {
		return header, clierr.Wrap(clierr.CodeUnavailable, "request cancelled", ctx.Err())
	}
	return header, err
}

func (c *Client) once(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	cloneReq := req.Clone(ctx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, backoff.Permanent(clierr.Wrap(clierr.CodeInternal, "clone request body", err))
		}
		cloneReq.Body = body
	}

	resp, err := c.httpClient.Do(cloneReq)
	if err != nil {
		return nil, mapNetError(err)
	}
	buf, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp.Header, backoff.Permanent(clierr.Wrap(clierr.CodeUnavailable, "read marketplace response", readErr))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp.Header, clierr.New(clierr.CodeRateLimited, "marketplace rate limited request")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resp.Header, backoff.Permanent(clierr.New(clierr.CodeAuth, "marketplace authentication failed"))
	case resp.StatusCode == http.StatusNotFound:
		return resp.Header, backoff.Permanent(clierr.New(clierr.CodeNotFound, "marketplace resource not found"))
	case resp.StatusCode >= http.StatusInternalServerError:
		return resp.Header, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("marketplace unavailable (status %d)", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return resp.Header, backoff.Permanent(clierr.New(clierr.CodeUnsupported, fmt.Sprintf("marketplace returned unexpected status %d: %s", resp.StatusCode, snippet(buf))))
	}

	if out == nil {
		return resp.Header, nil
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return resp.Header, backoff.Permanent(clierr.New(clierr.CodeUnavailable, "marketplace returned empty response"))
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return resp.Header, backoff.Permanent(clierr.Wrap(clierr.CodeUnavailable, "decode marketplace JSON", err))
	}
	return resp.Header, nil
}

func DoBodyJSON(ctx context.Context, c *Client, method, url string, body []byte, headers map[string]string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

func mapNetError(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeUnavailable, "marketplace timeout", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "marketplace request failed", err)
}

func isCLIError(err error) bool {
	_, ok := clierr.As(err)
	return ok
}

func snippet(buf []byte) string {
	s := string(bytes.TrimSpace(buf))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
