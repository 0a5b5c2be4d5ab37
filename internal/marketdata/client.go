package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	maxRetries   = 2
	retryBackoff = 2 * time.Second
)

// client is a small HTTP helper shared by the provider adapters: per-request
// timeout from the data source, bounded retries with fixed backoff on remote
// 5xx only, JSON decoding into the caller's shape.
type client struct {
	http   *http.Client
	logger zerolog.Logger
}

func newClient(logger zerolog.Logger) *client {
	return &client{
		http:   &http.Client{},
		logger: logger,
	}
}

// getJSON issues a GET with the given headers and decodes the 2xx body into
// out. Non-5xx failures return immediately; 5xx responses are retried up to
// maxRetries times before surfacing as ProviderHTTPError.
func (c *client) getJSON(ctx context.Context, url string, timeout time.Duration, headers map[string]string, out any) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn().Int("attempt", attempt).Str("url", url).Msg("retrying provider call after server error")
			timer := time.NewTimer(retryBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Wrap(CodeProviderHTTP, ctx.Err(), "provider call cancelled")
			case <-timer.C:
			}
		}

		retryable, err := c.doOnce(ctx, url, timeout, headers, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return lastErr
}

func (c *client) doOnce(ctx context.Context, url string, timeout time.Duration, headers map[string]string, out any) (retryable bool, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, Wrap(CodeProviderHTTP, err, "create provider request")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, Wrap(CodeProviderHTTP, err, "provider call failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, Wrap(CodeProviderHTTP, err, "read provider response")
	}

	if resp.StatusCode >= 500 {
		return true, HTTPError(resp.StatusCode, string(body), "provider server error")
	}
	if resp.StatusCode != http.StatusOK {
		return false, HTTPError(resp.StatusCode, string(body), "provider request rejected")
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, Wrap(CodeProviderPayload, err, "decode provider response: %v", err)
	}
	return false, nil
}

func appendQuery(base string, query string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s%s", base, sep, query)
}
