package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/catalog-scraper/pkg/config"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// maxBodyBytes caps a single response body
const maxBodyBytes = 16 << 20

// Fetcher performs throttled HTTP requests with a bounded retry budget
type Fetcher struct {
	client  *http.Client
	cfg     *config.AppConfig // Retry settings and header profile
	limiter *RateLimiter      // Optional per-host throttle
	log     *logrus.Entry
}

// NewFetcher creates a new Fetcher instance. limiter may be nil.
func NewFetcher(client *http.Client, cfg *config.AppConfig, limiter *RateLimiter, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:  client,
		cfg:     cfg,
		limiter: limiter,
		log:     log,
	}
}

// Fetch requests rawURL and returns the response body. With usePost the params are
// sent form-encoded in the body, otherwise they are merged into the query string.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, params url.Values, usePost bool) ([]byte, error) {
	newReq := func(ctx context.Context) (*http.Request, error) {
		var req *http.Request
		var err error
		if usePost {
			req, err = http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(params.Encode()))
			if err == nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
		} else {
			req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err == nil && len(params) > 0 {
				q := req.URL.Query()
				for k, vs := range params {
					for _, v := range vs {
						q.Add(k, v)
					}
				}
				req.URL.RawQuery = q.Encode()
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
		}
		req.Header.Set("User-Agent", f.cfg.UserAgent)
		if f.cfg.Accept != "" {
			req.Header.Set("Accept", f.cfg.Accept)
		}
		return req, nil
	}
	return f.fetchWithRetry(ctx, rawURL, newReq)
}

// fetchWithRetry runs the request built by newReq until it succeeds, fails permanently
// or the retry budget is spent. Transient network errors, 5xx and 429 are retried with
// exponential backoff and jitter.
func (f *Fetcher) fetchWithRetry(ctx context.Context, rawURL string, newReq func(context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	reqLog := f.log.WithField("url", rawURL)

	maxRetries := f.cfg.MaxRetries
	initialRetryDelay := f.cfg.InitialRetryDelay
	maxRetryDelay := f.cfg.MaxRetryDelay

	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		// --- Context Check ---
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) during retry after error: %w", lastErr, err)
			}
			return nil, fmt.Errorf("context cancelled before first attempt: %w", err)
		}

		// --- Backoff Delay ---
		if attempt > 0 {
			backoff := float64(initialRetryDelay) * math.Pow(2, float64(attempt-1))
			delay := time.Duration(backoff)
			if delay <= 0 || delay > maxRetryDelay {
				delay = maxRetryDelay
			}

			// Jitter: +/- 10% of the delay
			var jitter time.Duration
			if delay >= 5 {
				jitter = time.Duration(rand.Int63n(int64(delay)/5)) - (delay / 10)
			}
			finalDelay := delay + jitter
			if finalDelay < 0 {
				finalDelay = 0
			}

			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": finalDelay}).Warn("Retrying request...")

			select {
			case <-time.After(finalDelay):
			case <-ctx.Done():
				reqLog.Warnf("Context cancelled during retry sleep: %v", ctx.Err())
				return nil, fmt.Errorf("context cancelled (%v) during retry delay: %w", lastErr, ctx.Err())
			}
		}

		// --- Throttle ---
		if f.limiter != nil && host != "" {
			if err := f.limiter.Wait(ctx, host); err != nil {
				return nil, err
			}
		}

		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}

		// --- Perform HTTP Request ---
		resp, err := f.client.Do(req)
		if err != nil {
			// Do not retry context errors
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					reqLog.Warnf("Context cancelled/timed out during HTTP request execution: %v", err)
					return nil, err
				}
				// Per-request client timeout: transient
			}
			reqLog.WithField("attempt", attempt).Errorf("Network error: %v", err)
			lastErr = err
			continue
		}

		statusCode := resp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "attempt": attempt})

		switch {
		case statusCode >= 200 && statusCode < 300:
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			resp.Body.Close()
			if readErr != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				resLog.Warnf("Failed reading body, retrying: %v", readErr)
				lastErr = fmt.Errorf("%w: %v", utils.ErrResponseBodyRead, readErr)
				continue
			}
			resLog.Debug("Successfully fetched")
			return body, nil

		case statusCode >= 500:
			resLog.Warn("Server error, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status)
			drainAndClose(resp)
			continue

		case statusCode == http.StatusTooManyRequests:
			resLog.Warn("Received 429 Too Many Requests, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)
			drainAndClose(resp)
			continue

		case statusCode >= 400 && statusCode < 500:
			resLog.Warn("Client error (4xx), not retrying")
			drainAndClose(resp)
			return nil, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)

		default:
			resLog.Warnf("Non-retryable/unexpected status: %d", statusCode)
			drainAndClose(resp)
			return nil, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status)
		}
	}

	// --- All Retries Failed ---
	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
	}
	return nil, utils.ErrRetryFailed
}

func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()
}
