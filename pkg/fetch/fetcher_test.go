package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/catalog-scraper/pkg/config"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// testConfig returns an AppConfig with fast retry delays for testing
func testConfig(maxRetries int) *config.AppConfig {
	return &config.AppConfig{
		MaxRetries:        maxRetries,
		InitialRetryDelay: 10 * time.Millisecond,
		MaxRetryDelay:     50 * time.Millisecond,
		UserAgent:         config.DefaultUserAgent,
		Accept:            config.DefaultAccept,
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testClient returns an http.Client suitable for testing
func testClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second, // Generous timeout for tests
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// mockServer creates an httptest.Server that returns status codes in sequence.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attemptCount.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1 // repeat last status
		}
		w.WriteHeader(statusCodes[idx])
		if statusCodes[idx] == http.StatusOK {
			io.WriteString(w, "ok")
		}
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

func TestFetch_Success(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"200 OK", http.StatusOK},
		{"201 Created", http.StatusCreated},
		{"204 No Content", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, []int{tt.statusCode})

			fetcher := NewFetcher(testClient(), testConfig(2), nil, testLogger())
			_, err := fetcher.Fetch(context.Background(), server.URL, nil, false)

			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if attempts.Load() != 1 {
				t.Errorf("expected 1 attempt, got %d", attempts.Load())
			}
		})
	}
}

func TestFetch_PostSendsFormAndHeaders(t *testing.T) {
	var gotMethod, gotCT, gotUA, gotAccept string
	var gotForm url.Values
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotQuery = r.URL.RawQuery
		r.ParseForm()
		gotForm = r.PostForm
		io.WriteString(w, `{"html":""}`)
	}))
	t.Cleanup(server.Close)

	params := url.Values{}
	params.Set("need[]", "items")
	params.Set("page", "3")
	params.Set("m[abc]", "1")

	fetcher := NewFetcher(testClient(), testConfig(0), nil, testLogger())
	body, err := fetcher.Fetch(context.Background(), server.URL+"/entertainment/?action=listJson&type=service", params, true)

	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if string(body) != `{"html":""}` {
		t.Errorf("unexpected body %q", body)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotCT != "application/x-www-form-urlencoded" {
		t.Errorf("unexpected content type %q", gotCT)
	}
	if gotUA != config.DefaultUserAgent || gotAccept != "*/*" {
		t.Errorf("unexpected header profile UA=%q Accept=%q", gotUA, gotAccept)
	}
	if gotQuery != "action=listJson&type=service" {
		t.Errorf("query string should be untouched, got %q", gotQuery)
	}
	if gotForm.Get("page") != "3" || gotForm.Get("m[abc]") != "1" || gotForm.Get("need[]") != "items" {
		t.Errorf("unexpected form %v", gotForm)
	}
}

func TestFetch_GetMergesParams(t *testing.T) {
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), testConfig(0), nil, testLogger())
	_, err := fetcher.Fetch(context.Background(), server.URL+"/?a=1", url.Values{"b": {"2"}}, false)

	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if gotQuery.Get("a") != "1" || gotQuery.Get("b") != "2" {
		t.Errorf("expected merged query, got %v", gotQuery)
	}
}

func TestFetch_ServerError_RetrySuccess(t *testing.T) {
	// 500 → 500 → 200 (succeeds on 3rd attempt)
	server, attempts := mockServer(t, []int{500, 500, 200})

	fetcher := NewFetcher(testClient(), testConfig(2), nil, testLogger())
	body, err := fetcher.Fetch(context.Background(), server.URL, nil, false)

	if err != nil {
		t.Fatalf("expected no error after retry, got: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("expected body ok, got %q", body)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetch_ServerError_AllRetriesFail(t *testing.T) {
	// Default budget: initial + 2 retries = 3 attempts
	server, attempts := mockServer(t, []int{500})

	fetcher := NewFetcher(testClient(), testConfig(2), nil, testLogger())
	body, err := fetcher.Fetch(context.Background(), server.URL, nil, false)

	if err == nil {
		t.Fatal("expected error after all retries failed")
	}
	if body != nil {
		t.Error("expected nil body when all retries fail")
	}
	if !errors.Is(err, utils.ErrRetryFailed) {
		t.Errorf("expected ErrRetryFailed, got: %v", err)
	}
	if !errors.Is(err, utils.ErrServerHTTPError) {
		t.Errorf("expected wrapped ErrServerHTTPError, got: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts (initial + 2 retries), got %d", attempts.Load())
	}
}

func TestFetch_RateLimit_RetrySuccess(t *testing.T) {
	server, attempts := mockServer(t, []int{429, 200})

	fetcher := NewFetcher(testClient(), testConfig(2), nil, testLogger())
	_, err := fetcher.Fetch(context.Background(), server.URL, nil, false)

	if err != nil {
		t.Fatalf("expected no error after retry, got: %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts.Load())
	}
}

func TestFetch_ClientError_NoRetry(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"404 Not Found", http.StatusNotFound},
		{"403 Forbidden", http.StatusForbidden},
		{"400 Bad Request", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, []int{tt.statusCode})

			fetcher := NewFetcher(testClient(), testConfig(2), nil, testLogger())
			_, err := fetcher.Fetch(context.Background(), server.URL, nil, false)

			if err == nil {
				t.Fatal("expected error for 4xx status")
			}
			if !errors.Is(err, utils.ErrClientHTTPError) {
				t.Errorf("expected ErrClientHTTPError, got: %v", err)
			}
			if errors.Is(err, utils.ErrRetryFailed) {
				t.Errorf("4xx should not be reported as exhausted retries: %v", err)
			}
			if attempts.Load() != 1 {
				t.Errorf("expected 1 attempt (no retry for 4xx), got %d", attempts.Load())
			}
		})
	}
}

func TestFetch_OtherStatus(t *testing.T) {
	server, attempts := mockServer(t, []int{304})

	fetcher := NewFetcher(testClient(), testConfig(2), nil, testLogger())
	_, err := fetcher.Fetch(context.Background(), server.URL, nil, false)

	if !errors.Is(err, utils.ErrOtherHTTPError) {
		t.Errorf("expected ErrOtherHTTPError, got: %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestFetch_ContextCancelled_BeforeAttempt(t *testing.T) {
	server, attempts := mockServer(t, []int{200})

	fetcher := NewFetcher(testClient(), testConfig(2), nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.Fetch(ctx, server.URL, nil, false)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if attempts.Load() != 0 {
		t.Errorf("expected 0 attempts, got %d", attempts.Load())
	}
}

func TestFetch_ContextTimeout_DuringBackoff(t *testing.T) {
	server, attempts := mockServer(t, []int{500})

	cfg := testConfig(2)
	cfg.InitialRetryDelay = 10 * time.Second // Very long backoff
	cfg.MaxRetryDelay = 10 * time.Second

	fetcher := NewFetcher(testClient(), cfg, nil, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := fetcher.Fetch(ctx, server.URL, nil, false)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff did not honor the context")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt before timeout, got %d", attempts.Load())
	}
}

func TestFetch_ContextTimeout_DuringRequest(t *testing.T) {
	slowServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(slowServer.Close)

	fetcher := NewFetcher(testClient(), testConfig(2), nil, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := fetcher.Fetch(ctx, slowServer.URL, nil, false)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got: %v", err)
	}
}

func TestFetch_NetworkError_RetrySuccess(t *testing.T) {
	attemptCount := &atomic.Int32{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt := attemptCount.Add(1)
		if attempt == 1 {
			// Close connection to simulate network error
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("server doesn't support hijacking")
				return
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), testConfig(2), nil, testLogger())
	_, err := fetcher.Fetch(context.Background(), server.URL, nil, false)

	if err != nil {
		t.Fatalf("expected success after retry, got: %v", err)
	}
	if attemptCount.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attemptCount.Load())
	}
}

func TestFetch_ZeroRetries(t *testing.T) {
	server, attempts := mockServer(t, []int{500})

	fetcher := NewFetcher(testClient(), testConfig(0), nil, testLogger())
	_, err := fetcher.Fetch(context.Background(), server.URL, nil, false)

	if !errors.Is(err, utils.ErrRetryFailed) {
		t.Errorf("expected ErrRetryFailed, got: %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt (no retries), got %d", attempts.Load())
	}
}

func TestFetch_ThrottlesPerHost(t *testing.T) {
	server, attempts := mockServer(t, []int{200})

	limiter := NewRateLimiter(100*time.Millisecond, testLogger())
	fetcher := NewFetcher(testClient(), testConfig(0), limiter, testLogger())

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := fetcher.Fetch(context.Background(), server.URL, nil, false); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	// First request is free, the next two wait ~100ms each
	if elapsed < 150*time.Millisecond {
		t.Errorf("expected throttling between requests, took %v", elapsed)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}
