package clients

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.BaseDelay = 1 * time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestDoWithRetry_SucceedsWithoutRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	defer server.Close()

	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := DoWithRetry(context.Background(), server.Client(), req, DefaultRetryConfig())
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("expected 200 without error; got %v %d", err, resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDoWithRetry_RetriesOn500(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	defer server.Close()

	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := DoWithRetry(context.Background(), server.Client(), req, fastRetryConfig())
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("expected eventual 200; got %v %d", err, resp.StatusCode)
	}
	resp.Body.Close()
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDoWithRetry_DoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(404)
	}))
	defer server.Close()

	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := DoWithRetry(context.Background(), server.Client(), req, fastRetryConfig())
	if err != nil || resp.StatusCode != 404 {
		t.Fatalf("expected immediate 404; got %v %v", err, resp)
	}
	resp.Body.Close()
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected a single attempt for 404, got %d", got)
	}
}

func TestDoWithRetry_ReplaysRequestBody(t *testing.T) {
	var attempts atomic.Int32
	bodies := make(chan string, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		bodies <- string(body)
		if attempts.Add(1) < 2 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
	}))
	defer server.Close()

	req, _ := http.NewRequest("POST", server.URL, strings.NewReader(`{"k":"v"}`))
	resp, err := DoWithRetry(context.Background(), server.Client(), req, fastRetryConfig())
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("expected eventual 200; got %v %v", err, resp)
	}
	resp.Body.Close()

	for i := 0; i < 2; i++ {
		if body := <-bodies; body != `{"k":"v"}` {
			t.Fatalf("attempt %d saw body %q", i+1, body)
		}
	}
}

func TestDoWithRetry_RespectsContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	cfg := DefaultRetryConfig()
	cfg.BaseDelay = 50 * time.Millisecond

	req, _ := http.NewRequest("GET", server.URL, nil)
	_, err := DoWithRetry(ctx, server.Client(), req, cfg)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline exceeded, got %v", err)
	}
}

func TestDoWithRetry_CircuitBreakerTrips(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer server.Close()

	cfg := fastRetryConfig()
	cfg.MaxRetries = 0
	cfg.CircuitBreaker = NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest("GET", server.URL, nil)
		resp, _ := DoWithRetry(context.Background(), server.Client(), req, cfg)
		if resp != nil {
			resp.Body.Close()
		}
	}
	if cfg.CircuitBreaker.State() != StateOpen {
		t.Fatalf("expected open breaker, got %s", cfg.CircuitBreaker.State())
	}

	// With the breaker open the request must not reach the server.
	req, _ := http.NewRequest("GET", server.URL, nil)
	_, err := DoWithRetry(context.Background(), server.Client(), req, cfg)
	if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Fatalf("expected breaker error, got %v", err)
	}
}
