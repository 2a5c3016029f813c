package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codyseavey/tcg-market-report/internal/config"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc, mode config.FetchMode) (*MarkdownFetcher, *fakeClock, *RateWindow) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	clock := newFakeClock(testEpoch)
	window := NewRateWindow(18, time.Minute, clock)
	f := NewMarkdownFetcher(FetcherOptions{
		Mode:         mode,
		ProxyURL:     server.URL,
		APIKey:       "secret",
		MaxAttempts:  3,
		RetryBackoff: time.Second,
	}, window, clock)
	return f, clock, window
}

func TestFetchReturnsBodyThroughProxy(t *testing.T) {
	var gotPath, gotAuth string
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("# Page"))
	}, config.FetchModeProxy)

	got := f.Fetch(context.Background(), "https://www.pricecharting.com/game/x")
	if got != "# Page" {
		t.Errorf("Fetch() = %q, want %q", got, "# Page")
	}
	if !strings.HasSuffix(gotPath, "/https:/www.pricecharting.com/game/x") && !strings.HasSuffix(gotPath, "/https://www.pricecharting.com/game/x") {
		t.Errorf("proxy path = %q, want target URL appended", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want bearer key", gotAuth)
	}
}

func TestFetchRetriesOn429(t *testing.T) {
	var calls int32
	f, clock, window := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}, config.FetchModeProxy)

	if got := f.Fetch(context.Background(), "https://example.com"); got != "ok" {
		t.Errorf("Fetch() = %q, want ok", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if sleeps := clock.Sleeps(); len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != time.Second {
		t.Errorf("backoff sleeps = %v, want [1s 1s]", sleeps)
	}
	// Retries take their own window slots
	if n, _ := window.Occupancy(); n != 3 {
		t.Errorf("window occupancy = %d, want 3", n)
	}
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, config.FetchModeProxy)

	if got := f.Fetch(context.Background(), "https://example.com"); got != "" {
		t.Errorf("Fetch() = %q, want empty", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestFetchDoesNotRetryOtherErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"server error", http.StatusInternalServerError},
		{"not found", http.StatusNotFound},
		{"forbidden", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
			}, config.FetchModeProxy)

			if got := f.Fetch(context.Background(), "https://example.com"); got != "" {
				t.Errorf("Fetch() = %q, want empty", got)
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
		})
	}
}

func TestFetchTransportFailureIsNoData(t *testing.T) {
	clock := newFakeClock(testEpoch)
	f := NewMarkdownFetcher(FetcherOptions{ProxyURL: "http://127.0.0.1:1"}, NewRateWindow(18, time.Minute, clock), clock)

	if got := f.Fetch(context.Background(), "https://example.com"); got != "" {
		t.Errorf("Fetch() = %q, want empty", got)
	}
}

func TestFetchDirectModeConvertsHTML(t *testing.T) {
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("direct mode must not send the proxy key")
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Sales</h1><table><tr><th>Date</th><th>Price</th></tr><tr><td>2025-01-02</td><td>$10.00</td></tr></table></body></html>`))
	}, config.FetchModeDirect)

	// Direct mode fetches the page itself, so point it at the test server
	got := f.Fetch(context.Background(), f.proxyURL)
	if !strings.Contains(got, "Sales") || strings.Contains(got, "<h1>") {
		t.Errorf("Fetch() = %q, want converted heading", got)
	}
	if !strings.Contains(got, "2025-01-02") || !strings.Contains(got, "|") {
		t.Errorf("Fetch() = %q, want markdown table row", got)
	}
}

func TestFetcherStatus(t *testing.T) {
	f, _, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}, config.FetchModeProxy)

	f.Fetch(context.Background(), "https://example.com/a")
	f.Fetch(context.Background(), "https://example.com/b")

	status := f.Status()
	if status.InWindow != 2 || status.Limit != 18 || status.Available != 16 {
		t.Errorf("Status() = %+v, want 2/18 with 16 available", status)
	}
	if status.WindowSecs != 60 {
		t.Errorf("WindowSecs = %d, want 60", status.WindowSecs)
	}
}
