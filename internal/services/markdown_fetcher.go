package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/codyseavey/tcg-market-report/internal/config"
	"github.com/codyseavey/tcg-market-report/internal/metrics"
)

const (
	defaultProxyURL     = "https://r.jina.ai/"
	defaultFetchTimeout = 60 * time.Second
	maxPageBytes        = 8 << 20
)

// PageFetcher returns the text of a page, or "" when no data could be obtained
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) string
}

// FetcherOptions configures a MarkdownFetcher
type FetcherOptions struct {
	Mode         config.FetchMode
	ProxyURL     string
	APIKey       string
	MaxAttempts  int
	RetryBackoff time.Duration
	Timeout      time.Duration
}

// MarkdownFetcher fetches marketplace pages as markdown-ish text. Every
// outbound request, retries included, takes a slot in the shared RateWindow.
type MarkdownFetcher struct {
	client      *http.Client
	window      *RateWindow
	clock       Clock
	mode        config.FetchMode
	proxyURL    string
	apiKey      string
	maxAttempts int
	backoff     time.Duration
	mdConverter *converter.Converter
}

// FetcherStatus is reported on the status endpoint
type FetcherStatus struct {
	Mode       string `json:"mode"`
	InWindow   int    `json:"in_window"`
	Limit      int    `json:"limit"`
	WindowSecs int    `json:"window_seconds"`
	Available  int    `json:"available"`
}

// NewMarkdownFetcher creates a fetcher bound to a shared request window
func NewMarkdownFetcher(opts FetcherOptions, window *RateWindow, clock Clock) *MarkdownFetcher {
	if opts.Mode == "" {
		opts.Mode = config.FetchModeProxy
	}
	if opts.ProxyURL == "" {
		opts.ProxyURL = defaultProxyURL
	}
	if !strings.HasSuffix(opts.ProxyURL, "/") {
		opts.ProxyURL += "/"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
	}
	if clock == nil {
		clock = realClock{}
	}
	if window == nil {
		window = NewRateWindow(18, 60*time.Second, clock)
	}

	return &MarkdownFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		window:      window,
		clock:       clock,
		mode:        opts.Mode,
		proxyURL:    opts.ProxyURL,
		apiKey:      opts.APIKey,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.RetryBackoff,
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Fetch returns page text or "" on any failure. HTTP 429 is retried after a
// fixed backoff until attempts run out; every other failure is final.
func (f *MarkdownFetcher) Fetch(ctx context.Context, pageURL string) string {
	target := f.requestURL(pageURL)

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		waitStart := time.Now()
		if _, err := f.window.Acquire(ctx); err != nil {
			log.Printf("Fetcher: gave up waiting for a request slot for %s: %v", pageURL, err)
			return ""
		}
		metrics.ProxyLimiterWaitSeconds.Observe(time.Since(waitStart).Seconds())

		body, status, err := f.do(ctx, target)
		if err != nil {
			metrics.ProxyRequestsTotal.WithLabelValues("transport_error").Inc()
			log.Printf("Fetcher: request for %s failed: %v", pageURL, err)
			return ""
		}

		switch {
		case status == http.StatusTooManyRequests:
			metrics.ProxyRequestsTotal.WithLabelValues("rate_limited").Inc()
			if attempt == f.maxAttempts {
				log.Printf("Fetcher: %s still rate limited after %d attempts", pageURL, attempt)
				return ""
			}
			metrics.ProxyRetriesTotal.Inc()
			log.Printf("Fetcher: rate limited on %s, retrying in %s (attempt %d/%d)", pageURL, f.backoff, attempt, f.maxAttempts)
			if err := f.clock.Sleep(ctx, f.backoff); err != nil {
				return ""
			}
			continue
		case status != http.StatusOK:
			metrics.ProxyRequestsTotal.WithLabelValues("http_error").Inc()
			log.Printf("Fetcher: %s returned status %d", pageURL, status)
			return ""
		}

		metrics.ProxyRequestsTotal.WithLabelValues("ok").Inc()
		if f.mode == config.FetchModeDirect {
			return f.htmlToMarkdown(body, pageURL)
		}
		return body
	}
	return ""
}

func (f *MarkdownFetcher) requestURL(pageURL string) string {
	if f.mode == config.FetchModeDirect {
		return pageURL
	}
	return f.proxyURL + pageURL
}

func (f *MarkdownFetcher) do(ctx context.Context, target string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; tcg-market-report/1.0)")
	if f.mode == config.FetchModeProxy && f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}
	return string(data), resp.StatusCode, nil
}

// htmlToMarkdown converts a raw page locally. Empty output counts as no data.
func (f *MarkdownFetcher) htmlToMarkdown(html, pageURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	result, err := f.mdConverter.ConvertString(html, converter.WithDomain(pageURL))
	if err != nil {
		log.Printf("Fetcher: failed to convert %s: %v", pageURL, err)
		return ""
	}
	return strings.TrimSpace(result)
}

// Status reports the shared window occupancy
func (f *MarkdownFetcher) Status() FetcherStatus {
	n, limit := f.window.Occupancy()
	return FetcherStatus{
		Mode:       string(f.mode),
		InWindow:   n,
		Limit:      limit,
		WindowSecs: int(f.window.Window().Seconds()),
		Available:  limit - n,
	}
}
