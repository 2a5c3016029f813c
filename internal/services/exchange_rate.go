package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/codyseavey/tcg-market-report/internal/metrics"
)

const (
	defaultFXURL      = "https://open.er-api.com/v6/latest/USD"
	defaultFXFallback = 150.0
	fxTimeout         = 10 * time.Second
	fxCacheKey        = "USD_JPY"
)

// FXQuote is a USD to JPY rate and whether it came from the fallback constant
type FXQuote struct {
	Rate     float64 `json:"rate"`
	Fallback bool    `json:"fallback"`
}

// ExchangeRateService looks up the USD/JPY rate. Lookups never fail: a fixed
// fallback is used whenever the remote rate is unavailable.
type ExchangeRateService struct {
	client   *http.Client
	url      string
	fallback float64
	cache    *cache.Cache
}

type erAPIResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// NewExchangeRateService creates the service. Successful lookups are cached for ttl.
func NewExchangeRateService(url string, fallback float64, ttl time.Duration) *ExchangeRateService {
	if url == "" {
		url = defaultFXURL
	}
	if fallback <= 0 {
		fallback = defaultFXFallback
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ExchangeRateService{
		client:   &http.Client{Timeout: fxTimeout},
		url:      url,
		fallback: fallback,
		cache:    cache.New(ttl, 2*ttl),
	}
}

// USDToJPY returns the current rate, or the fallback flagged as such
func (s *ExchangeRateService) USDToJPY(ctx context.Context) FXQuote {
	if cached, ok := s.cache.Get(fxCacheKey); ok {
		return FXQuote{Rate: cached.(float64)}
	}

	rate, err := s.fetch(ctx)
	if err != nil {
		log.Printf("Exchange rate: using fallback %.2f: %v", s.fallback, err)
		metrics.FXFallbacksTotal.Inc()
		metrics.FXRate.Set(s.fallback)
		return FXQuote{Rate: s.fallback, Fallback: true}
	}

	s.cache.Set(fxCacheKey, rate, cache.DefaultExpiration)
	metrics.FXRate.Set(rate)
	return FXQuote{Rate: rate}
}

func (s *ExchangeRateService) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body erAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	rate, ok := body.Rates["JPY"]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no JPY rate in response")
	}
	return rate, nil
}
