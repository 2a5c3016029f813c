package services

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/codyseavey/tcg-market-report/internal/models"
)

const (
	imageProbeTimeout     = 5 * time.Second
	thumbnailConcurrency  = 3
	defaultThumbnailCache = 128
)

// ThumbnailProbe finds low-resolution preview images for candidate products
// and checks whether image URLs exist. Both are best effort.
type ThumbnailProbe struct {
	fetcher PageFetcher
	client  *http.Client
	limiter *rate.Limiter
	cache   *lru.Cache[string, string] // product URL -> image URL
}

// NewThumbnailProbe creates a probe. rps limits HEAD requests to image hosts.
func NewThumbnailProbe(fetcher PageFetcher, cacheSize int, rps float64) *ThumbnailProbe {
	if cacheSize <= 0 {
		cacheSize = defaultThumbnailCache
	}
	if rps <= 0 {
		rps = 5
	}

	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		log.Printf("Thumbnail probe: failed to create cache: %v", err)
	}

	return &ThumbnailProbe{
		fetcher: fetcher,
		client:  &http.Client{Timeout: imageProbeTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cache:   cache,
	}
}

// Thumbnail returns the product image for a candidate page without the
// high-resolution upgrade, or "" if none is found
func (p *ThumbnailProbe) Thumbnail(ctx context.Context, productURL string) string {
	if p.cache != nil {
		if cached, ok := p.cache.Get(productURL); ok {
			return cached
		}
	}

	text := p.fetcher.Fetch(ctx, productURL)
	if text == "" {
		return ""
	}

	var image string
	if strings.Contains(productURL, "snkrdunk.com") {
		if m := snkrImageRe.FindStringSubmatch(text); m != nil {
			image = m[1]
		}
	} else {
		image = priceChartingImage(text)
	}

	if image != "" && p.cache != nil {
		p.cache.Add(productURL, image)
	}
	return image
}

// Options builds the choice list shown for ambiguous candidates. Thumbnails
// are fetched concurrently and left empty on failure or cancellation.
func (p *ThumbnailProbe) Options(ctx context.Context, candidates []models.SearchCandidate) []models.CandidateOption {
	options := make([]models.CandidateOption, len(candidates))
	for i, c := range candidates {
		options[i] = models.CandidateOption{Index: i + 1, URL: c.URL, Slug: c.Slug}
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(thumbnailConcurrency)
	for i := range options {
		g.Go(func() error {
			options[i].ThumbnailURL = p.Thumbnail(gCtx, options[i].URL)
			return nil
		})
	}
	_ = g.Wait()
	return options
}

// Exists issues a rate-limited HEAD request for an image
func (p *ThumbnailProbe) Exists(ctx context.Context, imageURL string) bool {
	if err := p.limiter.Wait(ctx); err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		log.Printf("Thumbnail probe: HEAD %s failed: %v", imageURL, err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
