package services

import (
	"context"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/codyseavey/tcg-market-report/internal/metrics"
	"github.com/codyseavey/tcg-market-report/internal/models"
)

const priceChartingSearchURL = "https://www.pricecharting.com/search-products"

var (
	pcProductURLRe = regexp.MustCompile(`(https://www\.pricecharting\.com/game/[^/\s]+/[^"\s)\]]+)`)
	pcHiResRe      = regexp.MustCompile(`/(\d+)\.jpg$`)

	// Checked in order, most specific first
	pcImagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`!\[.*?\]\((https://storage\.googleapis\.com/images\.pricecharting\.com/[^/)]+/\d+\.jpg)\)`),
		regexp.MustCompile(`!\[.*?\]\((https://product-images\.s3\.amazonaws\.com/[^)]+)\)`),
		regexp.MustCompile(`!\[.*?\]\((https://images\.pricecharting\.com/[^)]+)\)`),
		regexp.MustCompile(`!\[.*?\]\((https://[^)]+?pricecharting\.com/[^)]+?\.(?:jpg|png|webp)[^)]*)\)`),
		regexp.MustCompile(`!\[.*?\]\((https://[^)]+?\.(?:jpg|png|webp)[^)]*)\)`),
	}

	pcResultMarkers = []string{"Search Results", "Your search for"}
)

const pcLandingMarker = "PriceCharting"

var pcVariantKeywords = variantKeywords{
	exclude: []string{"manga", "alternate-art", "-sp", "flagship"},
	prefer:  []string{"manga", "alternate-art", "-sp"},
}

// ImageChecker reports whether an image URL is reachable
type ImageChecker interface {
	Exists(ctx context.Context, imageURL string) bool
}

// PriceChartingResolver resolves cards against PriceCharting (USD)
type PriceChartingResolver struct {
	fetcher   PageFetcher
	extractor *RecordExtractor
	images    ImageChecker // optional, enables the 1600px image upgrade
}

// NewPriceChartingResolver creates a resolver. images may be nil.
func NewPriceChartingResolver(fetcher PageFetcher, extractor *RecordExtractor, images ImageChecker) *PriceChartingResolver {
	return &PriceChartingResolver{
		fetcher:   fetcher,
		extractor: extractor,
		images:    images,
	}
}

func (r *PriceChartingResolver) Marketplace() models.Marketplace {
	return models.MarketplacePriceCharting
}

// searchQueries returns queries from most to least specific
func (r *PriceChartingResolver) searchQueries(q cardQuery) []string {
	var queries []string
	if q.setCode != "" {
		queries = append(queries, strings.Join([]string{q.name, q.setCode, q.number}, " "))
	}
	return append(queries, q.name+" "+q.number)
}

func searchURL(query string) string {
	return priceChartingSearchURL + "?q=" + url.QueryEscape(query) + "&type=prices"
}

func isResultsPage(text string) bool {
	return containsAny(text, pcResultMarkers)
}

// Resolve searches PriceCharting and fetches the best product page
func (r *PriceChartingResolver) Resolve(ctx context.Context, card models.CardIdentity) Resolution {
	res := r.resolve(ctx, card)
	metrics.ResolutionsTotal.WithLabelValues(string(res.Marketplace), string(res.Status)).Inc()
	return res
}

func (r *PriceChartingResolver) resolve(ctx context.Context, card models.CardIdentity) Resolution {
	q := newCardQuery(card)

	var text, landedURL string
	for _, query := range r.searchQueries(q) {
		u := searchURL(query)
		text = r.fetcher.Fetch(ctx, u)
		if text != "" && (isResultsPage(text) || strings.Contains(text, pcLandingMarker)) {
			landedURL = u
			break
		}
	}
	if landedURL == "" {
		log.Printf("PriceCharting: no search page for %q #%s", q.name, q.number)
		return notFound(r.Marketplace())
	}

	if !isResultsPage(text) {
		// The search redirected straight to a product page
		log.Printf("PriceCharting: landed directly on product page for %q", q.name)
		return r.productResolution(ctx, landedURL, text)
	}

	candidates := scorePriceChartingCandidates(q, pcProductURLRe.FindAllString(text, -1))
	top, tier := topTier(candidates, func(c models.SearchCandidate) int {
		return priceChartingTier(q, card.Category, c)
	})
	if len(top) == 0 {
		log.Printf("PriceCharting: no product matched %q or number %s", q.name, q.number)
		return notFound(r.Marketplace())
	}

	if card.Category.HasDistinctReprints() && tier == pcTierFull && len(top) > 1 {
		log.Printf("PriceCharting: %d printings match %q #%s, asking for a choice", len(top), q.name, q.number)
		return Resolution{
			Marketplace: r.Marketplace(),
			Status:      StatusAmbiguous,
			Candidates:  top,
		}
	}

	chosen := pickVariant(top, card.IsVariant, pcVariantKeywords, func(c models.SearchCandidate) string {
		return strings.ToLower(strings.NewReplacer("[", "", "]", "").Replace(c.URL))
	})
	log.Printf("PriceCharting: selected %s", chosen.URL)
	return r.FetchProduct(ctx, chosen.URL)
}

const (
	pcTierNumber = 1
	pcTierName   = 2
	pcTierFull   = 3
)

// priceChartingTier ranks a candidate. Product lines with distinct reprints
// must also match the set code to reach the upper tiers.
func priceChartingTier(q cardQuery, category models.Category, c models.SearchCandidate) int {
	if category.HasDistinctReprints() {
		switch {
		case c.MatchedName && c.MatchedNumber && c.MatchedSetCode:
			return pcTierFull
		case c.MatchedName && c.MatchedSetCode:
			return pcTierName
		case c.MatchedNumber && c.MatchedSetCode, c.MatchedName && c.MatchedNumber:
			return pcTierNumber
		}
		return 0
	}

	switch {
	case c.MatchedName && c.MatchedNumber:
		return pcTierFull
	case c.MatchedName:
		return pcTierName
	case c.MatchedNumber:
		return pcTierNumber
	}
	return 0
}

func scorePriceChartingCandidates(q cardQuery, urls []string) []models.SearchCandidate {
	var out []models.SearchCandidate
	for _, u := range dedupeStrings(urls) {
		parts := strings.Split(u, "/")
		slug := strings.ToLower(parts[len(parts)-1])
		out = append(out, models.SearchCandidate{
			URL:            u,
			Slug:           slug,
			MatchedName:    q.matchesName(slug),
			MatchedNumber:  q.matchesNumber(slug),
			MatchedSetCode: q.matchesSet(slug),
		})
	}
	return out
}

// FetchProduct fetches a product page and extracts its sale records
func (r *PriceChartingResolver) FetchProduct(ctx context.Context, productURL string) Resolution {
	text := r.fetcher.Fetch(ctx, productURL)
	if text == "" {
		log.Printf("PriceCharting: failed to get product page %s", productURL)
		res := notFound(r.Marketplace())
		res.URL = productURL
		return res
	}
	return r.productResolution(ctx, productURL, text)
}

func (r *PriceChartingResolver) productResolution(ctx context.Context, productURL, text string) Resolution {
	records := r.extractor.Extract(text, r.Marketplace())
	log.Printf("PriceCharting: parsed %d records from %s", len(records), productURL)

	return Resolution{
		Marketplace: r.Marketplace(),
		Status:      StatusResolved,
		URL:         productURL,
		ImageURL:    r.upgradeImage(ctx, priceChartingImage(text)),
		Records:     records,
	}
}

// priceChartingImage returns the first product image on the page
func priceChartingImage(text string) string {
	for _, re := range pcImagePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// upgradeImage swaps a sized image for the 1600px rendition when it exists
func (r *PriceChartingResolver) upgradeImage(ctx context.Context, imageURL string) string {
	if imageURL == "" || r.images == nil {
		return imageURL
	}
	hiRes := pcHiResRe.ReplaceAllString(imageURL, "/1600.jpg")
	if hiRes != imageURL && r.images.Exists(ctx, hiRes) {
		return hiRes
	}
	return imageURL
}
