package services

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"

	"github.com/codyseavey/tcg-market-report/internal/metrics"
	"github.com/codyseavey/tcg-market-report/internal/models"
)

const snkrdunkBaseURL = "https://snkrdunk.com"

var (
	snkrLinkRe        = regexp.MustCompile(`\[(.*?)\]\([^)]*?/apparels/(\d+)[^)]*?\)`)
	snkrProductIDRe   = regexp.MustCompile(`/apparels/(\d+)`)
	snkrImageRe       = regexp.MustCompile(`!\[.*?\]\((https://cdn\.snkrdunk\.com/.*?)\)`)
	snkrImagePrefixRe = regexp.MustCompile(`(?i)image\s*\d+:\s*`)
	snkrURLRe         = regexp.MustCompile(`https?://[^\s()\]]+`)
)

var snkrVariantKeywords = variantKeywords{
	exclude: []string{"コミパラ", "manga", "パラレル", "-p", "-sp", "sr-p", "l-p"},
	prefer:  []string{"コミパラ", "manga", "パラレル", "-p", "-sp", "sr-p", "l-p"},
}

// SNKRDUNKResolver resolves cards against SNKRDUNK (JPY)
type SNKRDUNKResolver struct {
	fetcher   PageFetcher
	extractor *RecordExtractor
}

func NewSNKRDUNKResolver(fetcher PageFetcher, extractor *RecordExtractor) *SNKRDUNKResolver {
	return &SNKRDUNKResolver{
		fetcher:   fetcher,
		extractor: extractor,
	}
}

func (r *SNKRDUNKResolver) Marketplace() models.Marketplace {
	return models.MarketplaceSNKRDUNK
}

// searchTerms returns search keywords, set-code qualified first
func (r *SNKRDUNKResolver) searchTerms(card models.CardIdentity, q cardQuery) []string {
	var terms []string
	if card.SetCode != "" {
		if card.JPName != "" {
			terms = append(terms, card.JPName+" "+card.SetCode)
		}
		terms = append(terms, card.Name+" "+card.SetCode)
	}
	if card.JPName != "" {
		terms = append(terms, card.JPName+" "+q.padded)
	}
	return append(terms, card.Name+" "+q.padded)
}

// cleanTitle drops reader image prefixes and CDN links, whose digits would
// otherwise match card numbers
func cleanTitle(title string) string {
	t := snkrImagePrefixRe.ReplaceAllString(title, "")
	t = strings.ToLower(t)
	return strings.TrimSpace(snkrURLRe.ReplaceAllString(t, ""))
}

// Resolve searches SNKRDUNK and fetches the sales history of the best product
func (r *SNKRDUNKResolver) Resolve(ctx context.Context, card models.CardIdentity) Resolution {
	res := r.resolve(ctx, card)
	metrics.ResolutionsTotal.WithLabelValues(string(res.Marketplace), string(res.Status)).Inc()
	return res
}

func (r *SNKRDUNKResolver) resolve(ctx context.Context, card models.CardIdentity) Resolution {
	q := newCardQuery(card)
	// Titles carry the padded number ("026", "OP02-026") or the bare number before a '/'
	q.numberRes = []*regexp.Regexp{
		regexp.MustCompile(`(^|\D)` + regexp.QuoteMeta(q.padded) + `(\D|$)`),
		regexp.MustCompile(`(^|\D)` + regexp.QuoteMeta(q.number) + `/`),
	}

	names := []string{strings.ToLower(card.JPName), strings.ToLower(stripParens(card.Name))}
	setCode := strings.ToLower(card.SetCode)

	for _, term := range r.searchTerms(card, q) {
		searchURL := snkrdunkBaseURL + "/search?keywords=" + url.QueryEscape(term)
		text := r.fetcher.Fetch(ctx, searchURL)
		if text == "" {
			continue
		}

		candidates := r.candidates(text, q, names, setCode)
		if len(candidates) == 0 {
			log.Printf("SNKRDUNK: no listing with number %s for %q", q.padded, term)
			continue
		}

		top, _ := topTier(candidates, func(c models.SearchCandidate) int {
			if c.MatchedSetCode || c.MatchedName {
				return 2
			}
			return 1
		})
		chosen := pickVariant(top, card.IsVariant, snkrVariantKeywords, func(c models.SearchCandidate) string {
			// Promo set codes like "sv-p" would otherwise read as the "-p" keyword
			t := strings.ToLower(c.Title)
			if setCode != "" {
				t = strings.ReplaceAll(t, setCode, "")
			}
			return t
		})
		log.Printf("SNKRDUNK: selected product %s (%s)", chosen.Slug, chosen.Title)
		return r.FetchProduct(ctx, chosen.URL)
	}

	log.Printf("SNKRDUNK: no product found for %q #%s", card.Name, q.padded)
	return notFound(r.Marketplace())
}

// candidates extracts product links whose titles carry the card number
func (r *SNKRDUNKResolver) candidates(text string, q cardQuery, names []string, setCode string) []models.SearchCandidate {
	seen := make(map[string]bool)
	var out []models.SearchCandidate
	for _, m := range snkrLinkRe.FindAllStringSubmatch(text, -1) {
		title, id := m[1], m[2]
		if seen[id] {
			continue
		}
		seen[id] = true

		clean := cleanTitle(title)
		if !q.matchesNumber(clean) {
			continue
		}

		matchedName := false
		for _, n := range names {
			if n != "" && strings.Contains(clean, n) {
				matchedName = true
				break
			}
		}
		out = append(out, models.SearchCandidate{
			URL:            fmt.Sprintf("%s/apparels/%s", snkrdunkBaseURL, id),
			Slug:           id,
			Title:          title,
			MatchedName:    matchedName,
			MatchedNumber:  true,
			MatchedSetCode: setCode != "" && strings.Contains(clean, setCode),
		})
	}
	return out
}

// FetchProduct fetches the sales history of a product URL
func (r *SNKRDUNKResolver) FetchProduct(ctx context.Context, productURL string) Resolution {
	m := snkrProductIDRe.FindStringSubmatch(productURL)
	if m == nil {
		log.Printf("SNKRDUNK: not a product URL: %s", productURL)
		return notFound(r.Marketplace())
	}
	productURL = fmt.Sprintf("%s/apparels/%s", snkrdunkBaseURL, m[1])

	text := r.fetcher.Fetch(ctx, productURL+"/sales-histories")
	if text == "" {
		log.Printf("SNKRDUNK: failed to get sales history for %s", productURL)
		res := notFound(r.Marketplace())
		res.URL = productURL
		return res
	}

	imageURL := ""
	if img := snkrImageRe.FindStringSubmatch(text); img != nil {
		imageURL = img[1]
	}

	records := r.extractor.Extract(text, r.Marketplace())
	log.Printf("SNKRDUNK: parsed %d records from %s", len(records), productURL)
	return Resolution{
		Marketplace: r.Marketplace(),
		Status:      StatusResolved,
		URL:         productURL,
		ImageURL:    imageURL,
		Records:     records,
	}
}
