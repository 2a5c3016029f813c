package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/codyseavey/tcg-market-report/internal/models"
)

// ResolutionStatus is the outcome of a catalog lookup
type ResolutionStatus string

const (
	StatusResolved  ResolutionStatus = "resolved"
	StatusAmbiguous ResolutionStatus = "ambiguous"
	StatusNotFound  ResolutionStatus = "not_found"
)

// Resolution is what a CatalogResolver hands back to the orchestrator
type Resolution struct {
	Marketplace models.Marketplace       `json:"marketplace"`
	Status      ResolutionStatus         `json:"status"`
	URL         string                   `json:"url,omitempty"`
	ImageURL    string                   `json:"image_url,omitempty"`
	Records     []models.PriceRecord     `json:"records,omitempty"`
	Candidates  []models.SearchCandidate `json:"candidates,omitempty"` // set when ambiguous
}

// CatalogResolver maps a card identity to a marketplace product and its sale records
type CatalogResolver interface {
	Marketplace() models.Marketplace
	// Resolve searches the marketplace. It never returns an error: failures are NotFound.
	Resolve(ctx context.Context, card models.CardIdentity) Resolution
	// FetchProduct finishes a resolution once a product URL is known
	FetchProduct(ctx context.Context, productURL string) Resolution
}

func notFound(m models.Marketplace) Resolution {
	return Resolution{Marketplace: m, Status: StatusNotFound}
}

var (
	parenRe    = regexp.MustCompile(`\(.*?\)`)
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)
	digitsRe   = regexp.MustCompile(`\d+`)
	setNumRe   = regexp.MustCompile(`[A-Z]+\d+-\d+`)
	promoRe    = regexp.MustCompile(`(?i)(SM-P|S-P|SV-P|SV-G|S8a-G)`)
)

// stripParens removes version notes like "(Flagship Battle Top 8 Prize)"
func stripParens(name string) string {
	return strings.Join(strings.Fields(parenRe.ReplaceAllString(name, "")), " ")
}

// Slugify lowercases s and joins alphanumeric runs with '-'
func Slugify(s string) string {
	return strings.Trim(nonAlnumRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func trimLeadingZeros(s string) string {
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}

// padNumber zero-pads a collector number to three digits
func padNumber(n string) string {
	for len(n) < 3 {
		n = "0" + n
	}
	return n
}

// collectorNumber extracts the bare collector number from the raw form:
// "OP02-026" -> "26", "004/SM-P" -> "4", "No.025" -> "25".
func collectorNumber(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "-") && setNumRe.MatchString(raw) {
		parts := strings.Split(raw, "-")
		if d := digitsRe.FindString(parts[len(parts)-1]); d != "" {
			return trimLeadingZeros(d)
		}
	}
	head := strings.TrimSpace(strings.Split(raw, "/")[0])
	if d := digitsRe.FindString(head); d != "" {
		return trimLeadingZeros(d)
	}
	return trimLeadingZeros(head)
}

// promoSuffix returns the part after '/' when it names a promo set ("004/SM-P" -> "SM-P")
func promoSuffix(raw string) string {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) < 2 {
		return ""
	}
	suffix := strings.TrimSpace(parts[1])
	if promoRe.MatchString(suffix) {
		return suffix
	}
	return ""
}

// cardQuery is the normalized search input derived from a card identity
type cardQuery struct {
	name      string // parenthesized notes removed
	nameSlug  string
	number    string // leading zeros removed
	padded    string
	setCode   string // explicit set code, or the promo suffix
	setSlug   string
	numberRes []*regexp.Regexp
}

func newCardQuery(card models.CardIdentity) cardQuery {
	name := stripParens(card.Name)
	number := collectorNumber(card.Number)
	setCode := card.SetCode
	if setCode == "" {
		setCode = promoSuffix(card.Number)
	}

	q := cardQuery{
		name:     name,
		nameSlug: Slugify(name),
		number:   number,
		padded:   padNumber(number),
		setCode:  setCode,
		setSlug:  strings.ReplaceAll(Slugify(card.SetCode), "-", ""),
	}
	for _, n := range []string{q.number, q.padded} {
		q.numberRes = append(q.numberRes, regexp.MustCompile(`(^|\D)`+regexp.QuoteMeta(n)+`(\D|$)`))
	}
	return q
}

// matchesNumber reports whether text carries the collector number as a whole
// digit run, stripped or padded, so "126" never matches "26".
func (q cardQuery) matchesNumber(text string) bool {
	for _, re := range q.numberRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (q cardQuery) matchesName(slug string) bool {
	return q.nameSlug != "" && strings.Contains(slug, q.nameSlug)
}

func (q cardQuery) matchesSet(slug string) bool {
	return q.setSlug != "" && strings.Contains(strings.ReplaceAll(slug, "-", ""), q.setSlug)
}

// topTier buckets candidates by tier (higher is better, 0 drops the
// candidate) and returns the best non-empty bucket and its tier.
func topTier(cands []models.SearchCandidate, tierOf func(models.SearchCandidate) int) ([]models.SearchCandidate, int) {
	best := 0
	var top []models.SearchCandidate
	for _, c := range cands {
		tier := tierOf(c)
		switch {
		case tier == 0 || tier < best:
			continue
		case tier > best:
			best = tier
			top = []models.SearchCandidate{c}
		default:
			top = append(top, c)
		}
	}
	return top, best
}

// variantKeywords mark alternate-art products on a marketplace
type variantKeywords struct {
	exclude []string // a regular printing must contain none of these
	prefer  []string // a variant printing prefers any of these
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// pickVariant chooses the candidate matching the card's art variant, falling
// back to the first candidate when nothing fits.
func pickVariant(cands []models.SearchCandidate, isVariant bool, kw variantKeywords, text func(models.SearchCandidate) string) models.SearchCandidate {
	for _, c := range cands {
		t := text(c)
		if isVariant && containsAny(t, kw.prefer) {
			return c
		}
		if !isVariant && !containsAny(t, kw.exclude) {
			return c
		}
	}
	return cands[0]
}

// dedupeStrings removes repeats while keeping first-seen order
func dedupeStrings(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
