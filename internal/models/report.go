package models

import (
	"time"
)

// PriceStats summarizes prices inside the statistics window
type PriceStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// MarketReport is one marketplace's contribution to a Report
type MarketReport struct {
	Marketplace  Marketplace   `json:"marketplace"`
	Currency     string        `json:"currency"`
	URL          string        `json:"url,omitempty"`
	ImageURL     string        `json:"image_url,omitempty"`
	NoData       bool          `json:"no_data"`       // resolution failed or the page had no sales
	TotalRecords int           `json:"total_records"` // before grade filtering
	Records      []PriceRecord `json:"records"`       // target-grade records, newest first
	Stats        PriceStats    `json:"stats"`         // native currency, statistics window only
}

// Report is the terminal output of a run
type Report struct {
	Identity    CardIdentity           `json:"identity"`
	Markets     []MarketReport         `json:"markets"`
	Combined    PriceStats             `json:"combined_usd"` // all marketplaces, converted to USD
	SourceURLs  map[Marketplace]string `json:"source_urls"`
	ImageURL    string                 `json:"image_url,omitempty"`
	USDToJPY    float64                `json:"usd_to_jpy"`
	FXFallback  bool                   `json:"fx_fallback"`
	WindowStart time.Time              `json:"window_start"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// Market returns the report section for a marketplace, or nil
func (r *Report) Market(m Marketplace) *MarketReport {
	for i := range r.Markets {
		if r.Markets[i].Marketplace == m {
			return &r.Markets[i]
		}
	}
	return nil
}

// SearchCandidate is a product URL found on a search page, scored against the identity
type SearchCandidate struct {
	URL            string `json:"url"`
	Slug           string `json:"slug"`
	Title          string `json:"title,omitempty"`
	MatchedName    bool   `json:"matched_name"`
	MatchedNumber  bool   `json:"matched_number"`
	MatchedSetCode bool   `json:"matched_set_code"`
}

// CandidateOption is what the UI collaborator is shown for an ambiguous product
type CandidateOption struct {
	Index        int    `json:"index"`
	URL          string `json:"url"`
	Slug         string `json:"slug"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}
