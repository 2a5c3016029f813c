package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Marketplace identifies an external source of historical sale prices
type Marketplace string

const (
	MarketplacePriceCharting Marketplace = "pricecharting"
	MarketplaceSNKRDUNK      Marketplace = "snkrdunk"
)

// AllMarketplaces returns the marketplaces queried for every run, in report order
func AllMarketplaces() []Marketplace {
	return []Marketplace{MarketplacePriceCharting, MarketplaceSNKRDUNK}
}

// Currency returns the ISO code prices from this marketplace are quoted in
func (m Marketplace) Currency() string {
	if m == MarketplaceSNKRDUNK {
		return "JPY"
	}
	return "USD"
}

// DisplayName returns the marketplace name shown in reports
func (m Marketplace) DisplayName() string {
	switch m {
	case MarketplacePriceCharting:
		return "PriceCharting"
	case MarketplaceSNKRDUNK:
		return "SNKRDUNK"
	default:
		return string(m)
	}
}

// GradeLabel is the closed set of grade labels records are normalized into
type GradeLabel string

const (
	GradePSA10    GradeLabel = "PSA 10"
	GradeBGS10    GradeLabel = "BGS 10"
	GradeBGS95    GradeLabel = "BGS 9.5"
	GradePSA9     GradeLabel = "PSA 9"
	GradePSA8     GradeLabel = "PSA 8"
	GradeUngraded GradeLabel = "Ungraded"
)

// AllGradeLabels returns every label a record can be normalized into
func AllGradeLabels() []GradeLabel {
	return []GradeLabel{GradePSA10, GradeBGS10, GradeBGS95, GradePSA9, GradePSA8, GradeUngraded}
}

// PriceRecord is a single historical sale (or synthesized average) from one marketplace
type PriceRecord struct {
	Date   string      `json:"date"`  // marketplace-native, see ParseRecordDate
	Price  float64     `json:"price"` // in Source.Currency()
	Grade  string      `json:"grade"` // as seen on the page
	Label  GradeLabel  `json:"label,omitempty"`
	Source Marketplace `json:"source"`
	Note   string      `json:"note,omitempty"`
}

var (
	relativeDateRe = regexp.MustCompile(`(\d+)`)
	dateLayouts    = []string{"2006-01-02", "2006/01/02", "2006/01/02 15:04", "Jan 2, 2006"}
)

// ParseRecordDate converts a marketplace-native date string to a timestamp.
// Relative forms ("3日前", "2 hours ago") are resolved against now.
// Returns false if no supported format matches.
func ParseRecordDate(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if strings.Contains(s, "前") || strings.Contains(strings.ToLower(s), "ago") {
		m := relativeDateRe.FindString(s)
		n, err := strconv.Atoi(m)
		if err != nil {
			return time.Time{}, false
		}
		lower := strings.ToLower(s)
		switch {
		case strings.Contains(s, "分") || strings.Contains(lower, "minute"):
			return now.Add(-time.Duration(n) * time.Minute), true
		case strings.Contains(s, "時間") || strings.Contains(lower, "hour"):
			return now.Add(-time.Duration(n) * time.Hour), true
		case strings.Contains(s, "日") || strings.Contains(lower, "day"):
			return now.AddDate(0, 0, -n), true
		}
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
