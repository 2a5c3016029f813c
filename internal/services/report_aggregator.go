package services

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/codyseavey/tcg-market-report/internal/models"
)

// StatsWindow is how far back sales count toward report statistics
const StatsWindow = 365 * 24 * time.Hour

// ReportAggregator combines per-marketplace resolutions into a Report
type ReportAggregator struct {
	fx  *ExchangeRateService
	now func() time.Time
}

func NewReportAggregator(fx *ExchangeRateService, now func() time.Time) *ReportAggregator {
	if now == nil {
		now = time.Now
	}
	return &ReportAggregator{fx: fx, now: now}
}

// Build looks up the exchange rate and aggregates. It never fails.
func (a *ReportAggregator) Build(ctx context.Context, card models.CardIdentity, results []Resolution) *models.Report {
	quote := FXQuote{Rate: defaultFXFallback, Fallback: true}
	if a.fx != nil {
		quote = a.fx.USDToJPY(ctx)
	}
	return AggregateReport(card, results, quote, a.now())
}

// AggregateReport is the pure aggregation step: grade filtering, windowed
// statistics per marketplace, and combined USD statistics.
func AggregateReport(card models.CardIdentity, results []Resolution, fx FXQuote, now time.Time) *models.Report {
	byMarket := make(map[models.Marketplace]Resolution, len(results))
	for _, r := range results {
		byMarket[r.Marketplace] = r
	}

	report := &models.Report{
		Identity:    card,
		SourceURLs:  make(map[models.Marketplace]string),
		USDToJPY:    fx.Rate,
		FXFallback:  fx.Fallback,
		WindowStart: now.Add(-StatsWindow),
		GeneratedAt: now,
	}

	var combined []float64
	for _, m := range models.AllMarketplaces() {
		res := byMarket[m]
		market := models.MarketReport{
			Marketplace:  m,
			Currency:     m.Currency(),
			URL:          res.URL,
			ImageURL:     res.ImageURL,
			TotalRecords: len(res.Records),
			NoData:       res.Status != StatusResolved || len(res.Records) == 0,
			Records:      FilterForGrade(res.Records, m, card.Category, card.Grade),
		}
		if res.URL != "" {
			report.SourceURLs[m] = res.URL
		}

		windowed := pricesInWindow(market.Records, now)
		market.Stats = computeStats(windowed)
		for _, p := range windowed {
			combined = append(combined, toUSD(p, m, fx.Rate))
		}
		report.Markets = append(report.Markets, market)
	}
	report.Combined = computeStats(combined)

	// Prefer the SNKRDUNK image, it is the cleanest scan
	if res, ok := byMarket[models.MarketplaceSNKRDUNK]; ok && res.ImageURL != "" {
		report.ImageURL = res.ImageURL
	} else if res, ok := byMarket[models.MarketplacePriceCharting]; ok {
		report.ImageURL = res.ImageURL
	}
	return report
}

// FilterForGrade keeps records that count as sales of the target grade,
// preserving order. Unknown target grades match the grade text exactly.
func FilterForGrade(records []models.PriceRecord, m models.Marketplace, c models.Category, grade string) []models.PriceRecord {
	out := []models.PriceRecord{}
	labels, perLabel := models.TargetLabels(m, c, grade)
	if len(labels) == 0 {
		for _, r := range records {
			if strings.EqualFold(strings.TrimSpace(r.Grade), strings.TrimSpace(grade)) {
				out = append(out, r)
			}
		}
		return out
	}

	want := make(map[models.GradeLabel]bool, len(labels))
	for _, l := range labels {
		want[l] = true
	}
	counts := make(map[models.GradeLabel]int)
	for _, r := range records {
		if !want[r.Label] {
			continue
		}
		if perLabel > 0 && counts[r.Label] >= perLabel {
			continue
		}
		counts[r.Label]++
		out = append(out, r)
	}
	return out
}

// recordTime parses a record date. Dates in no known format count as now.
func recordTime(r models.PriceRecord, now time.Time) time.Time {
	if t, ok := models.ParseRecordDate(r.Date, now); ok {
		return t
	}
	return now
}

func pricesInWindow(records []models.PriceRecord, now time.Time) []float64 {
	cutoff := now.Add(-StatsWindow)
	var prices []float64
	for _, r := range records {
		if recordTime(r, now).After(cutoff) {
			prices = append(prices, r.Price)
		}
	}
	return prices
}

func toUSD(price float64, m models.Marketplace, usdToJPY float64) float64 {
	if m.Currency() == "JPY" && usdToJPY > 0 {
		return price / usdToJPY
	}
	return price
}

func computeStats(prices []float64) models.PriceStats {
	if len(prices) == 0 {
		return models.PriceStats{}
	}
	stats := models.PriceStats{
		Count: len(prices),
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
	}
	sum := 0.0
	for _, p := range prices {
		stats.Min = math.Min(stats.Min, p)
		stats.Max = math.Max(stats.Max, p)
		sum += p
	}
	stats.Mean = sum / float64(len(prices))
	return stats
}
