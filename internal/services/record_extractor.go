package services

import (
	"sort"
	"strings"
	"time"

	"github.com/codyseavey/tcg-market-report/internal/metrics"
	"github.com/codyseavey/tcg-market-report/internal/models"
)

// ParserChain is an ordered list of parsers for one marketplace.
// The first parser that yields any record wins.
type ParserChain struct {
	Parsers    []RecordParser
	Supplement RecordSupplementer // optional
}

// RecordExtractor turns fetched page text into normalized price records
type RecordExtractor struct {
	now    func() time.Time
	chains map[models.Marketplace]ParserChain
}

// DefaultParserChains returns the parser order used for each marketplace
func DefaultParserChains() map[models.Marketplace]ParserChain {
	return map[models.Marketplace]ParserChain{
		models.MarketplacePriceCharting: {
			Parsers:    []RecordParser{pcTableParser{}, pcLineGroupParser{}},
			Supplement: pcSummarySupplement{},
		},
		models.MarketplaceSNKRDUNK: {
			Parsers: []RecordParser{snkrTableParser{}, snkrLineGroupParser{}},
		},
	}
}

// NewRecordExtractor creates an extractor. now may be nil to use the wall clock.
func NewRecordExtractor(now func() time.Time) *RecordExtractor {
	if now == nil {
		now = time.Now
	}
	return &RecordExtractor{
		now:    now,
		chains: DefaultParserChains(),
	}
}

// Extract parses page text for a marketplace. Empty or unrecognized text
// yields no records. Records come back sorted newest first by date string,
// which is chronological for every date form the parsers emit.
func (e *RecordExtractor) Extract(pageText string, market models.Marketplace) []models.PriceRecord {
	if strings.TrimSpace(pageText) == "" {
		return nil
	}
	chain, ok := e.chains[market]
	if !ok {
		return nil
	}

	lines := strings.Split(pageText, "\n")
	now := e.now()

	var records []models.PriceRecord
	for _, p := range chain.Parsers {
		records = p.Parse(lines, now)
		if len(records) > 0 {
			metrics.RecordsExtractedTotal.WithLabelValues(string(market), p.Name()).Add(float64(len(records)))
			break
		}
	}

	if chain.Supplement != nil {
		extra := chain.Supplement.Supplement(lines, records, now)
		if len(extra) > 0 {
			metrics.RecordsExtractedTotal.WithLabelValues(string(market), chain.Supplement.Name()).Add(float64(len(extra)))
			records = append(records, extra...)
		}
	}

	// Records whose grade maps to no label are dropped
	labeled := records[:0]
	for _, r := range records {
		r.Source = market
		r.Label = models.LabelFor(market, r.Grade)
		if r.Label == "" {
			continue
		}
		labeled = append(labeled, r)
	}
	records = labeled

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date > records[j].Date
	})
	return records
}
