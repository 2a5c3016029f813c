package services

import (
	"testing"

	"github.com/codyseavey/tcg-market-report/internal/models"
)

func TestClassifyListingGrade(t *testing.T) {
	tests := []struct {
		title    string
		expected models.GradeLabel
	}{
		{"Pikachu 025 PSA 10 $120.00", models.GradePSA10},
		{"Pikachu PSA GEM MINT 10", models.GradePSA10},
		{"Pikachu CGC 10 Pristine", models.GradePSA10},
		{"Pikachu BGS 10 Black Label", models.GradeBGS10},
		{"Pikachu BGS 9.5", models.GradeBGS95},
		{"Pikachu CGC 9", models.GradePSA9},
		{"Pikachu PSA 8 NM-MT", models.GradePSA8},
		{"Pikachu 025/SV-P", models.GradeUngraded},
		{"Pikachu Ungraded $1,210.00", models.GradeUngraded},
		{"Pikachu PSA 7", ""},
		{"Pikachu graded", ""},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := ClassifyListingGrade(tt.title); got != tt.expected {
				t.Errorf("ClassifyListingGrade(%q) = %q, want %q", tt.title, got, tt.expected)
			}
		})
	}
}

func TestCanonicalDate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jan 2, 2025", "2025-01-02"},
		{" Dec 31, 2024 ", "2024-12-31"},
		{"2025-03-01", "2025-03-01"},
		{"2025/03/01", "2025/03/01"},
		{"3日前", "3日前"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CanonicalDate(tt.input); got != tt.expected {
				t.Errorf("CanonicalDate(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPCTableParserSkipsShippingAndUnknownGrades(t *testing.T) {
	lines := []string{
		"| Date | Title | Price |",
		"| --- | --- | --- |",
		"| 2025-03-01 | Pikachu 025 PSA 10 | $6.00 | $150.00 |",
		"| Feb 14, 2025 | Pikachu 025 | $12.50 |",
		"| 2025-01-10 | Pikachu 025 PSA 7 | $40.00 |",
		"| 2025-01-09 | Pikachu 025 | $6.00 |",
	}

	records := pcTableParser{}.Parse(lines, testEpoch)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
	if records[0].Date != "2025-03-01" || records[0].Price != 150.00 || records[0].Grade != "PSA 10" {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].Date != "2025-02-14" || records[1].Price != 12.50 || records[1].Grade != "Ungraded" {
		t.Errorf("records[1] = %+v", records[1])
	}
}

func TestPCLineGroupParser(t *testing.T) {
	lines := []string{
		"Sold Listings",
		"2025-03-01",
		"Pikachu 025 PSA 10 $1,150.00",
		"Pikachu 025 $6.00",
		"Mar 3, 2025",
		"Pikachu 025 PSA 9 [eBay] $80.00",
	}

	records := pcLineGroupParser{}.Parse(lines, testEpoch)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
	if records[0].Price != 1150.00 || records[0].Grade != "PSA 10" {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].Date != "2025-03-03" || records[1].Grade != "PSA 9" {
		t.Errorf("records[1] = %+v", records[1])
	}
}

func TestPCSummarySupplementOnlyFillsMissingGrades(t *testing.T) {
	lines := []string{
		"PSA 10 $155.00",
		"PSA 9 $80.00",
		"Ungraded $13.00",
		"BGS 10 $400.00",
	}
	existing := []models.PriceRecord{
		{Date: "2025-03-01", Price: 150, Grade: "PSA 10"},
	}

	extra := pcSummarySupplement{}.Supplement(lines, existing, testEpoch)
	if len(extra) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(extra), extra)
	}
	for _, r := range extra {
		if r.Date != "2025-06-15" {
			t.Errorf("summary record date = %q, want today", r.Date)
		}
		if r.Note != "PC avg price" {
			t.Errorf("summary record note = %q", r.Note)
		}
		if r.Grade == "PSA 10" {
			t.Error("PSA 10 already had a dated record and must not be synthesized")
		}
	}
}

func TestSNKRLineGroupParser(t *testing.T) {
	lines := []string{
		"![img](https://cdn.snkrdunk.com/x.jpg)",
		"2025/01/15",
		"PSA10",
		"12,000",
		"3日前",
		"",
		"A",
		"¥3,500",
		"2 days ago",
		"B",
		"800",
		"2025/01/01",
		"S",
	}

	records := snkrLineGroupParser{}.Parse(lines, testEpoch)
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3: %+v", len(records), records)
	}

	byDate := make(map[string]models.PriceRecord)
	for _, r := range records {
		byDate[r.Date] = r
	}
	if r := byDate["2025/01/15"]; r.Grade != "PSA10" || r.Price != 12000 {
		t.Errorf("2025/01/15 record = %+v", r)
	}
	// Relative dates are resolved against the parse time
	if r := byDate["2025/06/12 12:00"]; r.Grade != "A" || r.Price != 3500 {
		t.Errorf("3日前 record = %+v", r)
	}
	if r := byDate["2025/06/13 12:00"]; r.Grade != "B" || r.Price != 800 {
		t.Errorf("2 days ago record = %+v", r)
	}
}

func TestSNKRLineGroupParserLookaheadIsBounded(t *testing.T) {
	lines := []string{"2025/01/15", "PSA10"}
	for i := 0; i < 12; i++ {
		lines = append(lines, "-")
	}
	lines = append(lines, "12,000")

	if records := (snkrLineGroupParser{}).Parse(lines, testEpoch); len(records) != 0 {
		t.Errorf("got %d records, want 0 when the price is past the lookahead", len(records))
	}
}

func TestSNKRTableParser(t *testing.T) {
	lines := []string{
		"| 日付 | 状態 | 価格 |",
		"|---|---|---|",
		"| 2025/02/01 | PSA10 | ¥15,000 |",
		"| 5時間前 | S | 14,000円 |",
		"| 2025/01/01 | | |",
	}

	records := snkrTableParser{}.Parse(lines, testEpoch)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
	if records[0].Price != 15000 || records[0].Grade != "PSA10" {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].Date != "2025/06/15 07:00" || records[1].Price != 14000 {
		t.Errorf("records[1] = %+v", records[1])
	}
}

func TestAbsoluteSNKRDate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"3日前", "2025/06/12 12:00"},
		{"5時間前", "2025/06/15 07:00"},
		{"10分前", "2025/06/15 11:50"},
		{"1 hour ago", "2025/06/15 11:00"},
		{"2025/01/05", "2025/01/05"},
		{"数日前", "数日前"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := absoluteSNKRDate(tt.input, testEpoch); got != tt.expected {
				t.Errorf("absoluteSNKRDate(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
