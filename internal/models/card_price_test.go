package models

import (
	"testing"
	"time"
)

func TestMarketplaceCurrency(t *testing.T) {
	tests := []struct {
		name     string
		market   Marketplace
		expected string
	}{
		{"PriceCharting is USD", MarketplacePriceCharting, "USD"},
		{"SNKRDUNK is JPY", MarketplaceSNKRDUNK, "JPY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.market.Currency(); got != tt.expected {
				t.Errorf("Currency() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestAllGradeLabels(t *testing.T) {
	labels := AllGradeLabels()
	if len(labels) != 6 {
		t.Errorf("AllGradeLabels() returned %d labels, want 6", len(labels))
	}

	seen := make(map[GradeLabel]bool)
	for _, l := range labels {
		if seen[l] {
			t.Errorf("Duplicate label: %s", l)
		}
		seen[l] = true
	}
}

func TestParseRecordDate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    string
		expected time.Time
		ok       bool
	}{
		{"ISO date", "2025-01-15", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), true},
		{"slash date", "2024/12/31", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), true},
		{"slash date with time", "2025/06/12 07:30", time.Date(2025, 6, 12, 7, 30, 0, 0, time.UTC), true},
		{"month name", "Mar 5, 2025", time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"days ago japanese", "3日前", now.AddDate(0, 0, -3), true},
		{"hours ago japanese", "5時間前", now.Add(-5 * time.Hour), true},
		{"minutes ago japanese", "10分前", now.Add(-10 * time.Minute), true},
		{"days ago english", "2 days ago", now.AddDate(0, 0, -2), true},
		{"hour ago english", "1 hour ago", now.Add(-time.Hour), true},
		{"empty", "", time.Time{}, false},
		{"garbage", "yesterday-ish", time.Time{}, false},
		{"relative without number", "数日前", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRecordDate(tt.input, now)
			if ok != tt.ok {
				t.Fatalf("ParseRecordDate(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && !got.Equal(tt.expected) {
				t.Errorf("ParseRecordDate(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
