package models

import (
	"testing"
)

func TestLabelFor(t *testing.T) {
	tests := []struct {
		name     string
		market   Marketplace
		raw      string
		expected GradeLabel
	}{
		{"snkrdunk S is PSA 10", MarketplaceSNKRDUNK, "S", GradePSA10},
		{"snkrdunk A is ungraded", MarketplaceSNKRDUNK, "A", GradeUngraded},
		{"snkrdunk PSA10 no space", MarketplaceSNKRDUNK, "PSA10", GradePSA10},
		{"snkrdunk BGS 9.5", MarketplaceSNKRDUNK, "BGS 9.5", GradeBGS95},
		{"snkrdunk B is unknown", MarketplaceSNKRDUNK, "B", ""},
		{"pricecharting S is unknown", MarketplacePriceCharting, "S", ""},
		{"pricecharting PSA 9", MarketplacePriceCharting, "PSA 9", GradePSA9},
		{"lowercase ungraded", MarketplacePriceCharting, "ungraded", GradeUngraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LabelFor(tt.market, tt.raw); got != tt.expected {
				t.Errorf("LabelFor(%s, %q) = %q, want %q", tt.market, tt.raw, got, tt.expected)
			}
		})
	}
}

func TestTargetLabels(t *testing.T) {
	tests := []struct {
		name     string
		market   Marketplace
		category Category
		grade    string
		expected []GradeLabel
		cap      int
	}{
		{"pricecharting psa10 takes bgs10", MarketplacePriceCharting, CategoryPokemon, "PSA 10", []GradeLabel{GradePSA10, GradeBGS10}, 0},
		{"snkrdunk psa10 takes bgs10", MarketplaceSNKRDUNK, CategoryPokemon, "PSA 10", []GradeLabel{GradePSA10, GradeBGS10}, 0},
		{"pricecharting psa9 exact", MarketplacePriceCharting, CategoryPokemon, "PSA 9", []GradeLabel{GradePSA9}, 0},
		{"snkrdunk bgs 9.5", MarketplaceSNKRDUNK, CategoryPokemon, "BGS 9.5", []GradeLabel{GradeBGS95, GradeBGS10}, 0},
		{"one piece bgs on pricecharting", MarketplacePriceCharting, CategoryOnePiece, "BGS 9.5", []GradeLabel{GradeBGS95, GradePSA10}, OnePieceBGSPerLabelCap},
		{"unknown grade", MarketplacePriceCharting, CategoryPokemon, "CGC 7", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, limit := TargetLabels(tt.market, tt.category, tt.grade)
			if limit != tt.cap {
				t.Errorf("cap = %d, want %d", limit, tt.cap)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("TargetLabels() = %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("TargetLabels()[%d] = %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}
