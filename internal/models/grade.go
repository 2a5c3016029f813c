package models

import (
	"strings"
)

// gradeAliases maps upper-cased, space-free grade text to a label.
// Marketplace-specific codes live in MarketplaceGradeCodes.
var gradeAliases = map[string]GradeLabel{
	"PSA10":    GradePSA10,
	"GEM10":    GradePSA10,
	"BGS10":    GradeBGS10,
	"BGS9.5":   GradeBGS95,
	"PSA9":     GradePSA9,
	"PSA8":     GradePSA8,
	"UNGRADED": GradeUngraded,
	"RAW":      GradeUngraded,
}

// MarketplaceGradeCodes holds grade codes that only mean something on one marketplace.
// SNKRDUNK sells graded slabs as "S" and raw cards in mint condition as "A".
var MarketplaceGradeCodes = map[Marketplace]map[string]GradeLabel{
	MarketplaceSNKRDUNK: {
		"S": GradePSA10,
		"A": GradeUngraded,
	},
}

// TargetGradeEquivalence lists, per marketplace, which record labels count as
// a sale of the target grade. Targets missing from the table match only themselves.
// A grading company's 10 is the top grade, so PSA 10 targets take BGS 10 sales too.
var TargetGradeEquivalence = map[Marketplace]map[GradeLabel][]GradeLabel{
	MarketplacePriceCharting: {
		GradePSA10: {GradePSA10, GradeBGS10},
	},
	MarketplaceSNKRDUNK: {
		GradePSA10: {GradePSA10, GradeBGS10},
		GradeBGS10: {GradeBGS10, GradePSA10},
		GradeBGS95: {GradeBGS95, GradeBGS10},
	},
}

// onePieceBGSTargets is used for One Piece cards graded by BGS: both BGS 9.5
// and PSA 10 sales are shown, capped per label.
var onePieceBGSTargets = map[Marketplace][]GradeLabel{
	MarketplacePriceCharting: {GradeBGS95, GradePSA10},
	MarketplaceSNKRDUNK:      {GradeBGS95, GradeBGS10, GradePSA10},
}

// OnePieceBGSPerLabelCap is how many records per label are kept for One Piece BGS targets
const OnePieceBGSPerLabelCap = 10

// ParseGradeLabel normalizes free-form grade text ("psa10", "PSA 10", "Raw") to a label.
// Returns "" if the text is not a known grade.
func ParseGradeLabel(s string) GradeLabel {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if key == "" {
		return ""
	}
	return gradeAliases[key]
}

// LabelFor normalizes a grade string as displayed by a marketplace
func LabelFor(m Marketplace, raw string) GradeLabel {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if codes, ok := MarketplaceGradeCodes[m]; ok {
		if label, ok := codes[key]; ok {
			return label
		}
	}
	return ParseGradeLabel(raw)
}

// TargetLabels returns the record labels that match the identity's grade on a
// marketplace, and the per-label cap (0 means unlimited).
func TargetLabels(m Marketplace, c Category, grade string) ([]GradeLabel, int) {
	target := ParseGradeLabel(grade)
	if target == "" {
		return nil, 0
	}

	if c == CategoryOnePiece && strings.HasPrefix(strings.ToUpper(strings.TrimSpace(grade)), "BGS") {
		return onePieceBGSTargets[m], OnePieceBGSPerLabelCap
	}

	if byTarget, ok := TargetGradeEquivalence[m]; ok {
		if labels, ok := byTarget[target]; ok {
			return labels, 0
		}
	}
	return []GradeLabel{target}, 0
}

// TargetDisplay describes the target grade the way a marketplace shows it
func TargetDisplay(m Marketplace, grade string) string {
	if m != MarketplaceSNKRDUNK {
		return grade
	}
	switch ParseGradeLabel(grade) {
	case GradePSA10:
		return "S (PSA 10)"
	case GradeUngraded:
		return "A (Raw)"
	default:
		return grade
	}
}
