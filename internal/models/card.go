package models

import (
	"strings"
)

// Category is the product line a card belongs to
type Category string

const (
	CategoryPokemon  Category = "pokemon"
	CategoryOnePiece Category = "one piece"
)

// NormalizeCategory maps analyzer output ("Pokemon", "One Piece", "onepiece") to a Category.
// Unknown or empty values default to Pokemon.
func NormalizeCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "one piece", "onepiece", "one-piece", "op":
		return CategoryOnePiece
	default:
		return CategoryPokemon
	}
}

// HasDistinctReprints reports whether the product line is known to carry
// visually distinct reprints under the same name, number and set code.
func (c Category) HasDistinctReprints() bool {
	return c == CategoryOnePiece
}

// DisplayName returns the category name used in reports
func (c Category) DisplayName(lang string) string {
	switch c {
	case CategoryOnePiece:
		if lang == "en" {
			return "One Piece TCG"
		}
		return "航海王卡牌"
	default:
		if lang == "en" {
			return "Pokémon TCG"
		}
		return "寶可夢卡牌"
	}
}

// CardIdentity is the card being priced. It is produced once per run by the
// identity analyzer and passed by value afterwards.
type CardIdentity struct {
	Name      string   `json:"name"`
	JPName    string   `json:"jp_name,omitempty"`
	CName     string   `json:"c_name,omitempty"`
	SetCode   string   `json:"set_code"`
	Number    string   `json:"number"` // raw, e.g. "026", "004/SM-P", "OP02-026"
	Grade     string   `json:"grade"`  // e.g. "PSA 10", "BGS 9.5", "Ungraded"
	Category  Category `json:"category"`
	IsVariant bool     `json:"is_alt_art"`

	// Descriptive fields carried through to the text report
	ReleaseInfo     string `json:"release_info,omitempty"`
	Illustrator     string `json:"illustrator,omitempty"`
	MarketHeat      string `json:"market_heat,omitempty"`
	Features        string `json:"features,omitempty"`
	CollectionValue string `json:"collection_value,omitempty"`
	CompetitiveFreq string `json:"competitive_freq,omitempty"`
}

// Normalized fills defaults the analyzer may leave out
func (c CardIdentity) Normalized() CardIdentity {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = "Unknown"
	}
	c.Number = strings.TrimSpace(c.Number)
	if c.Number == "" {
		c.Number = "0"
	}
	c.SetCode = strings.TrimSpace(c.SetCode)
	c.Grade = strings.TrimSpace(c.Grade)
	if c.Grade == "" {
		c.Grade = string(GradeUngraded)
	}
	c.Category = NormalizeCategory(string(c.Category))
	return c
}

// DisplayName prefers the Chinese name, then the Japanese name, then the English name
func (c CardIdentity) DisplayName() string {
	if c.CName != "" {
		return c.CName
	}
	if c.JPName != "" {
		return c.JPName
	}
	return c.Name
}
