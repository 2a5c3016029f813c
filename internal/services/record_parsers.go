package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/codyseavey/tcg-market-report/internal/models"
)

// RecordParser extracts sale records from page lines. Parsers are independent
// and know nothing about each other; the extractor decides which one wins.
type RecordParser interface {
	Name() string
	Parse(lines []string, now time.Time) []models.PriceRecord
}

// RecordSupplementer adds records the winning parser could not see
type RecordSupplementer interface {
	Name() string
	Supplement(lines []string, existing []models.PriceRecord, now time.Time) []models.PriceRecord
}

// PriceCharting patterns
var (
	pcTableDateRe = regexp.MustCompile(`\|\s*(\d{4}-\d{2}-\d{2}|[A-Z][a-z]{2}\s\d{1,2},\s\d{4})\s*\|`)
	pcLineDateRe  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}|[A-Z][a-z]{2}\s\d{1,2},\s\d{4})`)
	pcPriceRe     = regexp.MustCompile(`\$([\d,]+\.\d{2})`)
	pcSummaryRe   = regexp.MustCompile(`^(Ungraded|PSA10|PSA9|PSA8)\$([\d,]+\.\d{2})$`)
	pcStripRe     = regexp.MustCompile(`\$[\d,]+(\.\d{2})?|ungraded`)
)

// Grade keyword patterns, checked in order against lowercased space-free text
var gradeKeywordPatterns = []struct {
	re    *regexp.Regexp
	grade models.GradeLabel
}{
	{regexp.MustCompile(`bgs[a-z]*10`), models.GradeBGS10},
	{regexp.MustCompile(`(psa|cgc|bgs|grade|gem)[a-z]*10`), models.GradePSA10},
	{regexp.MustCompile(`bgs[a-z]*9\.5`), models.GradeBGS95},
	{regexp.MustCompile(`(psa|cgc|bgs|grade|gem)[a-z]*9`), models.GradePSA9},
	{regexp.MustCompile(`(psa|cgc|bgs|grade|gem)[a-z]*8`), models.GradePSA8},
}

var gradingTokenRe = regexp.MustCompile(`psa|bgs|cgc|grade|gem`)

// shippingPlaceholder is a flat fee PriceCharting prints next to some sales
const shippingPlaceholder = "6.00"

// ClassifyListingGrade maps a sale title to a grade label. Titles without any
// grading token are Ungraded; titles with an unrecognized grade return "".
func ClassifyListingGrade(title string) models.GradeLabel {
	clean := strings.ToLower(strings.ReplaceAll(title, " ", ""))
	clean = pcStripRe.ReplaceAllString(clean, "")

	for _, p := range gradeKeywordPatterns {
		if p.re.MatchString(clean) {
			return p.grade
		}
	}
	if !gradingTokenRe.MatchString(clean) {
		return models.GradeUngraded
	}
	return ""
}

// CanonicalDate rewrites "Jan 2, 2006" dates to ISO so all supported
// absolute formats sort lexically in date order. Other input is returned as is.
func CanonicalDate(s string) string {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("Jan 2, 2006", s); err == nil {
		return t.Format("2006-01-02")
	}
	return s
}

// lastRealPrice returns the last dollar amount on a line, skipping the shipping placeholder
func lastRealPrice(line string) (float64, bool) {
	var last string
	for _, m := range pcPriceRe.FindAllStringSubmatch(line, -1) {
		if m[1] == shippingPlaceholder {
			continue
		}
		last = m[1]
	}
	if last == "" {
		return 0, false
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(last, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

// pcTableParser reads sales rendered as markdown table rows
type pcTableParser struct{}

func (pcTableParser) Name() string { return "pc_table" }

func (pcTableParser) Parse(lines []string, _ time.Time) []models.PriceRecord {
	var records []models.PriceRecord
	for _, line := range lines {
		if !pcTableDateRe.MatchString(line) {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 5 {
			continue
		}
		price, ok := lastRealPrice(line)
		if !ok {
			continue
		}
		grade := ClassifyListingGrade(line)
		if grade == "" {
			continue
		}
		records = append(records, models.PriceRecord{
			Date:  CanonicalDate(parts[1]),
			Price: price,
			Grade: string(grade),
		})
	}
	return records
}

// pcLineGroupParser reads sales laid out as a date line followed by title/price lines
type pcLineGroupParser struct{}

func (pcLineGroupParser) Name() string { return "pc_line_group" }

func (pcLineGroupParser) Parse(lines []string, _ time.Time) []models.PriceRecord {
	var records []models.PriceRecord
	currentDate := ""
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if m := pcLineDateRe.FindStringSubmatch(line); m != nil {
			currentDate = CanonicalDate(m[1])
			continue
		}
		if currentDate == "" || !strings.Contains(line, "$") {
			continue
		}
		price, ok := lastRealPrice(line)
		if !ok {
			continue
		}
		grade := ClassifyListingGrade(line)
		if grade == "" {
			continue
		}
		records = append(records, models.PriceRecord{
			Date:  currentDate,
			Price: price,
			Grade: string(grade),
		})
	}
	return records
}

// pcSummarySupplement turns the per-grade average table ("PSA 10 $123.45")
// into records dated today, for grades that have no dated sale.
type pcSummarySupplement struct{}

func (pcSummarySupplement) Name() string { return "pc_summary" }

var pcSummaryGrades = map[string]models.GradeLabel{
	"Ungraded": models.GradeUngraded,
	"PSA10":    models.GradePSA10,
	"PSA9":     models.GradePSA9,
	"PSA8":     models.GradePSA8,
}

func (pcSummarySupplement) Supplement(lines []string, existing []models.PriceRecord, now time.Time) []models.PriceRecord {
	seen := make(map[string]bool)
	for _, r := range existing {
		seen[r.Grade] = true
	}

	today := now.Format("2006-01-02")
	var records []models.PriceRecord
	for _, line := range lines {
		m := pcSummaryRe.FindStringSubmatch(strings.ReplaceAll(strings.TrimSpace(line), " ", ""))
		if m == nil {
			continue
		}
		grade := string(pcSummaryGrades[m[1]])
		if seen[grade] {
			continue
		}
		price, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if err != nil {
			continue
		}
		seen[grade] = true
		records = append(records, models.PriceRecord{
			Date:  today,
			Price: price,
			Grade: grade,
			Note:  "PC avg price",
		})
	}
	return records
}

// SNKRDUNK patterns
var (
	snkrDateRe  = regexp.MustCompile(`(?i)^(\d{4}/\d{2}/\d{2}|\d+\s*(分|時間|日)前|\d+\s+(minute|hour|day)s?\s+ago)$`)
	snkrPriceRe = regexp.MustCompile(`^[¥￥]?\s*(\d{1,3}(?:,\d{3})*)\s*円?$`)
)

// snkrLookahead is how many lines after a date line may hold its grade and price
const snkrLookahead = 10

// snkrResolvedDateLayout is how relative SNKRDUNK dates are stored once
// resolved. It sorts lexically alongside the site's "2006/01/02" dates.
const snkrResolvedDateLayout = "2006/01/02 15:04"

// absoluteSNKRDate resolves relative dates ("3日前", "5 hours ago") against now.
// Absolute and unparseable dates are returned unchanged.
func absoluteSNKRDate(s string, now time.Time) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "前") && !strings.Contains(strings.ToLower(s), "ago") {
		return s
	}
	t, ok := models.ParseRecordDate(s, now)
	if !ok {
		return s
	}
	return t.Format(snkrResolvedDateLayout)
}

func parseYen(s string) (float64, bool) {
	m := snkrPriceRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

// snkrTableParser reads "| date | grade | price |" rows
type snkrTableParser struct{}

func (snkrTableParser) Name() string { return "snkr_table" }

func (snkrTableParser) Parse(lines []string, now time.Time) []models.PriceRecord {
	var records []models.PriceRecord
	for _, line := range lines {
		if !strings.Contains(line, "|") {
			continue
		}
		var date, grade string
		var price float64
		for _, cell := range strings.Split(line, "|") {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			switch {
			case date == "" && snkrDateRe.MatchString(cell):
				date = absoluteSNKRDate(cell, now)
			case date != "" && grade == "":
				if _, isPrice := parseYen(cell); isPrice {
					continue
				}
				grade = cell
			case grade != "" && price == 0:
				if p, ok := parseYen(cell); ok {
					price = p
				}
			}
		}
		if date != "" && grade != "" && price > 0 {
			records = append(records, models.PriceRecord{Date: date, Price: price, Grade: grade})
		}
	}
	return records
}

// snkrLineGroupParser reads a date line followed, within a few lines, by a grade line and a price line
type snkrLineGroupParser struct{}

func (snkrLineGroupParser) Name() string { return "snkr_line_group" }

func (snkrLineGroupParser) Parse(lines []string, now time.Time) []models.PriceRecord {
	var records []models.PriceRecord
	for i, raw := range lines {
		date := strings.TrimSpace(raw)
		if !snkrDateRe.MatchString(date) {
			continue
		}

		grade := ""
		price := 0.0
		end := min(i+snkrLookahead, len(lines))
		for j := i + 1; j < end; j++ {
			line := strings.TrimSpace(lines[j])
			if line == "" {
				continue
			}
			p, isPrice := parseYen(line)
			if grade == "" {
				if isPrice || startsWithDigit(line) {
					continue
				}
				grade = line
				continue
			}
			if isPrice {
				price = p
				break
			}
		}

		if grade != "" && price > 0 {
			records = append(records, models.PriceRecord{Date: absoluteSNKRDate(date, now), Price: price, Grade: grade})
		}
	}
	return records
}

func startsWithDigit(s string) bool {
	s = strings.ReplaceAll(s, ",", "")
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
