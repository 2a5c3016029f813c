package services

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/codyseavey/tcg-market-report/internal/models"
)

// ReportTextRecordLimit is how many records per marketplace the text report lists
const ReportTextRecordLimit = 10

// reportStrings holds the per-language wording of the text report
type reportStrings struct {
	header        string
	grade         string
	category      string
	number        string
	release       string
	illustrator   string
	analysis      string
	marketHeat    string
	features      string
	collectible   string
	competitive   string
	recentSales   string
	pcSection     string
	snkrSection   string
	state         string
	statsHeader   string
	statsEmpty    string
	highest       string
	lowest        string
	average       string
	count         string
	noData        string
	noGradeData   string
	viewPC        string
	viewSNKR      string
	viewHistory   string
	fxFallbackTip string
}

var reportLanguages = map[string]reportStrings{
	"en": {
		header:        "# MARKET REPORT",
		grade:         "💮 Grade: %s",
		category:      "🏷️ Type: %s",
		number:        "🔢 Number: %s",
		release:       "📅 Release: %s",
		illustrator:   "🎨 Illustrator: %s",
		analysis:      "\n🔥 Market & Collectibility Analysis\n",
		marketHeat:    "🔥 Market Heat\n%s\n",
		features:      "✨ Card Features\n%s\n",
		collectible:   "🏆 Collectibility\n%s\n",
		competitive:   "⚔️ Competitive Frequency\n%s\n",
		recentSales:   "📊 Recent Sales (newest first)",
		pcSection:     "🏦 PriceCharting Records",
		snkrSection:   "\n---\n🏯 SNKRDUNK Records",
		state:         "Grade",
		statsHeader:   "📊 Statistics (Last 12 Mo.)",
		statsEmpty:    "📊 Statistics (No records in last 12 mo.)",
		highest:       "　💰 Highest: %s",
		lowest:        "　💰 Lowest: %s",
		average:       "　💰 Average: %s",
		count:         "　📈 Records: %d",
		noData:        "%s: No data found.",
		noGradeData:   "%s: No %s records found.",
		viewPC:        "View PriceCharting",
		viewSNKR:      "View SNKRDUNK",
		viewHistory:   "View Sales History",
		fxFallbackTip: "⚠️ Exchange rate unavailable, using ¥%.0f per USD",
	},
	"zh": {
		header:        "# MARKET REPORT GENERATED",
		grade:         "💮 等級：%s",
		category:      "🏷️ 版本：%s",
		number:        "🔢 編號：%s",
		release:       "📅 發行：%s",
		illustrator:   "🎨 插畫家：%s",
		analysis:      "\n🔥 市場與收藏分析\n",
		marketHeat:    "🔥 市場熱度\n%s\n",
		features:      "✨ 卡片特點\n%s\n",
		collectible:   "🏆 收藏價值\n%s\n",
		competitive:   "⚔️ 競技頻率\n%s\n",
		recentSales:   "📊 近期成交紀錄 (由新到舊)",
		pcSection:     "🏦 PriceCharting 成交紀錄",
		snkrSection:   "\n---\n🏯 SNKRDUNK 成交紀錄",
		state:         "狀態",
		statsHeader:   "📊 統計資料 (近 12 個月)",
		statsEmpty:    "📊 統計資料 (近 12 個月無成交紀錄)",
		highest:       "　💰 最高成交價：%s",
		lowest:        "　💰 最低成交價：%s",
		average:       "　💰 平均成交價：%s",
		count:         "　📈 資料筆數：%d 筆",
		noData:        "%s: 無此卡片資料",
		noGradeData:   "%s: 無 %s 等級的卡片資料",
		viewPC:        "查看 PriceCharting",
		viewSNKR:      "查看 SNKRDUNK",
		viewHistory:   "查看 SNKRDUNK 銷售歷史",
		fxFallbackTip: "⚠️ 匯率查詢失敗，以 1 USD = ¥%.0f 換算",
	},
}

// NormalizeReportLang maps a requested language to a supported one; the default is zh
func NormalizeReportLang(lang string) string {
	if strings.EqualFold(strings.TrimSpace(lang), "en") {
		return "en"
	}
	return "zh"
}

// RenderReportText renders the human-readable market report
func RenderReportText(r *models.Report, lang string) string {
	lang = NormalizeReportLang(lang)
	s := reportLanguages[lang]
	card := r.Identity
	p := message.NewPrinter(language.English)

	var lines []string
	add := func(format string, args ...any) {
		if len(args) == 0 {
			lines = append(lines, format)
			return
		}
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add(s.header)
	add("")
	if lang == "en" {
		add("⚡ %s #%s", card.Name, card.Number)
	} else {
		add("⚡ %s (%s) #%s", card.DisplayName(), card.Name, card.Number)
	}
	add(s.grade, card.Grade)
	add(s.category, card.Category.DisplayName(lang))
	add(s.number, card.Number)
	add(s.release, orUnknown(card.ReleaseInfo))
	add(s.illustrator, orUnknown(card.Illustrator))
	add("---")
	add(s.analysis)
	add(s.marketHeat, orUnknown(card.MarketHeat))
	add(s.features, strings.ReplaceAll(orUnknown(card.Features), `\n`, "\n"))
	add(s.collectible, orUnknown(card.CollectionValue))
	add(s.competitive, orUnknown(card.CompetitiveFreq))
	add("---")
	add(s.recentSales + "\n" + s.pcSection)

	for _, m := range models.AllMarketplaces() {
		if m == models.MarketplaceSNKRDUNK {
			add(s.snkrSection)
		}
		market := r.Market(m)
		if market == nil || market.TotalRecords == 0 {
			add(s.noData, m.DisplayName())
			continue
		}
		if len(market.Records) == 0 {
			add(s.noGradeData, m.DisplayName(), models.TargetDisplay(m, card.Grade))
			continue
		}

		price := func(v float64) string {
			if m.Currency() == "JPY" {
				return p.Sprintf("¥%d (~$%.0f USD)", int64(v), toUSD(v, m, r.USDToJPY))
			}
			return fmt.Sprintf("$%.2f USD", v)
		}

		for i, rec := range market.Records {
			if i == ReportTextRecordLimit {
				break
			}
			add("📅 %s      💰 %s      📝 %s：%s", rec.Date, price(rec.Price), s.state, rec.Grade)
		}
		if market.Stats.Count == 0 {
			add(s.statsEmpty)
			continue
		}
		add(s.statsHeader)
		add(s.highest, price(market.Stats.Max))
		add(s.lowest, price(market.Stats.Min))
		add(s.average, price(market.Stats.Mean))
		add(s.count, market.Stats.Count)
	}

	if r.FXFallback {
		add("")
		add(s.fxFallbackTip, r.USDToJPY)
	}

	add("\n---")
	if u := r.SourceURLs[models.MarketplacePriceCharting]; u != "" {
		add("🔗 [%s](%s)", s.viewPC, u)
	}
	if u := r.SourceURLs[models.MarketplaceSNKRDUNK]; u != "" {
		add("🔗 [%s](%s)", s.viewSNKR, u)
		add("🔗 [%s](%s/sales-histories)", s.viewHistory, u)
	}
	return strings.Join(lines, "\n")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
