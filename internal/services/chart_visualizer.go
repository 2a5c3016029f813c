package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/codyseavey/tcg-market-report/internal/models"
)

const (
	defaultChartWidth  = 800
	defaultChartHeight = 400
	chartPadding       = 40.0
)

var chartColors = map[models.Marketplace]string{
	models.MarketplacePriceCharting: "#1f77b4",
	models.MarketplaceSNKRDUNK:      "#d62728",
}

// ChartVisualizer draws the windowed sale prices of each marketplace, in
// USD, as an SVG line chart and a PNG rendering of it.
type ChartVisualizer struct {
	width  int
	height int
}

func NewChartVisualizer(width, height int) *ChartVisualizer {
	if width <= 0 {
		width = defaultChartWidth
	}
	if height <= 0 {
		height = defaultChartHeight
	}
	return &ChartVisualizer{width: width, height: height}
}

type chartPoint struct {
	at  time.Time
	usd float64
}

// Render returns price_chart.svg and price_chart.png, or nothing when no
// sale falls inside the statistics window.
func (v *ChartVisualizer) Render(_ context.Context, report *models.Report, _ *models.ReportData, _ string) ([]Artifact, error) {
	series := chartSeries(report)
	if len(series) == 0 {
		return nil, nil
	}

	svg := v.svg(report, series)
	pngData, err := svgToPNG([]byte(svg), v.width, v.height)
	if err != nil {
		return nil, fmt.Errorf("failed to rasterize chart: %w", err)
	}
	return []Artifact{
		{Name: "price_chart.svg", Content: []byte(svg)},
		{Name: "price_chart.png", Content: pngData},
	}, nil
}

// chartSeries collects windowed target-grade sales per marketplace, oldest first
func chartSeries(report *models.Report) map[models.Marketplace][]chartPoint {
	series := make(map[models.Marketplace][]chartPoint)
	for _, m := range report.Markets {
		for _, r := range m.Records {
			at := recordTime(r, report.GeneratedAt)
			if !at.After(report.WindowStart) {
				continue
			}
			series[m.Marketplace] = append(series[m.Marketplace], chartPoint{at: at, usd: toUSD(r.Price, m.Marketplace, report.USDToJPY)})
		}
	}
	for m := range series {
		sort.SliceStable(series[m], func(i, j int) bool { return series[m][i].at.Before(series[m][j].at) })
	}
	return series
}

func (v *ChartVisualizer) svg(report *models.Report, series map[models.Marketplace][]chartPoint) string {
	lo, hi := 0.0, 0.0
	first := true
	for _, points := range series {
		for _, p := range points {
			if first || p.usd < lo {
				lo = p.usd
			}
			if first || p.usd > hi {
				hi = p.usd
			}
			first = false
		}
	}
	if hi == lo {
		hi = lo + 1
	}

	w, h := float64(v.width), float64(v.height)
	span := report.GeneratedAt.Sub(report.WindowStart).Seconds()
	x := func(t time.Time) float64 {
		return chartPadding + (w-2*chartPadding)*t.Sub(report.WindowStart).Seconds()/span
	}
	y := func(usd float64) float64 {
		return h - chartPadding - (h-2*chartPadding)*(usd-lo)/(hi-lo)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n", v.width, v.height, v.width, v.height)
	fmt.Fprintf(&b, `<rect x="0" y="0" width="%d" height="%d" fill="#ffffff"/>`+"\n", v.width, v.height)
	fmt.Fprintf(&b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#888888" stroke-width="1"/>`+"\n",
		chartPadding, h-chartPadding, w-chartPadding, h-chartPadding)
	fmt.Fprintf(&b, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#888888" stroke-width="1"/>`+"\n",
		chartPadding, chartPadding, chartPadding, h-chartPadding)

	for _, m := range models.AllMarketplaces() {
		points := series[m]
		if len(points) == 0 {
			continue
		}
		coords := make([]string, len(points))
		for i, p := range points {
			coords[i] = fmt.Sprintf("%.1f,%.1f", x(p.at), y(p.usd))
		}
		fmt.Fprintf(&b, `<polyline points="%s" fill="none" stroke="%s" stroke-width="2"/>`+"\n", strings.Join(coords, " "), chartColors[m])
		for _, p := range points {
			fmt.Fprintf(&b, `<circle cx="%.1f" cy="%.1f" r="3" fill="%s"/>`+"\n", x(p.at), y(p.usd), chartColors[m])
		}
	}
	b.WriteString("</svg>\n")
	return b.String()
}
