// render-report re-renders the text report from a stored report dump.
//
// Usage: go run main.go -path=<card dir or report_data.json> [-lang=en] [-write]
//
//	go run main.go -key=<card key> -db=<path> [-lang=zh]
//
// The dump holds the full records of each marketplace, so statistics are
// recomputed against today's 12-month window. The exchange rate stored with
// the dump is reused unless -fx is given; -fx=live looks it up.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/codyseavey/tcg-market-report/internal/config"
	"github.com/codyseavey/tcg-market-report/internal/database"
	"github.com/codyseavey/tcg-market-report/internal/models"
	"github.com/codyseavey/tcg-market-report/internal/services"
)

func main() {
	path := flag.String("path", "", "card report directory or report_data.json")
	key := flag.String("key", "", "card key to load from the database (e.g. Pikachu_025)")
	dbPath := flag.String("db", "", "database path (defaults to DB_PATH)")
	lang := flag.String("lang", "", "report language: zh or en (defaults to the dump's language)")
	fx := flag.String("fx", "", "USD to JPY rate, or 'live' to look it up")
	write := flag.Bool("write", false, "write report.md next to the dump")
	flag.Parse()

	if *path == "" && *key == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	data, err := loadData(cfg, *path, *key, *dbPath)
	if err != nil {
		log.Fatalf("Failed to load report: %v", err)
	}

	quote, err := resolveRate(cfg, data, *fx)
	if err != nil {
		log.Fatalf("Invalid -fx: %v", err)
	}

	reportLang := *lang
	if reportLang == "" {
		reportLang = data.Lang
	}

	card := data.CardInfo.CardIdentity.Normalized()
	report := services.AggregateReport(card, services.ResolutionsFromData(data), quote, time.Now())
	if data.CardInfo.ImgURL != "" {
		report.ImageURL = data.CardInfo.ImgURL
	}
	text := services.RenderReportText(report, reportLang)
	fmt.Println(text)

	if *write {
		dir := *path
		if dir == "" {
			dir = filepath.Join(cfg.ReportOutDir, services.CardKey(card))
		} else if info, err := os.Stat(dir); err == nil && !info.IsDir() {
			dir = filepath.Dir(dir)
		}
		out := filepath.Join(dir, services.ReportTextFile)
		if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
			log.Fatalf("Failed to write %s: %v", out, err)
		}
		log.Printf("Wrote %s", out)
	}
}

func loadData(cfg *config.Config, path, key, dbPath string) (*models.ReportData, error) {
	if path != "" {
		return services.ReadReportData(path)
	}
	if dbPath == "" {
		dbPath = cfg.DBPath
	}
	if err := database.Initialize(dbPath); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return services.NewReportStore(cfg.ReportOutDir, database.GetDB()).Load(key)
}

func resolveRate(cfg *config.Config, data *models.ReportData, fx string) (services.FXQuote, error) {
	switch fx {
	case "":
		if data.USDToJPY > 0 {
			return services.FXQuote{Rate: data.USDToJPY}, nil
		}
		return services.FXQuote{Rate: cfg.FXFallbackJPY, Fallback: true}, nil
	case "live":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return services.NewExchangeRateService(cfg.FXURL, cfg.FXFallbackJPY, cfg.FXCacheTTL).USDToJPY(ctx), nil
	default:
		rate, err := strconv.ParseFloat(fx, 64)
		if err != nil || rate <= 0 {
			return services.FXQuote{}, fmt.Errorf("%q is not a positive number", fx)
		}
		return services.FXQuote{Rate: rate}, nil
	}
}
