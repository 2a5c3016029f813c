package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codyseavey/tcg-market-report/internal/api"
	"github.com/codyseavey/tcg-market-report/internal/config"
	"github.com/codyseavey/tcg-market-report/internal/database"
	"github.com/codyseavey/tcg-market-report/internal/services"
)

func main() {
	cfg := config.Load()

	if err := database.Initialize(cfg.DBPath); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Fetch layer: one request window shared by every run
	clock := services.RealClock()
	window := services.NewRateWindow(cfg.ProxyMaxRequests, cfg.ProxyWindow, clock)
	fetcher := services.NewMarkdownFetcher(services.FetcherOptions{
		Mode:         cfg.FetchMode,
		ProxyURL:     cfg.ProxyURL,
		APIKey:       cfg.ProxyAPIKey,
		MaxAttempts:  cfg.ProxyMaxAttempts,
		RetryBackoff: cfg.ProxyRetryBackoff,
		Timeout:      cfg.FetchTimeout,
	}, window, clock)

	extractor := services.NewRecordExtractor(nil)
	thumbnails := services.NewThumbnailProbe(fetcher, cfg.ThumbnailCacheSize, cfg.ImageProbeRPS)
	resolvers := []services.CatalogResolver{
		services.NewPriceChartingResolver(fetcher, extractor, thumbnails),
		services.NewSNKRDUNKResolver(fetcher, extractor),
	}

	fx := services.NewExchangeRateService(cfg.FXURL, cfg.FXFallbackJPY, cfg.FXCacheTTL)
	store := services.NewReportStore(cfg.ReportOutDir, database.GetDB())
	registry := services.NewRunRegistry(cfg.RunHistorySize)

	deps := services.OrchestratorDeps{
		Resolvers:     resolvers,
		Aggregator:    services.NewReportAggregator(fx, nil),
		Presenter:     registry,
		Thumbnails:    thumbnails,
		Visualizer:    services.NewChartVisualizer(0, 0),
		Store:         store,
		ChoiceTimeout: cfg.ChoiceTimeout,
	}
	if analyzer := services.NewGeminiAnalyzer(cfg.GoogleAPIKey, cfg.GeminiModel, cfg.GeminiAPIURL); analyzer.IsEnabled() {
		deps.Analyzer = analyzer
	}
	registry.Bind(services.NewOrchestrator(deps))

	router := api.SetupRouter(cfg, registry, store, fetcher)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	// Runs waiting on a choice are cancelled and clean up their workspaces
	if err := registry.Shutdown(shutdownCtx); err != nil {
		log.Printf("Runs did not finish before shutdown deadline: %v", err)
	}

	log.Println("Server exited")
}
