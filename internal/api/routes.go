package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codyseavey/tcg-market-report/internal/api/handlers"
	"github.com/codyseavey/tcg-market-report/internal/config"
	"github.com/codyseavey/tcg-market-report/internal/metrics"
	"github.com/codyseavey/tcg-market-report/internal/services"
)

func SetupRouter(cfg *config.Config, registry *services.RunRegistry, store *services.ReportStore, fetcher handlers.FetcherStatusProvider) *gin.Engine {
	router := gin.Default()
	router.Use(metrics.GinMiddleware())

	serveFrontend := cfg.FrontendDistPath != "" && dirExists(cfg.FrontendDistPath)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.AllowCredentials = false
	router.Use(cors.New(corsConfig))

	reportHandler := handlers.NewReportHandler(registry, store, fetcher, cfg.ReportLang)

	// Stored report directories (JSON dumps, text reports, images)
	if store != nil && cfg.ReportOutDir != "" {
		router.Static("/files/reports", cfg.ReportOutDir)
	}

	api := router.Group("/api")
	{
		reports := api.Group("/reports")
		{
			reports.POST("", reportHandler.CreateReport)
			reports.POST("/image", reportHandler.CreateReportFromImage)
			reports.GET("/:id", reportHandler.GetReport)
			reports.GET("/:id/candidates", reportHandler.GetCandidates)
			reports.POST("/:id/selection", reportHandler.SelectCandidate)
		}

		api.GET("/history", reportHandler.GetHistory)
		api.GET("/fetcher/status", reportHandler.GetFetcherStatus)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if serveFrontend {
		indexPath := filepath.Join(cfg.FrontendDistPath, "index.html")
		router.Static("/assets", filepath.Join(cfg.FrontendDistPath, "assets"))
		router.GET("/", func(c *gin.Context) {
			c.File(indexPath)
		})

		// SPA fallback for non-API routes
		router.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api") {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.File(indexPath)
		})
	}

	return router
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
