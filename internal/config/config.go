// Package config loads runtime settings from a .env file and the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// FetchMode selects how page text is obtained
type FetchMode string

const (
	FetchModeProxy  FetchMode = "proxy"  // markdown reader proxy
	FetchModeDirect FetchMode = "direct" // fetch HTML and convert locally
)

type Config struct {
	Port         string
	DBPath       string
	ReportOutDir string
	ReportLang   string

	// Fetch layer
	FetchMode         FetchMode
	ProxyURL          string
	ProxyAPIKey       string
	ProxyMaxRequests  int
	ProxyWindow       time.Duration
	ProxyMaxAttempts  int
	ProxyRetryBackoff time.Duration
	FetchTimeout      time.Duration
	ImageProbeRPS     float64

	// Orchestration
	ChoiceTimeout      time.Duration
	ThumbnailCacheSize int
	RunHistorySize     int

	// Exchange rate
	FXURL         string
	FXFallbackJPY float64
	FXCacheTTL    time.Duration

	// Identity analyzer
	GoogleAPIKey string
	GeminiModel  string
	GeminiAPIURL string

	CORSAllowedOrigins []string
	FrontendDistPath   string
}

// Load reads .env (if present) and then the environment, applying defaults
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Config: no .env file loaded, using environment and defaults")
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		DBPath:       getEnv("DB_PATH", "./market_reports.db"),
		ReportOutDir: getEnv("REPORT_OUT_DIR", "./reports"),
		ReportLang:   getEnv("REPORT_LANG", "zh"),

		FetchMode:         FetchMode(strings.ToLower(getEnv("FETCH_MODE", string(FetchModeProxy)))),
		ProxyURL:          getEnv("MARKDOWN_PROXY_URL", "https://r.jina.ai/"),
		ProxyAPIKey:       getEnv("MARKDOWN_PROXY_API_KEY", ""),
		ProxyMaxRequests:  getEnvAsInt("PROXY_MAX_REQUESTS", 18),
		ProxyWindow:       getEnvAsDuration("PROXY_WINDOW", 60*time.Second),
		ProxyMaxAttempts:  getEnvAsInt("PROXY_MAX_ATTEMPTS", 3),
		ProxyRetryBackoff: getEnvAsDuration("PROXY_RETRY_BACKOFF", time.Second),
		FetchTimeout:      getEnvAsDuration("FETCH_TIMEOUT", 60*time.Second),
		ImageProbeRPS:     getEnvAsFloat("IMAGE_PROBE_RPS", 5),

		ChoiceTimeout:      getEnvAsDuration("CHOICE_TIMEOUT", 3*time.Minute),
		ThumbnailCacheSize: getEnvAsInt("THUMBNAIL_CACHE_SIZE", 128),
		RunHistorySize:     getEnvAsInt("RUN_HISTORY_SIZE", 256),

		FXURL:         getEnv("FX_URL", "https://open.er-api.com/v6/latest/USD"),
		FXFallbackJPY: getEnvAsFloat("FX_FALLBACK_JPY", 150.0),
		FXCacheTTL:    getEnvAsDuration("FX_CACHE_TTL", time.Hour),

		GoogleAPIKey: getSecret("GOOGLE_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiAPIURL: getEnv("GEMINI_API_URL", ""),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		FrontendDistPath:   getEnv("FRONTEND_DIST_PATH", ""),
	}

	if cfg.FetchMode != FetchModeProxy && cfg.FetchMode != FetchModeDirect {
		log.Printf("Config: unknown FETCH_MODE %q, using %s", cfg.FetchMode, FetchModeProxy)
		cfg.FetchMode = FetchModeProxy
	}
	if cfg.ProxyMaxRequests < 1 {
		log.Printf("Config: PROXY_MAX_REQUESTS must be positive, using 18")
		cfg.ProxyMaxRequests = 18
	}
	if cfg.ProxyMaxAttempts < 1 {
		cfg.ProxyMaxAttempts = 1
	}

	log.Printf("Config: port=%s mode=%s window=%d/%s choice_timeout=%s",
		cfg.Port, cfg.FetchMode, cfg.ProxyMaxRequests, cfg.ProxyWindow, cfg.ChoiceTimeout)
	return cfg
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getSecret reads KEY, falling back to the file named by KEY_FILE
func getSecret(key string) string {
	if value := strings.TrimSpace(getEnv(key, "")); value != "" {
		return value
	}
	if path := getEnv(key+"_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Config: failed to read %s_FILE: %v", key, err)
			return ""
		}
		return strings.TrimSpace(string(data))
	}
	return ""
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Config: invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Config: invalid float value for %s ('%s'), using default: %g", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Config: invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback)
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
