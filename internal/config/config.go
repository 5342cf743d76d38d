// Package config loads runtime settings from the environment, with an
// optional env file in the user's config directory.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	AppName     = "listful"
	EnvFileName = "config.env"
)

// Tuning defaults. Every value can be overridden through the environment.
const (
	DefaultListenAddr      = ":8080"
	DefaultDBPath          = "listful.db"
	DefaultVisionThreshold = 0.75
	DefaultVisionCacheTTL  = time.Hour
	DefaultPriceCacheTTL   = 24 * time.Hour
	DefaultProviderTimeout = 12 * time.Second
	DefaultProviderRetries = 2
	DefaultDailyQuota      = 3
	DefaultOutlierMinPrice = 20.0
	DefaultOutlierMaxShare = 0.10
	DefaultOutlierTrigger  = 100.0
	DefaultCacheMinConf    = 0.5
	DefaultShutdownTimeout = 10 * time.Second
)

// Config is the resolved runtime configuration.
type Config struct {
	ListenAddr string
	DBPath     string

	// Secrets. GeminiAPIKey is read by the genai client itself from
	// GEMINI_API_KEY; it is surfaced here only for presence checks.
	GeminiAPIKey  string
	SerpAPIKey    string
	OCRBaseURL    string
	OCRAPIKey     string
	HistorySecret string

	VisionThreshold float64
	VisionCacheTTL  time.Duration
	PriceCacheTTL   time.Duration
	ProviderTimeout time.Duration
	ProviderRetries int
	DailyQuota      int
	CacheMinConf    float64

	OutlierMinPrice float64
	OutlierMaxShare float64
	OutlierTrigger  float64

	ShutdownTimeout time.Duration
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	configPath := filepath.Join(configBase, AppName, EnvFileName)
	_ = godotenv.Load(configPath)
}

// FromEnv builds a Config from the current environment, applying defaults
// for anything unset or unparseable.
func FromEnv() Config {
	return Config{
		ListenAddr:    envString("LISTFUL_LISTEN_ADDR", DefaultListenAddr),
		DBPath:        envString("LISTFUL_DB_PATH", DefaultDBPath),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		SerpAPIKey:    os.Getenv("SERPAPI_API_KEY"),
		OCRBaseURL:    os.Getenv("OCR_BASE_URL"),
		OCRAPIKey:     os.Getenv("OCR_API_KEY"),
		HistorySecret: os.Getenv("LISTFUL_HISTORY_SECRET"),

		VisionThreshold: envFloat("LISTFUL_VISION_THRESHOLD", DefaultVisionThreshold),
		VisionCacheTTL:  envDuration("LISTFUL_VISION_CACHE_TTL", DefaultVisionCacheTTL),
		PriceCacheTTL:   envDuration("LISTFUL_PRICE_CACHE_TTL", DefaultPriceCacheTTL),
		ProviderTimeout: envDuration("LISTFUL_PROVIDER_TIMEOUT", DefaultProviderTimeout),
		ProviderRetries: envInt("LISTFUL_PROVIDER_RETRIES", DefaultProviderRetries),
		DailyQuota:      envInt("LISTFUL_DAILY_QUOTA", DefaultDailyQuota),
		CacheMinConf:    envFloat("LISTFUL_CACHE_MIN_CONFIDENCE", DefaultCacheMinConf),

		OutlierMinPrice: envFloat("LISTFUL_OUTLIER_MIN_PRICE", DefaultOutlierMinPrice),
		OutlierMaxShare: envFloat("LISTFUL_OUTLIER_MAX_SHARE", DefaultOutlierMaxShare),
		OutlierTrigger:  envFloat("LISTFUL_OUTLIER_TRIGGER_MAX", DefaultOutlierTrigger),

		ShutdownTimeout: envDuration("LISTFUL_SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
