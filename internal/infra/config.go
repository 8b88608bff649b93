package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	// Secret pair for the generator. Injected at startup, immutable, and
	// never exposed outside the trusted boundary.
	SkyworkSecretID  string
	SkyworkSecretKey string
	SkyworkSSEURL    string

	ConnectTimeout   time.Duration
	IdleTimeout      time.Duration
	JobDeadline      time.Duration
	MaxReconnects    int
	OutcomeRetention time.Duration

	RateCapacity     int
	RateRefillPerSec float64
	RateLimitPerMin  int

	PreferredExtensions []string
	AllowedOrigins      []string
	GeoIPDBPath         string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		SkyworkSecretID:  os.Getenv("SKYWORK_SECRET_ID"),
		SkyworkSecretKey: os.Getenv("SKYWORK_SECRET_KEY"),
		SkyworkSSEURL:    getEnv("SKYWORK_MCP_SSE_URL", "https://api.skywork.ai/open/sse"),

		ConnectTimeout:   time.Second * time.Duration(getEnvInt("CONNECT_TIMEOUT_SECONDS", 10)),
		IdleTimeout:      time.Second * time.Duration(getEnvInt("IDLE_TIMEOUT_SECONDS", 30)),
		JobDeadline:      time.Second * time.Duration(getEnvInt("JOB_DEADLINE_SECONDS", 180)),
		MaxReconnects:    getEnvInt("MAX_RECONNECTS", 3),
		OutcomeRetention: time.Second * time.Duration(getEnvInt("OUTCOME_RETENTION_SECONDS", 30)),

		RateCapacity:     getEnvInt("RATE_LIMIT_CAPACITY", 10),
		RateRefillPerSec: getEnvFloat("RATE_LIMIT_REFILL_PER_SECOND", 1),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		PreferredExtensions: getEnvList("DECKPILOT_PREFERRED_EXTS", []string{"pptx", "docx", "xlsx", "pdf", "zip"}),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{
			"http://localhost:3001", "http://127.0.0.1:3001",
			"http://localhost:8080", "http://127.0.0.1:8080",
		}),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 200)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.SkyworkSecretID == "" {
		return nil, fmt.Errorf("SKYWORK_SECRET_ID is required")
	}

	if cfg.SkyworkSecretKey == "" {
		return nil, fmt.Errorf("SKYWORK_SECRET_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var items []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, strings.ToLower(part))
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
