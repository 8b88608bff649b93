package infra

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SKYWORK_SECRET_ID", "")
	t.Setenv("SKYWORK_SECRET_KEY", "")

	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "SKYWORK_SECRET_ID") {
		t.Fatalf("missing secret id: err = %v", err)
	}

	t.Setenv("SKYWORK_SECRET_ID", "demo-id")
	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "SKYWORK_SECRET_KEY") {
		t.Fatalf("missing secret key: err = %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SKYWORK_SECRET_ID", "demo-id")
	t.Setenv("SKYWORK_SECRET_KEY", "demo-key")
	for _, key := range []string{
		"APP_ENV", "PORT", "SKYWORK_MCP_SSE_URL",
		"CONNECT_TIMEOUT_SECONDS", "IDLE_TIMEOUT_SECONDS", "JOB_DEADLINE_SECONDS",
		"MAX_RECONNECTS", "OUTCOME_RETENTION_SECONDS",
		"RATE_LIMIT_CAPACITY", "RATE_LIMIT_REFILL_PER_SECOND", "RATE_LIMIT_PER_MINUTE",
		"DECKPILOT_PREFERRED_EXTS", "HTTP_WRITE_TIMEOUT_SECONDS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppEnv != "development" || cfg.Port != "8080" {
		t.Fatalf("app defaults: %+v", cfg)
	}
	if cfg.SkyworkSSEURL != "https://api.skywork.ai/open/sse" {
		t.Fatalf("sse url = %q", cfg.SkyworkSSEURL)
	}
	if cfg.ConnectTimeout != 10*time.Second || cfg.IdleTimeout != 30*time.Second {
		t.Fatalf("stream timeouts: %+v", cfg)
	}
	if cfg.JobDeadline != 180*time.Second || cfg.MaxReconnects != 3 || cfg.OutcomeRetention != 30*time.Second {
		t.Fatalf("job defaults: %+v", cfg)
	}
	if cfg.RateCapacity != 10 || cfg.RateRefillPerSec != 1 || cfg.RateLimitPerMin != 30 {
		t.Fatalf("rate defaults: %+v", cfg)
	}
	if len(cfg.PreferredExtensions) != 5 || cfg.PreferredExtensions[0] != "pptx" {
		t.Fatalf("preferred extensions = %v", cfg.PreferredExtensions)
	}
	// The write timeout must outlast the job deadline so a slow generation
	// can still stream its response out.
	if cfg.HTTPWriteTimeout <= cfg.JobDeadline {
		t.Fatalf("write timeout %s must exceed job deadline %s", cfg.HTTPWriteTimeout, cfg.JobDeadline)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SKYWORK_SECRET_ID", "demo-id")
	t.Setenv("SKYWORK_SECRET_KEY", "demo-key")
	t.Setenv("SKYWORK_MCP_SSE_URL", "https://generator.internal/open/sse")
	t.Setenv("JOB_DEADLINE_SECONDS", "60")
	t.Setenv("MAX_RECONNECTS", "1")
	t.Setenv("RATE_LIMIT_REFILL_PER_SECOND", "0.5")
	t.Setenv("DECKPILOT_PREFERRED_EXTS", "PDF, docx")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SkyworkSSEURL != "https://generator.internal/open/sse" {
		t.Fatalf("sse url = %q", cfg.SkyworkSSEURL)
	}
	if cfg.JobDeadline != time.Minute || cfg.MaxReconnects != 1 {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	if cfg.RateRefillPerSec != 0.5 {
		t.Fatalf("refill = %v", cfg.RateRefillPerSec)
	}
	if len(cfg.PreferredExtensions) != 2 || cfg.PreferredExtensions[0] != "pdf" || cfg.PreferredExtensions[1] != "docx" {
		t.Fatalf("extension list = %v", cfg.PreferredExtensions)
	}
}

func TestLoadConfigIgnoresUnparseableNumbers(t *testing.T) {
	t.Setenv("SKYWORK_SECRET_ID", "demo-id")
	t.Setenv("SKYWORK_SECRET_KEY", "demo-key")
	t.Setenv("JOB_DEADLINE_SECONDS", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JobDeadline != 180*time.Second {
		t.Fatalf("unparseable value must fall back to the default, got %s", cfg.JobDeadline)
	}
}
