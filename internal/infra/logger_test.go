package infra

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerTagsService(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, "production")
	logger.Info().Msg("hello")

	if !strings.Contains(buf.String(), `"service":"deckpilot"`) {
		t.Fatalf("service tag missing: %s", buf.String())
	}
}

func TestLoggerLevelPerEnvironment(t *testing.T) {
	var buf bytes.Buffer
	prod := newLoggerTo(&buf, "production")
	if prod.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("production level = %s", prod.GetLevel())
	}
	prod.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug must be suppressed in production: %s", buf.String())
	}

	dev := newLoggerTo(&buf, "development")
	if dev.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("development level = %s", dev.GetLevel())
	}
}
