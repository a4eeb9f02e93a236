package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug", "json")

	logger.Debug().Str("source", "oc_a").Msg("scanned")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["source"] != "oc_a" {
		t.Errorf("Expected source field 'oc_a', got %v", entry["source"])
	}
	if entry["level"] != "debug" {
		t.Errorf("Expected level 'debug', got %v", entry["level"])
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "console")

	logger.Info().Msg("forwarded")

	if !strings.Contains(buf.String(), "forwarded") {
		t.Errorf("Expected message in output, got %q", buf.String())
	}
	if strings.HasPrefix(buf.String(), "{") {
		t.Errorf("Expected console output, got %q", buf.String())
	}
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")

	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %q", buf.String())
	}

	if New(&buf, "bogus", "json").GetLevel() != zerolog.InfoLevel {
		t.Error("Expected unknown level to fall back to info")
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	if logger.GetLevel() != zerolog.Disabled {
		t.Errorf("Expected disabled logger, got level %v", logger.GetLevel())
	}
	if logger.Error().Enabled() {
		t.Error("Expected events to be discarded")
	}
}
