package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigureDefaults(t *testing.T) {
	if l := L(); l.GetLevel() > zerolog.PanicLevel {
		t.Error("expected valid logger from L")
	}
	if b := Base(); b.GetLevel() > zerolog.PanicLevel {
		t.Error("expected valid logger from Base")
	}
}

func TestWithComponent(t *testing.T) {
	// Override the global for output capture.
	var buf bytes.Buffer
	base = zerolog.New(&buf)

	componentLogger := WithComponent("pipeline")
	componentLogger.Info().Msg("component test")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry[FieldComponent] != "pipeline" {
		t.Errorf("expected component pipeline, got %v", entry[FieldComponent])
	}

	// Restore global logger
	Configure(Config{})
}
