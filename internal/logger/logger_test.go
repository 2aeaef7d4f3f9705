package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
)

// TestInitWritesToFile tests that Init creates the log directory and writes JSON lines.
func TestInitWritesToFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "nested", "redactor.log")

	if err := Init(Options{Level: "debug", File: file, MaxSizeMB: 1}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	log.Info().Str("key", "value").Msg("hello")
	For("/tmp/in/report.pdf").Warn().Msg("scoped")

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"key":"value"`, `"service":"redactor"`, `"file":"report.pdf"`, `"message":"scoped"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

// TestInitBadLevel tests that an unknown level falls back to info.
func TestInitBadLevel(t *testing.T) {
	if err := Init(Options{Level: "loud"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := Get().GetLevel().String(); got != "info" {
		t.Errorf("level = %s, want info", got)
	}
}
