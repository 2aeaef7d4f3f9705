package config

import (
	"reflect"
	"testing"
	"time"
)

// TestFromEnvDefaults tests the defaults used when nothing is set.
func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"REDACT_PATH_THRESHOLD", "REDACT_SAFE_RENDER_DPI", "REDACT_SUFFIX", "QUEUE_STREAM", "JOB_TIMEOUT", "OCR_LANGUAGES"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()

	if cfg.Redaction.PathThreshold != 500 {
		t.Errorf("PathThreshold = %d, want 500", cfg.Redaction.PathThreshold)
	}
	if cfg.Redaction.SafeRenderDPI != 150 {
		t.Errorf("SafeRenderDPI = %v, want 150", cfg.Redaction.SafeRenderDPI)
	}
	if cfg.Redaction.Suffix != "_redacted" {
		t.Errorf("Suffix = %q", cfg.Redaction.Suffix)
	}
	if cfg.Queue.Stream != "jobs:redact" {
		t.Errorf("Stream = %q", cfg.Queue.Stream)
	}
	if cfg.Worker.JobTimeout != 10*time.Minute {
		t.Errorf("JobTimeout = %v", cfg.Worker.JobTimeout)
	}
	if !reflect.DeepEqual(cfg.OCR.Languages, []string{"eng"}) {
		t.Errorf("Languages = %v", cfg.OCR.Languages)
	}
}

// TestFromEnvOverrides tests that env values replace defaults and bad values fall back.
func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("REDACT_PATH_THRESHOLD", "250")
	t.Setenv("REDACT_SAFE_RENDER_DPI", "-3")
	t.Setenv("REDACT_JPEG_QUALITY", "400")
	t.Setenv("OCR_LANGUAGES", "eng+deu")
	t.Setenv("JOB_TIMEOUT", "nonsense")

	cfg := FromEnv()
	if cfg.Redaction.PathThreshold != 250 {
		t.Errorf("PathThreshold = %d, want 250", cfg.Redaction.PathThreshold)
	}
	if cfg.Redaction.SafeRenderDPI != 150 {
		t.Errorf("SafeRenderDPI = %v, want fallback 150", cfg.Redaction.SafeRenderDPI)
	}
	if cfg.Redaction.JPEGQuality != 90 {
		t.Errorf("JPEGQuality = %d, want fallback 90", cfg.Redaction.JPEGQuality)
	}
	if !reflect.DeepEqual(cfg.OCR.Languages, []string{"eng", "deu"}) {
		t.Errorf("Languages = %v", cfg.OCR.Languages)
	}
	if cfg.Worker.JobTimeout != 10*time.Minute {
		t.Errorf("JobTimeout = %v, want default", cfg.Worker.JobTimeout)
	}
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "TRUE": true, " yes ": true, "on": true, "0": false, "": false, "nope": false} {
		if got := parseBool(in); got != want {
			t.Errorf("parseBool(%q) = %v, want %v", in, got, want)
		}
	}
}
