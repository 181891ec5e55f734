package config

import "testing"

func TestLoadUsesDefaultsWhenUnset(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("MAX_ATTEMPTS", "")

	cfg := Load()
	if cfg.Port != "7070" {
		t.Fatalf("expected default port 7070, got %q", cfg.Port)
	}
	if cfg.MaxAttempts != 5 {
		t.Fatalf("expected default max attempts 5, got %d", cfg.MaxAttempts)
	}
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	t.Setenv("DRAIN_INTERVAL_SECONDS", "0")
	t.Setenv("PROBE_INTERVAL_SECONDS", "-3")

	cfg := Load()
	if cfg.DrainIntervalSeconds != 30 {
		t.Fatalf("expected drain interval fallback 30, got %d", cfg.DrainIntervalSeconds)
	}
	if cfg.ProbeIntervalSeconds != 5 {
		t.Fatalf("expected probe interval fallback 5, got %d", cfg.ProbeIntervalSeconds)
	}
}

func TestLoadTrimsRemoteBaseURL(t *testing.T) {
	t.Setenv("REMOTE_BASE_URL", "https://pos.example.com/")

	cfg := Load()
	if cfg.RemoteBaseURL != "https://pos.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.RemoteBaseURL)
	}
}
