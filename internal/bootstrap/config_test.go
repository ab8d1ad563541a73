package bootstrap

import (
	"log/slog"
	"testing"

	"github.com/consorcio10demayo/canalero-auth/config"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "warning", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "", want: slog.LevelInfo},
		{input: "verbose", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := LogLevel(tt.input); got != tt.want {
			t.Errorf("LogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLoadConfigAppliesEnvAndGuardrails(t *testing.T) {
	t.Setenv("AUTH_MODE", "mock")
	t.Setenv("FRONTEND_URL", "https://portal.consorcio10demayo.gob.ar/")
	t.Setenv("AUTH_SNAPSHOT_BACKEND", "file")
	t.Setenv("AUTH_SNAPSHOT_PATH", "   ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Auth.Mode != config.AuthModeMock {
		t.Errorf("Auth.Mode = %q, want %q", cfg.Auth.Mode, config.AuthModeMock)
	}
	if got, want := cfg.Auth.FrontendURL, "https://portal.consorcio10demayo.gob.ar"; got != want {
		t.Errorf("Auth.FrontendURL = %q, want %q (trailing slash trimmed)", got, want)
	}
	if cfg.Auth.Snapshot != config.SnapshotFile {
		t.Errorf("Auth.Snapshot = %q, want %q", cfg.Auth.Snapshot, config.SnapshotFile)
	}
	if got, want := cfg.Auth.SnapshotPath, ".canalero-auth.json"; got != want {
		t.Errorf("Auth.SnapshotPath = %q, want fallback %q for a blank path", got, want)
	}
}

func TestLoadConfigRejectsInvalidMode(t *testing.T) {
	t.Setenv("AUTH_MODE", "ldap")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() error = nil, want an invalid AUTH_MODE error")
	}
}
