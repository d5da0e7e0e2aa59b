package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/careguide/careguide-go/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.AgentURL != "http://localhost:8811" {
		t.Errorf("AgentURL = %q", cfg.AgentURL)
	}
	if cfg.DefaultProfile != models.ProfileGeneral {
		t.Errorf("DefaultProfile = %q", cfg.DefaultProfile)
	}
	if cfg.ClientTimeout != 30*time.Second {
		t.Errorf("ClientTimeout = %v", cfg.ClientTimeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CAREGUIDE_AGENT_URL", "http://agent.internal:9000")
	t.Setenv("CAREGUIDE_PROFILE", "researcher")
	t.Setenv("CAREGUIDE_CLIENT_TIMEOUT", "5s")
	t.Setenv("CAREGUIDE_LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.AgentURL != "http://agent.internal:9000" {
		t.Errorf("AgentURL = %q", cfg.AgentURL)
	}
	if cfg.DefaultProfile != models.ProfileResearcher {
		t.Errorf("DefaultProfile = %q", cfg.DefaultProfile)
	}
	if cfg.ClientTimeout != 5*time.Second {
		t.Errorf("ClientTimeout = %v", cfg.ClientTimeout)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestLoadInvalidProfileFallsBack(t *testing.T) {
	t.Setenv("CAREGUIDE_PROFILE", "nephrologist")

	cfg := Load()
	if cfg.DefaultProfile != models.ProfileGeneral {
		t.Errorf("DefaultProfile = %q, want general fallback", cfg.DefaultProfile)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"garbage", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer

	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)
	logger.Info("session created", "profile", "patient")

	if !strings.Contains(stderr.String(), "session created") {
		t.Errorf("stderr output missing message: %q", stderr.String())
	}

	var entry map[string]any
	if err := json.Unmarshal(file.Bytes(), &entry); err != nil {
		t.Fatalf("file output is not JSON: %v", err)
	}
	if entry["msg"] != "session created" {
		t.Errorf("file entry msg = %v", entry["msg"])
	}
	if entry["profile"] != "patient" {
		t.Errorf("file entry profile = %v", entry["profile"])
	}
}
