package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Providers.RoutingProvider != "auto" {
		t.Errorf("RoutingProvider = %q, want auto", cfg.Providers.RoutingProvider)
	}
	if cfg.Planning.MaxRepairRounds != MaxRepairRounds {
		t.Errorf("MaxRepairRounds = %d, want %d", cfg.Planning.MaxRepairRounds, MaxRepairRounds)
	}
	if cfg.Planning.RequestDeadline != DefaultRequestDeadline {
		t.Errorf("RequestDeadline = %v, want %v", cfg.Planning.RequestDeadline, DefaultRequestDeadline)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Max != 60 {
		t.Errorf("rate limit default = %+v, want enabled with max 60", cfg.RateLimit)
	}
	if cfg.CORS.Enabled {
		t.Error("CORS should be disabled by default")
	}
}

func TestNewConfigEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ROUTING_PROVIDER", "fixture")
	t.Setenv("MAX_REPAIR_ROUNDS", "1")
	t.Setenv("STRICT_EXTERNAL_DATA", "true")
	t.Setenv("RATE_LIMIT_WINDOW", "30")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Providers.RoutingProvider != "fixture" {
		t.Errorf("RoutingProvider = %q, want fixture", cfg.Providers.RoutingProvider)
	}
	if cfg.Planning.MaxRepairRounds != 1 {
		t.Errorf("MaxRepairRounds = %d, want 1", cfg.Planning.MaxRepairRounds)
	}
	if !cfg.Providers.StrictExternalData {
		t.Error("StrictExternalData not applied from env")
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("Window = %v, want 30s", cfg.RateLimit.Window)
	}
	if !cfg.CORS.Enabled || len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("CORS = %+v, want enabled with 2 origins", cfg.CORS)
	}
	if cfg.CORS.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("origin[1] = %q", cfg.CORS.AllowedOrigins[1])
	}
}

func TestNewConfigYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "planner.yaml")
	yaml := "port: 7000\nproviders:\n  routing_provider: fixture\nplanning:\n  max_repair_rounds: 2\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PLANNER_CONFIG_FILE", path)
	t.Setenv("PORT", "7100") // env wins over file

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.Port != 7100 {
		t.Errorf("Port = %d, want env override 7100", cfg.Port)
	}
	if cfg.Planning.MaxRepairRounds != 2 {
		t.Errorf("MaxRepairRounds = %d, want 2 from file", cfg.Planning.MaxRepairRounds)
	}
	if cfg.EnvSource != path {
		t.Errorf("EnvSource = %q, want %q", cfg.EnvSource, path)
	}
}

func TestNewConfigOptionsWinLast(t *testing.T) {
	t.Setenv("ROUTING_PROVIDER", "auto")
	cfg, err := NewConfig(WithPort(6060), WithStrictExternalData(true))
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.Port != 6060 {
		t.Errorf("Port = %d, want option value 6060", cfg.Port)
	}
	if !cfg.Providers.StrictExternalData {
		t.Error("option WithStrictExternalData not applied")
	}
}

func TestNewConfigRejectsBadValues(t *testing.T) {
	t.Setenv("ROUTING_PROVIDER", "teleport")
	if _, err := NewConfig(); err == nil {
		t.Error("invalid routing provider accepted")
	}

	t.Setenv("ROUTING_PROVIDER", "auto")
	if _, err := NewConfig(WithPort(-1)); err == nil {
		t.Error("invalid port accepted")
	}
}

func TestFlagHolder(t *testing.T) {
	h := NewFlagHolder(RuntimeFlags{EngineVersion: EngineVersion})
	if got := h.Load().EngineVersion; got != EngineVersion {
		t.Errorf("EngineVersion = %q, want %q", got, EngineVersion)
	}
	h.Store(RuntimeFlags{EngineVersion: EngineVersion, StrictRequiredFields: true})
	if !h.Load().StrictRequiredFields {
		t.Error("Store() did not replace the snapshot")
	}
}
