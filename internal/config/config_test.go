package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
server:
  port: "8080"

policy:
  syntax_conf_floor: 0.95
  logic_conf_floor: 0.8
  max_syntax_attempts: 3
  max_logic_attempts: 10
  syntax_error_budget: 0.03
  logic_error_budget: 0.10
  rate_limit_per_min: 10
  sandbox_isolation: "full"
  require_human_on_risky: true
  sandbox_memory_mb: 500
  sandbox_cpu_percent: 80

taxonomy:
  path: "./taxonomy.yaml"

storage:
  postgres_dsn: "postgres://localhost/codeheal"
  redis_addr: "localhost:6379"
  hot_tier_size: 20

logging:
  level: "info"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Policy.SyntaxConfFloor != 0.95 {
		t.Errorf("Policy.SyntaxConfFloor = %v, want 0.95", cfg.Policy.SyntaxConfFloor)
	}
	if cfg.Policy.RiskyKeywords == nil {
		t.Error("Policy.RiskyKeywords should default when unset")
	}
	if cfg.Storage.HotTierSize != 20 {
		t.Errorf("Storage.HotTierSize = %d, want 20", cfg.Storage.HotTierSize)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
server:
  port: "8080"
policy: {}
taxonomy:
  path: "./taxonomy.yaml"
storage:
  hot_tier_size: 20
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := DefaultPolicy()
	if cfg.Policy.SyntaxConfFloor != want.SyntaxConfFloor {
		t.Errorf("SyntaxConfFloor = %v, want default %v", cfg.Policy.SyntaxConfFloor, want.SyntaxConfFloor)
	}
	if cfg.Policy.MaxSyntaxAttempts != want.MaxSyntaxAttempts {
		t.Errorf("MaxSyntaxAttempts = %d, want default %d", cfg.Policy.MaxSyntaxAttempts, want.MaxSyntaxAttempts)
	}
	if len(cfg.Policy.RiskyKeywords) != len(want.RiskyKeywords) {
		t.Errorf("RiskyKeywords = %v, want default %v", cfg.Policy.RiskyKeywords, want.RiskyKeywords)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "server: [this is not a map")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should fail for invalid YAML")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
server:
  port: "8080"
policy:
  sandbox_isolation: "total"
taxonomy:
  path: "./taxonomy.yaml"
storage:
  hot_tier_size: 20
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should fail validation for an invalid sandbox_isolation value")
	}
}
