package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
session:
  max_turns: 10
  extra_unknown_field: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidatesReasoningEffort(t *testing.T) {
	path := writeConfig(t, `
session:
  reasoning_effort: ultra
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "reasoning_effort") {
		t.Fatalf("expected reasoning_effort error, got %v", err)
	}
}

func TestLoadValidatesPersistenceMode(t *testing.T) {
	path := writeConfig(t, `
session:
  persistence_mode: sometimes
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "persistence_mode") {
		t.Fatalf("expected persistence_mode error, got %v", err)
	}
}

func TestLoadValidatesLineageBackend(t *testing.T) {
	path := writeConfig(t, `
lineage:
  backend: dynamodb
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "lineage.backend") {
		t.Fatalf("expected lineage.backend error, got %v", err)
	}
}

func TestLoadValidatesLineageDSNRequired(t *testing.T) {
	path := writeConfig(t, `
lineage:
  backend: sqlite
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "lineage.dsn") {
		t.Fatalf("expected lineage.dsn error, got %v", err)
	}
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
session:
  max_tool_rounds_per_input: 40
  loop_detection_window: 4
  reasoning_effort: high
lineage:
  backend: sqlite
  dsn: /tmp/forge-lineage.db
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
	if cfg.Session.MaxToolRoundsPerInput != 40 {
		t.Fatalf("expected max_tool_rounds_per_input 40, got %d", cfg.Session.MaxToolRoundsPerInput)
	}
	sc, err := cfg.SessionConfig()
	if err != nil {
		t.Fatalf("SessionConfig() error = %v", err)
	}
	if sc.ReasoningEffort != "high" {
		t.Fatalf("expected normalized reasoning effort high, got %q", sc.ReasoningEffort)
	}
}

func TestLoadDefaultsApplyWhenSectionOmitted(t *testing.T) {
	path := writeConfig(t, `
session:
  max_turns: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Lineage.Backend != "memory" {
		t.Fatalf("expected default lineage backend memory, got %q", cfg.Lineage.Backend)
	}
	if cfg.Session.MaxToolRoundsPerInput == 0 {
		t.Fatalf("expected default max_tool_rounds_per_input to survive merge")
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(basePath, []byte("logging:\n  level: warn\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	mainPath := filepath.Join(dir, "forge.yaml")
	contents := "$include: base.yaml\nsession:\n  max_turns: 3\n"
	if err := os.WriteFile(mainPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected included logging.level=warn, got %q", cfg.Logging.Level)
	}
	if cfg.Session.MaxTurns != 3 {
		t.Fatalf("expected session.max_turns=3, got %d", cfg.Session.MaxTurns)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("FORGE_TEST_DSN", "/tmp/from-env.db")
	path := writeConfig(t, `
lineage:
  backend: sqlite
  dsn: ${FORGE_TEST_DSN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Lineage.DSN != "/tmp/from-env.db" {
		t.Fatalf("expected expanded dsn, got %q", cfg.Lineage.DSN)
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
