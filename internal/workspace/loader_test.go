package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgehq/forge/internal/config"
)

func writeDoc(t *testing.T, root, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadReadsInstructionDocuments(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "AGENTS.md", "agents body")
	writeDoc(t, root, "TOOLS.md", "tools body")
	writeDoc(t, root, "MEMORY.md", "memory body")

	docs, err := Load(LoaderConfig{Root: root})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if docs.Agents != "agents body" || docs.Tools != "tools body" || docs.Memory != "memory body" {
		t.Fatalf("Load() = %+v", docs)
	}
}

func TestLoadMissingFilesAreEmpty(t *testing.T) {
	docs, err := Load(LoaderConfig{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if docs.Agents != "" || docs.Tools != "" || docs.Memory != "" {
		t.Fatalf("missing files should load empty, got %+v", docs)
	}
	if got := docs.InstructionDocs(); got != nil {
		t.Fatalf("InstructionDocs() = %v, want nil", got)
	}
}

func TestLoadHonorsFileNameOverrides(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "instructions.md", "custom agents")

	docs, err := Load(LoaderConfig{Root: root, AgentsFile: "instructions.md"})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if docs.Agents != "custom agents" {
		t.Fatalf("Agents = %q", docs.Agents)
	}
}

func TestInstructionDocsKeepsPromptOrder(t *testing.T) {
	docs := &Documents{Agents: "a", Memory: "m"}
	got := docs.InstructionDocs()
	if len(got) != 2 || got[0] != "a" || got[1] != "m" {
		t.Fatalf("InstructionDocs() = %v", got)
	}
}

func TestLoaderConfigFromConfig(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		cfg := LoaderConfigFromConfig(nil).withDefaults()
		if cfg.AgentsFile != DefaultAgentsFile || cfg.ToolsFile != DefaultToolsFile || cfg.MemoryFile != DefaultMemoryFile {
			t.Fatalf("defaults = %+v", cfg)
		}
	})

	t.Run("overrides applied", func(t *testing.T) {
		appCfg := config.Default()
		appCfg.Workspace.Path = "/work"
		appCfg.Workspace.ToolsFile = "custom_tools.md"

		cfg := LoaderConfigFromConfig(appCfg).withDefaults()
		if cfg.Root != "/work" {
			t.Fatalf("Root = %q", cfg.Root)
		}
		if cfg.ToolsFile != "custom_tools.md" {
			t.Fatalf("ToolsFile = %q", cfg.ToolsFile)
		}
		if cfg.AgentsFile != DefaultAgentsFile {
			t.Fatalf("AgentsFile = %q, want default", cfg.AgentsFile)
		}
	})
}
