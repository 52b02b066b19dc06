package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgehq/forge/internal/config"
)

// BootstrapFile is one instruction document to seed into a workspace.
type BootstrapFile struct {
	Name    string
	Content string
}

// BootstrapResult lists the paths written and the paths left alone.
type BootstrapResult struct {
	Created []string
	Skipped []string
}

// DefaultBootstrapFiles returns the seed set for a fresh workspace.
func DefaultBootstrapFiles() []BootstrapFile {
	return []BootstrapFile{
		{
			Name: DefaultAgentsFile,
			Content: "# Workspace Instructions\n\n" +
				"This directory is the agent's working tree.\n\n" +
				"- Prefer small, verifiable changes; run the project's tests when they exist.\n" +
				"- Do not touch files outside this workspace unless asked.\n" +
				"- Ask before destructive operations (deletes, force pushes, schema drops).\n" +
				"- Record durable decisions in MEMORY.md rather than repeating them in chat.\n",
		},
		{
			Name: DefaultToolsFile,
			Content: "# Tool Notes\n\n" +
				"Operator-maintained notes about local tools, build commands, and\n" +
				"conventions the agent should follow in this workspace.\n",
		},
		{
			Name: DefaultMemoryFile,
			Content: "# Long-Term Memory\n\n" +
				"Durable facts, preferences, and decisions about this workspace.\n",
		},
	}
}

// BootstrapFilesForConfig applies the config's file-name overrides to
// the default seed set.
func BootstrapFilesForConfig(cfg *config.Config) []BootstrapFile {
	files := DefaultBootstrapFiles()
	if cfg == nil {
		return files
	}
	overrides := map[string]string{
		DefaultAgentsFile: cfg.Workspace.AgentsFile,
		DefaultToolsFile:  cfg.Workspace.ToolsFile,
		DefaultMemoryFile: cfg.Workspace.MemoryFile,
	}
	for i, f := range files {
		if name := overrides[f.Name]; name != "" {
			files[i].Name = name
		}
	}
	return files
}

// EnsureWorkspaceFiles writes the given files under root, creating the
// directory if needed. Existing files are skipped unless overwrite is
// set; entries with a blank name are ignored.
func EnsureWorkspaceFiles(root string, files []BootstrapFile, overwrite bool) (BootstrapResult, error) {
	var result BootstrapResult
	base := strings.TrimSpace(root)
	if base == "" {
		base = "."
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return result, fmt.Errorf("create workspace dir: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSpace(file.Name)
		if name == "" {
			continue
		}
		path := filepath.Join(base, name)
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				result.Skipped = append(result.Skipped, path)
				continue
			} else if !os.IsNotExist(err) {
				return result, fmt.Errorf("stat %s: %w", path, err)
			}
		}
		if err := os.WriteFile(path, []byte(file.Content), 0o644); err != nil {
			return result, fmt.Errorf("write %s: %w", path, err)
		}
		result.Created = append(result.Created, path)
	}
	return result, nil
}
