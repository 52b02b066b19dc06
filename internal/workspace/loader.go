// Package workspace manages the instruction documents a Forge
// workspace carries. They are plain markdown files seeded by the
// bootstrap (bootstrap.go) and folded into the Session Engine's
// layered system prompt as the "project instruction documents" layer.
package workspace

import (
	"os"
	"path/filepath"

	"github.com/forgehq/forge/internal/config"
)

// Default instruction-document file names.
const (
	DefaultAgentsFile = "AGENTS.md"
	DefaultToolsFile  = "TOOLS.md"
	DefaultMemoryFile = "MEMORY.md"
)

// Documents holds the loaded instruction-document contents. A missing
// file loads as an empty string; only load errors other than
// not-exist surface.
type Documents struct {
	// Agents is the workspace's standing instructions to the agent.
	Agents string

	// Tools is operator-maintained notes about local tools and
	// conventions.
	Tools string

	// Memory is the long-term memory document sessions may append to
	// through their own tooling.
	Memory string
}

// InstructionDocs returns the non-empty documents in prompt order.
func (d *Documents) InstructionDocs() []string {
	var docs []string
	for _, content := range []string{d.Agents, d.Tools, d.Memory} {
		if content != "" {
			docs = append(docs, content)
		}
	}
	return docs
}

// LoaderConfig names the workspace root and the per-document file
// names; empty fields take the package defaults.
type LoaderConfig struct {
	Root       string
	AgentsFile string
	ToolsFile  string
	MemoryFile string
}

func (c LoaderConfig) withDefaults() LoaderConfig {
	if c.Root == "" {
		c.Root = "."
	}
	if c.AgentsFile == "" {
		c.AgentsFile = DefaultAgentsFile
	}
	if c.ToolsFile == "" {
		c.ToolsFile = DefaultToolsFile
	}
	if c.MemoryFile == "" {
		c.MemoryFile = DefaultMemoryFile
	}
	return c
}

// LoaderConfigFromConfig maps the app config's workspace section onto
// a LoaderConfig.
func LoaderConfigFromConfig(cfg *config.Config) LoaderConfig {
	if cfg == nil {
		return LoaderConfig{}
	}
	return LoaderConfig{
		Root:       cfg.Workspace.Path,
		AgentsFile: cfg.Workspace.AgentsFile,
		ToolsFile:  cfg.Workspace.ToolsFile,
		MemoryFile: cfg.Workspace.MemoryFile,
	}
}

// Load reads the instruction documents under cfg.Root.
func Load(cfg LoaderConfig) (*Documents, error) {
	cfg = cfg.withDefaults()

	docs := &Documents{}
	for _, slot := range []struct {
		name string
		dst  *string
	}{
		{cfg.AgentsFile, &docs.Agents},
		{cfg.ToolsFile, &docs.Tools},
		{cfg.MemoryFile, &docs.Memory},
	} {
		content, err := readOptional(filepath.Join(cfg.Root, slot.name))
		if err != nil {
			return nil, err
		}
		*slot.dst = content
	}
	return docs, nil
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}
