// Package mcp resolves which MCP servers are visible to a spawned agent
// session and performs a best-effort reachability probe against each
// using github.com/mark3labs/mcp-go.
package mcp

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// ServerConfig is one entry of a project's `.mcp.json` file, the
// convention this wrapper shares with the foreground TUI binary it
// supervises.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// projectConfig is the on-disk shape of `<project>/.mcp.json`.
type projectConfig struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// LoadProjectServers reads `<projectRoot>/.mcp.json`. A missing file
// yields an empty, non-error map — most projects have no MCP servers
// configured at all.
func LoadProjectServers(projectRoot string) (map[string]ServerConfig, error) {
	raw, err := os.ReadFile(filepath.Join(projectRoot, ".mcp.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ServerConfig{}, nil
		}
		return nil, err
	}

	var cfg projectConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]ServerConfig{}
	}
	return cfg.MCPServers, nil
}
