package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/captaincrouton89/klaude-wrapper/log"
)

const probeTimeout = 3 * time.Second

// Resolution is the outcome of resolving an agent's visible MCP server
// set, persisted into the child session's metadataJson.
type Resolution struct {
	ResolvedServers []string `json:"resolvedServers"`
	Unreachable     []string `json:"unreachable,omitempty"`
}

// DefinitionView is the subset of agent.Definition the resolver needs,
// kept separate from the agent package to avoid an import cycle (agent
// imports nothing from mcp).
type DefinitionView struct {
	MCPServers         []string
	InheritProjectMCPs bool
	InheritParentMCPs  bool
}

// Resolve computes the visible server set: an explicit mcpServers list on
// the definition replaces inheritance entirely; otherwise start from
// project-level servers (unless inheritProjectMcps=false) and add the
// parent's resolved servers only if inheritParentMcps=true. Names not
// present in available are a hard failure; reachability failures for
// names that ARE present are logged and excluded, never fatal.
func Resolve(ctx context.Context, def DefinitionView, available map[string]ServerConfig, parentResolved []string) (*Resolution, error) {
	var names []string

	if len(def.MCPServers) > 0 {
		for _, n := range def.MCPServers {
			if _, ok := available[n]; !ok {
				return nil, fmt.Errorf("unknown mcp server: %s", n)
			}
			names = append(names, n)
		}
	} else {
		if def.InheritProjectMCPs {
			for n := range available {
				names = append(names, n)
			}
		}
		if def.InheritParentMCPs {
			names = append(names, dedupeAgainst(parentResolved, names)...)
		}
	}

	var unreachable []string
	var resolved []string
	for _, n := range names {
		cfg, ok := available[n]
		if !ok {
			// Inherited-from-parent name not in this project's config;
			// carry it forward without a reachability probe.
			resolved = append(resolved, n)
			continue
		}
		if probe(ctx, n, cfg) {
			resolved = append(resolved, n)
		} else {
			unreachable = append(unreachable, n)
		}
	}

	return &Resolution{ResolvedServers: resolved, Unreachable: unreachable}, nil
}

func dedupeAgainst(candidates, existing []string) []string {
	seen := map[string]bool{}
	for _, e := range existing {
		seen[e] = true
	}
	var out []string
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// probe performs a best-effort MCP initialize handshake; any failure is
// logged and treated as "unreachable", never as a spawn-blocking error.
func probe(ctx context.Context, name string, cfg ServerConfig) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var c *client.Client
	var err error
	switch {
	case cfg.URL != "":
		c, err = client.NewSSEMCPClient(cfg.URL)
	case cfg.Command != "":
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		c, err = client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	default:
		log.Warn().Str("server", name).Msg("mcp server has neither command nor url, skipping")
		return false
	}
	if err != nil {
		log.Warn().Err(err).Str("server", name).Msg("failed to construct mcp client")
		return false
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		log.Warn().Err(err).Str("server", name).Msg("mcp server unreachable")
		return false
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "klaude-wrapper", Version: "0.1.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		log.Warn().Err(err).Str("server", name).Msg("mcp server failed to initialize")
		return false
	}

	return true
}
