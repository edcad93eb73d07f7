// Package agent resolves agent-definition files and selects the runtime
// backend for a given agent type.
package agent

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/captaincrouton89/klaude-wrapper/log"
)

// WellKnownGeneralPurpose is the one agent type allowed to have no
// definition file on disk.
const WellKnownGeneralPurpose = "general-purpose"

// Definition is a parsed `<project>/.claude/agents/<type>.md` or
// `~/.claude/agents/<type>.md` file: YAML frontmatter plus an
// instructions body.
type Definition struct {
	Name                string   `yaml:"name"`
	Description         string   `yaml:"description"`
	AllowedAgents       []string `yaml:"allowedAgents"`
	Model               string   `yaml:"model"`
	Color               string   `yaml:"color"`
	MCPServers          []string `yaml:"mcpServers"`
	InheritProjectMCPs  *bool    `yaml:"inheritProjectMcps"`
	InheritParentMCPs   *bool    `yaml:"inheritParentMcps"`
	Kind                string   `yaml:"kind"`
	FallbackKind        string   `yaml:"fallbackKind"`

	Instructions string `yaml:"-"`
}

// InheritsProject reports whether project-level MCPs should be inherited;
// the default is true unless explicitly disabled.
func (d *Definition) InheritsProject() bool {
	return d.InheritProjectMCPs == nil || *d.InheritProjectMCPs
}

// InheritsParent reports whether the parent session's resolved MCPs
// should be inherited; the default is false.
func (d *Definition) InheritsParent() bool {
	return d.InheritParentMCPs != nil && *d.InheritParentMCPs
}

// Allows reports whether childType is permitted under d's allowedAgents
// set. An empty/nil set means unrestricted.
func (d *Definition) Allows(childType string) bool {
	if len(d.AllowedAgents) == 0 {
		return true
	}
	for _, a := range d.AllowedAgents {
		if a == childType {
			return true
		}
	}
	return false
}

// frontmatterDelim delimits the YAML frontmatter block in an agent
// definition file (`---\n...\n---\n`).
const frontmatterDelim = "---"

// parseDefinitionFile splits a markdown file into YAML frontmatter and a
// body.
func parseDefinitionFile(raw []byte) (*Definition, error) {
	text := string(raw)
	text = strings.TrimLeft(text, "\r\n")

	if !strings.HasPrefix(text, frontmatterDelim) {
		return &Definition{Instructions: strings.TrimSpace(text)}, nil
	}

	rest := text[len(frontmatterDelim):]
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end == -1 {
		return &Definition{Instructions: strings.TrimSpace(text)}, nil
	}

	fm := rest[:end]
	body := rest[end+len("\n"+frontmatterDelim):]
	body = strings.TrimPrefix(body, "\n")

	var def Definition
	if err := yaml.Unmarshal([]byte(fm), &def); err != nil {
		return nil, err
	}
	def.Instructions = strings.TrimSpace(body)
	return &def, nil
}

// LoadDefinition resolves `<projectRoot>/.claude/agents/<type>.md` then
// `<homeDir>/.claude/agents/<type>.md`, first match wins.
func LoadDefinition(projectRoot, homeDir, agentType string) (*Definition, bool, error) {
	candidates := []string{
		filepath.Join(projectRoot, ".claude", "agents", agentType+".md"),
		filepath.Join(homeDir, ".claude", "agents", agentType+".md"),
	}

	for _, path := range candidates {
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, false, err
		}
		def, err := parseDefinitionFile(raw)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to parse agent definition")
			return nil, false, err
		}
		if def.Name == "" {
			def.Name = agentType
		}
		return def, true, nil
	}

	return nil, false, nil
}

// ListTypes enumerates every `<type>.md` stem available under either
// agents directory, project entries winning over home-dir entries of the
// same name.
func ListTypes(projectRoot, homeDir string) []string {
	seen := map[string]bool{}
	var out []string

	for _, dir := range []string{
		filepath.Join(projectRoot, ".claude", "agents"),
		filepath.Join(homeDir, ".claude", "agents"),
	} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ".md")
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}
