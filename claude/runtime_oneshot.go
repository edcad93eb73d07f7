package claude

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/captaincrouton89/klaude-wrapper/config"
	"github.com/captaincrouton89/klaude-wrapper/db"
)

func init() {
	registerKind(db.RuntimeKindBackendA, kindImpl{BuildArgv: buildBackendAArgv, Parse: parseVendorLine})
	registerKind(db.RuntimeKindBackendB, kindImpl{BuildArgv: buildBackendBArgv, Parse: parseVendorLine})
	registerKind(db.RuntimeKindBackendC, kindImpl{BuildArgv: buildBackendCArgv, Parse: parseVendorLine})
}

// buildBackendAArgv builds argv for the one-shot "exec" kind: prompt and
// model passed as flags, JSON-per-line on stdout.
func buildBackendAArgv(spec SpawnSpec, kc config.GPTKindConfig) (string, []string, []string) {
	args := []string{"exec", "--json", "--prompt", spec.Prompt}
	if spec.Model != "" {
		args = append(args, "--model", spec.Model)
	}
	return kc.BinaryPath, args, os.Environ()
}

// buildBackendBArgv builds argv for the one-shot "stream" kind.
func buildBackendBArgv(spec SpawnSpec, kc config.GPTKindConfig) (string, []string, []string) {
	args := []string{"--stream-json", "--prompt", spec.Prompt}
	if spec.Model != "" {
		args = append(args, "--model", spec.Model)
	}
	return kc.BinaryPath, args, os.Environ()
}

// buildBackendCArgv builds argv for the one-shot "stream" kind that takes
// its system prompt via an env var pointing at a temp file.
func buildBackendCArgv(spec SpawnSpec, kc config.GPTKindConfig) (string, []string, []string) {
	args := []string{"--stream-json", "--prompt", spec.Prompt}
	if spec.Model != "" {
		args = append(args, "--model", spec.Model)
	}

	env := os.Environ()
	if spec.SystemPrompt != "" {
		if path, err := writeSystemPromptTempFile(spec.SessionID, spec.SystemPrompt); err == nil {
			env = append(env, "KLAUDE_SYSTEM_PROMPT_FILE="+path)
		}
	}
	return kc.BinaryPath, args, env
}

func writeSystemPromptTempFile(sessionID, systemPrompt string) (string, error) {
	dir := os.TempDir()
	path := filepath.Join(dir, fmt.Sprintf("klaude-system-prompt-%s.txt", sessionID))
	if err := os.WriteFile(path, []byte(systemPrompt), 0600); err != nil {
		return "", err
	}
	return path, nil
}

// vendorEnvelope is the vendor-specific wire shape shared by backends A-C;
// each differs only in which fields it populates.
type vendorEnvelope struct {
	Type       string          `json:"type"`
	Subtype    string          `json:"subtype,omitempty"`
	Text       string          `json:"text,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	StopReason string          `json:"stop_reason,omitempty"`
	Error      string          `json:"error,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Transcript string          `json:"transcript_path,omitempty"`
	Level      string          `json:"level,omitempty"`
}

// parseVendorLine maps backend A/B/C's vendor schema onto the unified
// RuntimeEvent envelope: the other three backend kinds map their
// vendor-specific schema into the same envelope Native emits natively.
func parseVendorLine(line []byte) (*RuntimeEvent, error) {
	var v vendorEnvelope
	if err := json.Unmarshal(line, &v); err != nil {
		return nil, err
	}

	switch v.Type {
	case "system":
		if v.Subtype == "init" {
			return &RuntimeEvent{Type: "status", Status: "starting"}, nil
		}
		return &RuntimeEvent{Type: "log", Level: "info", Message: v.Text}, nil
	case "assistant", "user":
		return &RuntimeEvent{Type: "message", MessageType: v.Type, Payload: v.Message, Text: v.Text}, nil
	case "result":
		return &RuntimeEvent{Type: "result", Result: v.Result, StopReason: v.StopReason}, nil
	case "error":
		return &RuntimeEvent{Type: "error", Message: v.Error}, nil
	case "claude-session", "session":
		return &RuntimeEvent{Type: "claude-session", SessionID: v.SessionID, TranscriptPath: v.Transcript}, nil
	case "done":
		return &RuntimeEvent{Type: "done", Status: v.Subtype}, nil
	default:
		return &RuntimeEvent{Type: "unknown"}, nil
	}
}
