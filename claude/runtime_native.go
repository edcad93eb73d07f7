package claude

import (
	"encoding/json"
	"os"

	"github.com/captaincrouton89/klaude-wrapper/config"
	"github.com/captaincrouton89/klaude-wrapper/db"
)

func init() {
	registerKind(db.RuntimeKindNative, kindImpl{
		Bidirectional: true,
		BuildArgv:     buildNativeArgv,
		Parse:         parseNativeLine,
	})
}

// buildNativeArgv builds argv for the Native kind: bidirectional JSON
// stdio, init payload on stdin followed by `{"type":"message",...}`
// lines. The init payload itself is written by the caller once the
// process is started (see runtime.go's spawnOnce for bidirectional
// kinds), not passed as argv.
func buildNativeArgv(spec SpawnSpec, kc config.GPTKindConfig) (string, []string, []string) {
	args := []string{"--output-format", "stream-json", "--input-format", "stream-json"}
	if spec.Model != "" {
		args = append(args, "--model", spec.Model)
	}
	if spec.PermissionMode != "" {
		args = append(args, "--permission-mode", spec.PermissionMode)
	}
	if spec.ResumeClaudeSessionID != "" {
		args = append(args, "--resume", spec.ResumeClaudeSessionID)
	}
	return kc.BinaryPath, args, os.Environ()
}

// parseNativeLine decodes the native runtime's typed envelope directly;
// it emits the envelope shape verbatim.
func parseNativeLine(line []byte) (*RuntimeEvent, error) {
	var ev RuntimeEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, err
	}
	ev.raw = line
	return &ev, nil
}

// nativeInitPayload is written to stdin immediately after spawn.
func nativeInitPayload(spec SpawnSpec) []byte {
	payload := map[string]any{
		"type":   "init",
		"prompt": spec.Prompt,
	}
	if spec.SystemPrompt != "" {
		payload["systemPrompt"] = spec.SystemPrompt
	}
	b, _ := json.Marshal(payload)
	return append(b, '\n')
}

// nativeMessagePayload is written to stdin for a follow-up message.
func nativeMessagePayload(prompt string) []byte {
	b, _ := json.Marshal(map[string]any{"type": "message", "prompt": prompt})
	return append(b, '\n')
}
