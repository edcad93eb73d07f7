package claude

import "github.com/captaincrouton89/klaude-wrapper/config"

// SpawnSpec carries everything a runtime kind needs to build argv/env for
// one spawn attempt; it is resolved by the caller (the orchestrator, via
// the agent package's definition loader and RuntimeSelector) so this
// package never needs to know about
// agent-definition files.
type SpawnSpec struct {
	SessionID             string
	AgentType             string
	Prompt                string
	Model                 string
	PermissionMode        string
	SystemPrompt          string
	ResumeClaudeSessionID string
}

// RuntimeEvent is the unified envelope every backend kind's stdout line is
// parsed into.
type RuntimeEvent struct {
	Type string `json:"type"`

	// status
	Status string `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`

	// message
	MessageType string `json:"messageType,omitempty"`
	Payload     any    `json:"payload,omitempty"`
	Text        string `json:"text,omitempty"`

	// log
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`

	// result
	Result     any    `json:"result,omitempty"`
	StopReason string `json:"stopReason,omitempty"`

	// error
	Stack string `json:"stack,omitempty"`

	// done
	Reason string `json:"reason,omitempty"`

	// claude-session
	SessionID      string `json:"sessionId,omitempty"`
	TranscriptPath string `json:"transcriptPath,omitempty"`

	raw []byte
}

// kindImpl is the per-backend-kind parameterization: shared plumbing
// (line-buffer, retry loop, exit handling) is parameterized by Parse and
// BuildArgv.
type kindImpl struct {
	Bidirectional bool
	BuildArgv     func(spec SpawnSpec, kc config.GPTKindConfig) (binary string, args []string, env []string)
	Parse         func(line []byte) (*RuntimeEvent, error)
}

var kindRegistry = map[string]kindImpl{}

func registerKind(kind string, impl kindImpl) {
	kindRegistry[kind] = impl
}
