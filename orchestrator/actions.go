package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/captaincrouton89/klaude-wrapper/agent"
	"github.com/captaincrouton89/klaude-wrapper/claude"
	"github.com/captaincrouton89/klaude-wrapper/db"
	"github.com/captaincrouton89/klaude-wrapper/events"
	"github.com/captaincrouton89/klaude-wrapper/log"
	"github.com/captaincrouton89/klaude-wrapper/mcp"
	"github.com/captaincrouton89/klaude-wrapper/server"
	"github.com/captaincrouton89/klaude-wrapper/ulid"
	"github.com/captaincrouton89/klaude-wrapper/wraperr"
)

// SessionMetadata is persisted to Session.MetadataJSON for every agent
// session: the resolved definition, the runtime decision, and the
// resolved MCP set. It carries enough of that to re-spawn a Native
// runtime later for a follow-up message without re-reading the
// definition file.
type SessionMetadata struct {
	AgentType       string   `json:"agentType"`
	Kind            string   `json:"kind"`
	FallbackKind    string   `json:"fallbackKind,omitempty"`
	AllowedAgents   []string `json:"allowedAgents,omitempty"`
	Model           string   `json:"model,omitempty"`
	PermissionMode  string   `json:"permissionMode,omitempty"`
	Instructions    string   `json:"instructions,omitempty"`
	ResolvedMCPs    []string `json:"resolvedMcps,omitempty"`
	UnreachableMCPs []string `json:"unreachableMcps,omitempty"`
}

func loadSessionMetadata(s *db.Session) SessionMetadata {
	var m SessionMetadata
	if s != nil && s.MetadataJSON != nil {
		_ = json.Unmarshal([]byte(*s.MetadataJSON), &m)
	}
	return m
}

// Ping implements the `ping` action.
func (o *Orchestrator) Ping() (any, error) {
	return map[string]any{"pong": true, "timestamp": time.Now().UTC().Format(time.RFC3339)}, nil
}

// Status implements the `status` action: a snapshot of the current
// session id, status, tui pid, instance id, project, and the live agent
// runtime count.
func (o *Orchestrator) Status() (any, error) {
	sessionID := o.tui.CurrentSessionID()
	status := ""
	if sessionID != "" {
		if s, err := db.GetSession(sessionID); err == nil && s != nil {
			status = s.Status
		}
	}
	switching := o.tui.IsSwitching()
	return map[string]any{
		"sessionId":             sessionID,
		"status":                status,
		"tuiPid":                o.tui.CurrentPid(),
		"instanceId":            o.instance.InstanceID,
		"projectRoot":           o.projectRoot,
		"projectHash":           o.projectHash,
		"switching":             switching,
		"pendingSwitch":         switching,
		"liveAgentRuntimeCount": o.runtimes.LiveCount(),
	}, nil
}

// Checkout implements the `checkout` action by delegating to the checkout
// state machine.
func (o *Orchestrator) Checkout(p server.CheckoutPayload) (any, error) {
	return o.tui.Checkout(claude.CheckoutRequest{
		SessionID:     p.SessionID,
		FromSessionID: p.FromSessionID,
		WaitSeconds:   p.WaitSeconds,
	})
}

// Interrupt implements the `interrupt` action: signal the agent runtime's
// tracked process.
func (o *Orchestrator) Interrupt(p server.InterruptPayload) (any, error) {
	if err := o.runtimes.Interrupt(p.SessionID, p.Signal); err != nil {
		return nil, err
	}
	return map[string]any{"sessionId": p.SessionID, "signal": p.Signal}, nil
}

// StartAgent implements the `start-agent` action end to end: resolve the
// parent and agent definition, check depth and allowed-agents, resolve
// MCPs, pick a runtime kind, create the child session, and spawn it.
func (o *Orchestrator) StartAgent(p server.StartAgentPayload) (any, error) {
	parentID := p.ParentSessionID
	if parentID == "" {
		parentID = o.rootSessionID
	}
	parent, err := db.GetSession(parentID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, wraperr.New(wraperr.ESessionNotFound, "parent session not found: "+parentID)
	}

	def, found, err := o.agentCache.Load(p.AgentType)
	if err != nil {
		return nil, wraperr.Wrap(wraperr.EAgentTypeInvalid, "failed to load agent definition for "+p.AgentType, err)
	}
	if !found {
		if p.AgentType != agent.WellKnownGeneralPurpose {
			return nil, resolvedAgentTypeError(o)
		}
		def = &agent.Definition{Name: p.AgentType}
	}
	if def.Instructions == "" && p.AgentType != agent.WellKnownGeneralPurpose {
		return nil, wraperr.New(wraperr.EAgentInstructionsMissing, "agent definition "+p.AgentType+" has no instructions body")
	}

	parentMeta := loadSessionMetadata(parent)
	if parentID != o.rootSessionID && len(parentMeta.AllowedAgents) > 0 && !stringsContain(parentMeta.AllowedAgents, p.AgentType) {
		return nil, wraperr.New(wraperr.EAgentTypeNotAllowed, "agent type "+p.AgentType+" is not in parent's allowedAgents")
	}

	depth, err := db.CalculateSessionDepth(parentID)
	if err != nil {
		return nil, err
	}
	if depth+1 > o.cfg.MaxAgentDepth {
		return nil, wraperr.New(wraperr.EMaxDepthExceeded, "spawning "+p.AgentType+" would exceed maxAgentDepth")
	}

	resolution := o.resolveMCPs(def, parentMeta.ResolvedMCPs)

	selection := agent.Select(def)

	model := o.cfg.SDKModel
	if def.Model != "" {
		model = def.Model
	}
	permissionMode := o.cfg.SDKPermissionMode

	childID := ulid.New()
	now := time.Now().UTC().Format(time.RFC3339)
	promptCopy := p.Prompt

	meta := SessionMetadata{
		AgentType:       p.AgentType,
		Kind:            selection.Primary,
		FallbackKind:    selection.Fallback,
		AllowedAgents:   def.AllowedAgents,
		Model:           model,
		PermissionMode:  permissionMode,
		Instructions:    def.Instructions,
		ResolvedMCPs:    resolution.ResolvedServers,
		UnreachableMCPs: resolution.Unreachable,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	metaStr := string(metaJSON)

	if err := db.CreateSession(db.Session{
		ID:           childID,
		ProjectID:    parent.ProjectID,
		ParentID:     &parentID,
		AgentType:    p.AgentType,
		InstanceID:   &o.instance.InstanceID,
		Prompt:       &promptCopy,
		Status:       db.SessionStatusActive,
		CreatedAt:    now,
		MetadataJSON: &metaStr,
	}); err != nil {
		return nil, err
	}
	o.recorder.RecordSessionEvent(&parent.ProjectID, childID, events.KindAgentSessionCreated, map[string]any{
		"agentType":       p.AgentType,
		"parentSessionId": parentID,
	})
	o.updates.Track(parentID)

	var resumeID string
	if p.Options.Share {
		waitSeconds := 5.0
		if res, err := claude.ResolveResumeID(parentID, waitSeconds); err == nil && res != nil {
			resumeID = res.ClaudeSessionID
		}
	}

	spec := claude.SpawnSpec{
		SessionID:             childID,
		AgentType:             p.AgentType,
		Prompt:                p.Prompt,
		Model:                 model,
		PermissionMode:        permissionMode,
		SystemPrompt:          def.Instructions,
		ResumeClaudeSessionID: resumeID,
	}

	parentIDCopy := parentID
	if err := o.runtimes.Start(spec, selection.Primary, selection.Fallback, &parentIDCopy); err != nil {
		_ = db.UpdateSessionStatus(childID, db.SessionStatusFailed)
		return nil, err
	}

	result := map[string]any{
		"sessionId": childID,
		"agentType": p.AgentType,
		"status":    db.SessionStatusRunning,
	}

	if p.Options.Checkout {
		co, err := o.tui.Checkout(claude.CheckoutRequest{SessionID: childID, WaitSeconds: 5})
		if err != nil {
			return nil, err
		}
		result["checkout"] = co
	}

	return result, nil
}

// resolveMCPs resolves the set of MCP servers visible to a spawned
// session. Resolution failures (unreachable servers, or an unknown
// explicit name) are logged and never block the spawn.
func (o *Orchestrator) resolveMCPs(def *agent.Definition, parentResolved []string) *mcp.Resolution {
	available, err := mcp.LoadProjectServers(o.projectRoot)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load project mcp servers")
		available = map[string]mcp.ServerConfig{}
	}

	view := mcp.DefinitionView{
		MCPServers:         def.MCPServers,
		InheritProjectMCPs: def.InheritsProject(),
		InheritParentMCPs:  def.InheritsParent(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resolution, err := mcp.Resolve(ctx, view, available, parentResolved)
	if err != nil {
		log.Warn().Err(err).Msg("mcp resolution failed, spawning with no resolved servers")
		return &mcp.Resolution{}
	}
	return resolution
}

// Message implements the `message` action end to end.
func (o *Orchestrator) Message(p server.MessagePayload) (any, error) {
	session, err := db.GetSession(p.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, wraperr.New(wraperr.ESessionNotFound, "session not found: "+p.SessionID)
	}

	if kind, live := o.runtimes.HasLiveRuntime(p.SessionID); live {
		if kind != db.RuntimeKindNative {
			return nil, wraperr.New(wraperr.EAgentMessageUnsupported, "runtime kind "+kind+" does not accept follow-up messages")
		}
		if err := o.runtimes.SendMessage(p.SessionID, p.Prompt); err != nil {
			return nil, err
		}
		return map[string]any{"status": "queued", "messagesQueued": 1}, nil
	}

	meta := loadSessionMetadata(session)
	if meta.Kind != "" && meta.Kind != db.RuntimeKindNative {
		return nil, wraperr.New(wraperr.EAgentMessageUnsupported, "runtime kind "+meta.Kind+" does not accept follow-up messages")
	}

	resolution, err := claude.ResolveResumeID(p.SessionID, p.WaitSeconds)
	if err != nil {
		return nil, err
	}

	spec := claude.SpawnSpec{
		SessionID:             p.SessionID,
		AgentType:             session.AgentType,
		Prompt:                p.Prompt,
		Model:                 meta.Model,
		PermissionMode:        meta.PermissionMode,
		SystemPrompt:          meta.Instructions,
		ResumeClaudeSessionID: resolution.ClaudeSessionID,
	}

	if err := db.UpdateSessionStatus(p.SessionID, db.SessionStatusActive); err != nil {
		log.Warn().Err(err).Msg("failed to mark session active before message re-spawn")
	}
	o.recorder.RecordSessionEvent(&session.ProjectID, p.SessionID, events.KindAgentMessageRuntimeStarted, map[string]any{
		"reason": resolution.Reason,
	})

	if err := o.runtimes.Start(spec, db.RuntimeKindNative, "", session.ParentID); err != nil {
		return nil, err
	}

	return map[string]any{"status": "queued", "messagesQueued": 1}, nil
}

func stringsContain(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
