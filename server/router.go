package server

import (
	"encoding/json"

	"github.com/captaincrouton89/klaude-wrapper/wraperr"
)

// Router switches over the action verb, validates the payload shape, then
// delegates to the orchestrator's ActionHandler.
type Router struct {
	handler ActionHandler
}

func NewRouter(handler ActionHandler) *Router {
	return &Router{handler: handler}
}

// Route dispatches one decoded Request, folding any shorthand top-level
// fields into the typed payload before validating.
func (r *Router) Route(req Request) (any, error) {
	switch req.Action {
	case "ping":
		return r.handler.Ping()

	case "status":
		return r.handler.Status()

	case "start-agent":
		var p StartAgentPayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &p); err != nil {
				return nil, wraperr.New(wraperr.EInvalidJSON, "malformed start-agent payload")
			}
		}
		if req.AgentType != nil {
			p.AgentType = *req.AgentType
		}
		if req.Prompt != nil {
			p.Prompt = *req.Prompt
		}
		if req.ParentSessionID != nil {
			p.ParentSessionID = *req.ParentSessionID
		}
		if p.AgentType == "" {
			return nil, wraperr.New(wraperr.EAgentTypeRequired, "agentType is required")
		}
		if p.Prompt == "" {
			return nil, wraperr.New(wraperr.EPromptRequired, "prompt is required")
		}
		return r.handler.StartAgent(p)

	case "checkout":
		var p CheckoutPayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &p); err != nil {
				return nil, wraperr.New(wraperr.EInvalidJSON, "malformed checkout payload")
			}
		}
		if req.SessionID != nil {
			p.SessionID = *req.SessionID
		}
		if req.FromSessionID != nil {
			p.FromSessionID = *req.FromSessionID
		}
		if req.WaitSeconds != nil {
			p.WaitSeconds = *req.WaitSeconds
			p.WaitSecondsSet = true
		} else if len(req.Payload) > 0 {
			var probe map[string]json.RawMessage
			if json.Unmarshal(req.Payload, &probe) == nil {
				if _, ok := probe["waitSeconds"]; ok {
					p.WaitSecondsSet = true
				}
			}
		}
		if p.WaitSecondsSet && p.WaitSeconds < 0 {
			return nil, wraperr.New(wraperr.EInvalidWaitValue, "waitSeconds must be >= 0")
		}
		if !p.WaitSecondsSet {
			p.WaitSeconds = 5
		}
		return r.handler.Checkout(p)

	case "message":
		var p MessagePayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &p); err != nil {
				return nil, wraperr.New(wraperr.EInvalidJSON, "malformed message payload")
			}
		}
		if req.SessionID != nil {
			p.SessionID = *req.SessionID
		}
		if req.Prompt != nil {
			p.Prompt = *req.Prompt
		}
		if req.WaitSeconds != nil {
			p.WaitSeconds = *req.WaitSeconds
			p.WaitSecondsSet = true
		} else if len(req.Payload) > 0 {
			var probe map[string]json.RawMessage
			if json.Unmarshal(req.Payload, &probe) == nil {
				if _, ok := probe["waitSeconds"]; ok {
					p.WaitSecondsSet = true
				}
			}
		}
		if p.SessionID == "" {
			return nil, wraperr.New(wraperr.ESessionNotFound, "sessionId is required")
		}
		if p.Prompt == "" {
			return nil, wraperr.New(wraperr.EPromptRequired, "prompt is required")
		}
		if p.WaitSecondsSet && p.WaitSeconds < 0 {
			return nil, wraperr.New(wraperr.EInvalidWaitValue, "waitSeconds must be >= 0")
		}
		if !p.WaitSecondsSet {
			p.WaitSeconds = 5
		}
		return r.handler.Message(p)

	case "interrupt":
		var p InterruptPayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &p); err != nil {
				return nil, wraperr.New(wraperr.EInvalidJSON, "malformed interrupt payload")
			}
		}
		if req.SessionID != nil {
			p.SessionID = *req.SessionID
		}
		if req.Signal != nil {
			p.Signal = *req.Signal
		}
		if p.SessionID == "" {
			return nil, wraperr.New(wraperr.ESessionNotFound, "sessionId is required")
		}
		if p.Signal == "" {
			p.Signal = "SIGINT"
		}
		return r.handler.Interrupt(p)

	default:
		return nil, wraperr.New(wraperr.EUnsupportedAction, "unsupported action: "+req.Action)
	}
}
