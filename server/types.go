// Package server implements the socket server and request router: a
// Unix-domain socket accepting newline-delimited JSON requests, decoded
// and dispatched to an ActionHandler implemented by the orchestrator
// package.
package server

import "encoding/json"

// Request is the wire envelope for one socket request.
// Shorthand top-level fields (sessionId, prompt, ...) are folded into
// Payload by Route so older shorthand-style callers keep working.
type Request struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`

	SessionID      *string         `json:"sessionId,omitempty"`
	FromSessionID  *string         `json:"fromSessionId,omitempty"`
	AgentType      *string         `json:"agentType,omitempty"`
	Prompt         *string         `json:"prompt,omitempty"`
	ParentSessionID *string        `json:"parentSessionId,omitempty"`
	WaitSeconds    *float64        `json:"waitSeconds,omitempty"`
	Signal         *string         `json:"signal,omitempty"`
}

// ErrorInfo is the error half of the response envelope.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the wire envelope for one socket response.
type Response struct {
	Ok     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

// StartAgentPayload is the start-agent request body.
type StartAgentPayload struct {
	AgentType       string          `json:"agentType"`
	Prompt          string          `json:"prompt"`
	ParentSessionID string          `json:"parentSessionId,omitempty"`
	AgentCount      int             `json:"agentCount,omitempty"`
	Options         StartAgentOpts  `json:"options,omitempty"`
}

// StartAgentOpts holds start-agent's nested options object.
type StartAgentOpts struct {
	Checkout bool `json:"checkout,omitempty"`
	Share    bool `json:"share,omitempty"`
	Detach   bool `json:"detach,omitempty"`
}

// CheckoutPayload is the checkout request body.
type CheckoutPayload struct {
	SessionID     string  `json:"sessionId,omitempty"`
	FromSessionID string  `json:"fromSessionId,omitempty"`
	WaitSeconds   float64 `json:"waitSeconds,omitempty"`
	WaitSecondsSet bool   `json:"-"`
}

// MessagePayload is the message request body.
type MessagePayload struct {
	SessionID      string  `json:"sessionId"`
	Prompt         string  `json:"prompt"`
	WaitSeconds    float64 `json:"waitSeconds,omitempty"`
	WaitSecondsSet bool    `json:"-"`
}

// InterruptPayload is the interrupt request body.
type InterruptPayload struct {
	SessionID string `json:"sessionId"`
	Signal    string `json:"signal,omitempty"`
}

// ActionHandler is implemented by the orchestrator; the Router validates
// shape and delegates business logic (authorization, depth, the checkout
// state machine, ...) to it.
type ActionHandler interface {
	Ping() (any, error)
	Status() (any, error)
	StartAgent(p StartAgentPayload) (any, error)
	Checkout(p CheckoutPayload) (any, error)
	Message(p MessagePayload) (any, error)
	Interrupt(p InterruptPayload) (any, error)
}
