package core

import (
	"context"

	"github.com/google/uuid"
)

// AgentIdentity is the immutable identity of a registered agent: a stable
// UUID other components address it by, plus the human-readable capability
// name and description used during registration. Created at process startup,
// never mutated afterwards.
type AgentIdentity struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// Request is the invocation envelope delivered to an agent. Payload keys are
// fixed per agent contract (e.g. the case-history agent expects "query").
type Request struct {
	// Correlation uniquely matches this request to its eventual response.
	Correlation uuid.UUID `json:"correlation_id"`
	// Target is the agent identifier the payload is addressed to.
	Target uuid.UUID `json:"target_agent_id"`
	// Payload maps string keys to primitive or structured values.
	Payload map[string]any `json:"payload"`
	// Token is the bearer credential attached to the outbound call. It is
	// transport metadata, not part of the agent payload.
	Token string `json:"-"`
}

// Response is the envelope an agent invocation resolves to. Exactly one of
// Payload or Err is meaningful; Correlation always echoes the request's.
type Response struct {
	Correlation uuid.UUID `json:"correlation_id"`
	// Payload is the success result: a plain string or a JSON-encoded record,
	// depending on the agent's contract.
	Payload string `json:"payload,omitempty"`
	// Err carries the agent handler's failure detail when the handler raised.
	Err string `json:"error,omitempty"`
}

// Handler is a bound unit of agent work: given the invocation payload it
// produces the response payload or an error. Handlers must respect context
// cancellation.
type Handler func(ctx context.Context, req Request) (string, error)

// NewCorrelationID generates a fresh correlation token for a request.
func NewCorrelationID() uuid.UUID { return uuid.New() }
