package types

// contextKey keeps request-scoped values collision-free.
type contextKey string

const (
	// ContextKeyAgentID carries the agent identifier a request operates on.
	ContextKeyAgentID contextKey = "agent_id"
	// ContextKeyRequestSource carries where a request originated (cli, http).
	ContextKeyRequestSource contextKey = "request_source"
)
