package types

// Canonical predicate vocabulary. These are the predicates the generic
// mapping engine targets; the set mirrors the uniform semantic agent schema
// (metadata, identity, capabilities, protocols, execution, deployment).
const (
	PredicateName        = "agent.metadata.name"
	PredicateVersion     = "agent.metadata.version"
	PredicateDescription = "agent.metadata.description"
	PredicateAuthor      = "agent.metadata.author"
	PredicateTag         = "agent.metadata.tag"

	PredicateRole      = "agent.identity.role"
	PredicateGoal      = "agent.identity.goal"
	PredicateBackstory = "agent.identity.backstory"

	PredicateCapability        = "agent.capability"
	PredicateTool              = "agent.capability.tool"
	PredicateSkill             = "agent.capability.skill"
	PredicateReasoningStrategy = "agent.capability.reasoning.strategy"
	PredicateMemoryArch        = "agent.capability.memory.architecture"

	PredicateProtocolMCP = "agent.protocol.mcp"
	PredicateProtocolA2A = "agent.protocol.a2a"

	PredicateLLMProvider    = "agent.execution.llm.provider"
	PredicateLLMModel       = "agent.execution.llm.model"
	PredicateLLMTemperature = "agent.execution.llm.temperature"
	PredicateMaxIterations  = "agent.execution.runtime.max_iterations"

	PredicateDeploymentContext = "agent.deployment.context"
)
