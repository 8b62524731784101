package types

// Framework identifies an agent-framework schema. Adapters dispatch over
// this tag; each variant holds a declarative field-mapping table consumed by
// one generic mapping engine, so adding a framework means adding a table,
// not a code path.
type Framework string

const (
	FrameworkCrewAI        Framework = "crewai"
	FrameworkLangChain     Framework = "langchain"
	FrameworkAutoGen       Framework = "autogen"
	FrameworkSemanticAgent Framework = "semantic_agent"
	FrameworkMCP           Framework = "mcp"
)

// Valid reports whether the framework tag is non-empty.
func (f Framework) Valid() bool {
	return f != ""
}

// Extension is one framework-specific key/value pair that has no canonical
// predicate yet. Extensions ride along with the canonical form so that a
// round trip back to the source framework loses nothing.
type Extension struct {
	Framework Framework `json:"framework"`
	Key       string    `json:"key"`
	Value     any       `json:"value"`
}

// CanonicalAgent is the adapter-facing view of an agent definition: the
// protocol-agnostic statement set plus the extension list that preserves
// round-trip fidelity.
type CanonicalAgent struct {
	AgentID    string      `json:"agent_id"`
	Statements []Statement `json:"statements"`
	Extensions []Extension `json:"extensions,omitempty"`
	// Fidelity is mappedFields / totalFields as reported by the adapter
	// that produced this canonical form.
	Fidelity float64           `json:"fidelity"`
	Warnings []FidelityWarning `json:"warnings,omitempty"`
}

// Extension returns the extension recorded for key under framework, if any.
func (c *CanonicalAgent) Extension(framework Framework, key string) (Extension, bool) {
	for _, ext := range c.Extensions {
		if ext.Framework == framework && ext.Key == key {
			return ext, true
		}
	}
	return Extension{}, false
}

// Object returns the object of the first statement matching predicate, or
// "" when the canonical form carries no such fact.
func (c *CanonicalAgent) Object(predicate string) string {
	for _, st := range c.Statements {
		if st.Predicate == predicate {
			return st.Object
		}
	}
	return ""
}

// ValidationResult reports whether a native document satisfies its
// framework's schema, with the individual failures when it does not.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}
