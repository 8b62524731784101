package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imago-ai/imago/pkg/types"
)

func crewaiNative() map[string]any {
	return map[string]any{
		"role":      "Senior Research Analyst",
		"goal":      "Uncover cutting-edge developments",
		"backstory": "Veteran analyst at a think tank",
		"tools":     []any{"search", "scrape"},
		"llm": map[string]any{
			"provider":    "openai",
			"model":       "gpt-4o",
			"temperature": 0.7,
		},
	}
}

func TestRegistryLoadsEmbeddedTables(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	want := []types.Framework{
		types.FrameworkAutoGen,
		types.FrameworkCrewAI,
		types.FrameworkLangChain,
		types.FrameworkMCP,
		types.FrameworkSemanticAgent,
	}
	assert.Equal(t, want, r.Frameworks())

	_, err = r.Get(types.Framework("haystack"))
	assert.ErrorIs(t, err, types.ErrAdapterNotFound)
}

func TestToCanonicalMapsKnownFields(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	a, err := r.Get(types.FrameworkCrewAI)
	require.NoError(t, err)

	agent, err := a.ToCanonical(context.Background(), "agent-x", crewaiNative())
	require.NoError(t, err)

	assert.Equal(t, "Senior Research Analyst", agent.Object(types.PredicateRole))
	assert.Equal(t, "gpt-4o", agent.Object(types.PredicateLLMModel))
	assert.Equal(t, "0.7", agent.Object(types.PredicateLLMTemperature))

	var tools []string
	for _, st := range agent.Statements {
		assert.Equal(t, "agent-x", st.Subject)
		if st.Predicate == types.PredicateTool {
			tools = append(tools, st.Object)
		}
	}
	assert.ElementsMatch(t, []string{"search", "scrape"}, tools)

	// Every field mapped: full fidelity, no extensions, no warnings.
	assert.Equal(t, 1.0, agent.Fidelity)
	assert.Empty(t, agent.Extensions)
	assert.Empty(t, agent.Warnings)
}

func TestToCanonicalPreservesUnmappedFields(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	a, err := r.Get(types.FrameworkCrewAI)
	require.NoError(t, err)

	native := crewaiNative()
	native["step_callback"] = "log_step"
	native["cache"] = true

	agent, err := a.ToCanonical(context.Background(), "agent-x", native)
	require.NoError(t, err)

	assert.Less(t, agent.Fidelity, 1.0)
	ext, ok := agent.Extension(types.FrameworkCrewAI, "step_callback")
	require.True(t, ok)
	assert.Equal(t, "log_step", ext.Value)
	_, ok = agent.Extension(types.FrameworkCrewAI, "cache")
	assert.True(t, ok)
	require.Len(t, agent.Warnings, 2)
	assert.Contains(t, agent.Warnings[0].Reason, "no canonical predicate")
}

func TestRoundTripRestoresMappedFieldsAndExtensions(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	a, err := r.Get(types.FrameworkCrewAI)
	require.NoError(t, err)
	ctx := context.Background()

	native := crewaiNative()
	native["step_callback"] = "log_step"

	agent, err := a.ToCanonical(ctx, "agent-x", native)
	require.NoError(t, err)
	restored, warnings, err := a.FromCanonical(ctx, agent)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "Senior Research Analyst", restored["role"])
	assert.Equal(t, "Uncover cutting-edge developments", restored["goal"])
	assert.Equal(t, "Veteran analyst at a think tank", restored["backstory"])
	assert.Equal(t, []any{"search", "scrape"}, restored["tools"])
	llm := restored["llm"].(map[string]any)
	assert.Equal(t, "gpt-4o", llm["model"])
	assert.Equal(t, 0.7, llm["temperature"])

	// The unmapped field came back via its extension.
	assert.Equal(t, "log_step", restored["step_callback"])

	// Defaults filled only what the canonical form did not carry.
	assert.Equal(t, false, restored["verbose"])
	assert.Equal(t, false, restored["allow_delegation"])
}

func TestFromCanonicalForeignExtensionDegrades(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	crew, err := r.Get(types.FrameworkCrewAI)
	require.NoError(t, err)
	autogen, err := r.Get(types.FrameworkAutoGen)
	require.NoError(t, err)
	ctx := context.Background()

	native := crewaiNative()
	native["step_callback"] = "log_step"
	agent, err := crew.ToCanonical(ctx, "agent-x", native)
	require.NoError(t, err)

	restored, warnings, err := autogen.FromCanonical(ctx, agent)
	require.NoError(t, err)

	// The crewai extension cannot land in an autogen document: warning, not
	// failure, and the document is still produced.
	require.Len(t, warnings, 1)
	assert.Equal(t, "step_callback", warnings[0].Field)
	assert.NotContains(t, restored, "step_callback")
	llmConfig := restored["llm_config"].(map[string]any)
	assert.Equal(t, "gpt-4o", llmConfig["model"])
	assert.Equal(t, "NEVER", restored["human_input_mode"])
}

func TestValidateNative(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	a, err := r.Get(types.FrameworkCrewAI)
	require.NoError(t, err)

	tests := []struct {
		name    string
		native  map[string]any
		valid   bool
		errPart string
	}{
		{
			name:   "complete document",
			native: crewaiNative(),
			valid:  true,
		},
		{
			name:    "missing required role",
			native:  map[string]any{"goal": "g"},
			valid:   false,
			errPart: `missing required field "role"`,
		},
		{
			name:    "tools not a list",
			native:  map[string]any{"role": "r", "goal": "g", "tools": "search"},
			valid:   false,
			errPart: `must be a list`,
		},
		{
			name:    "empty required field",
			native:  map[string]any{"role": "", "goal": "g"},
			valid:   false,
			errPart: "is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := a.ValidateNative(tt.native)
			assert.Equal(t, tt.valid, result.Valid)
			if tt.errPart != "" {
				require.NotEmpty(t, result.Errors)
				assert.Contains(t, result.Errors[0], tt.errPart)
			}
		})
	}
}

func TestSemanticAgentNearLossless(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	a, err := r.Get(types.FrameworkSemanticAgent)
	require.NoError(t, err)

	native := map[string]any{
		"metadata": map[string]any{
			"name":    "researcher",
			"version": "1.2.0",
			"tags":    []any{"research", "analysis"},
		},
		"identity": map[string]any{
			"role": "Researcher",
			"goal": "Find things out",
		},
		"capabilities": map[string]any{
			"tools":  []any{"search"},
			"skills": []any{"summarization"},
		},
		"reasoning": map[string]any{"strategy": "react"},
		"execution": map[string]any{
			"llm": map[string]any{"provider": "anthropic", "model": "claude-sonnet-4"},
		},
	}

	agent, err := a.ToCanonical(context.Background(), "agent-x", native)
	require.NoError(t, err)
	assert.Equal(t, 1.0, agent.Fidelity)
	assert.Equal(t, "react", agent.Object(types.PredicateReasoningStrategy))
	assert.Equal(t, "1.2.0", agent.Object(types.PredicateVersion))
}

func TestParseMappingTableRejectsIncomplete(t *testing.T) {
	_, err := ParseMappingTable([]byte("fields:\n  - path: role\n    predicate: agent.identity.role\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "framework")

	_, err = ParseMappingTable([]byte("framework: crewai\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no field mappings")

	_, err = ParseMappingTable([]byte("framework: crewai\nfields:\n  - path: role\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing path or predicate")
}

func TestMappingTableExternalLoad(t *testing.T) {
	raw := []byte(`
framework: haystack
fields:
  - path: name
    predicate: agent.metadata.name
    required: true
  - path: pipeline.model
    predicate: agent.execution.llm.model
`)
	table, err := ParseMappingTable(raw)
	require.NoError(t, err)

	r, err := NewRegistry()
	require.NoError(t, err)
	r.Register(NewMappingAdapter(table))

	a, err := r.Get(types.Framework("haystack"))
	require.NoError(t, err)
	agent, err := a.ToCanonical(context.Background(), "agent-x", map[string]any{
		"name":     "qa",
		"pipeline": map[string]any{"model": "gpt-4o-mini"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, agent.Fidelity)
	assert.Equal(t, "gpt-4o-mini", agent.Object(types.PredicateLLMModel))
}
