package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imago-ai/imago/pkg/adapter"
	"github.com/imago-ai/imago/pkg/store"
	"github.com/imago-ai/imago/pkg/types"
)

func newOrchestrator(t *testing.T, persist Persister) *Orchestrator {
	t.Helper()
	registry, err := adapter.NewRegistry()
	require.NoError(t, err)
	return New(registry, persist, &Options{CacheSize: 2})
}

func crewaiNative(role string) map[string]any {
	return map[string]any{
		"role":      role,
		"goal":      "Uncover cutting-edge developments",
		"backstory": "Veteran analyst",
		"tools":     []any{"search"},
		"llm":       map[string]any{"model": "gpt-4o"},
	}
}

func TestTranslateCrewAIToAutoGen(t *testing.T) {
	o := newOrchestrator(t, nil)

	result, err := o.Translate(context.Background(), crewaiNative("Analyst"), types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)

	assert.False(t, result.CacheHit)
	assert.Equal(t, 1.0, result.Fidelity)
	assert.Equal(t, "Uncover cutting-edge developments", result.Native["system_message"])
	llmConfig := result.Native["llm_config"].(map[string]any)
	assert.Equal(t, "gpt-4o", llmConfig["model"])
}

func TestTranslateUnknownFramework(t *testing.T) {
	o := newOrchestrator(t, nil)

	_, err := o.Translate(context.Background(), crewaiNative("Analyst"), types.Framework("haystack"), types.FrameworkAutoGen)
	assert.ErrorIs(t, err, types.ErrAdapterNotFound)
}

func TestTranslateCacheHitSkipsRerun(t *testing.T) {
	o := newOrchestrator(t, nil)
	ctx := context.Background()
	native := crewaiNative("Analyst")

	first, err := o.Translate(ctx, native, types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := o.Translate(ctx, native, types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Native, second.Native)

	_, hits := o.CacheStats()
	assert.Equal(t, int64(1), hits)

	// A hit records nothing new in the matrix.
	entries := o.CompatibilityMatrix()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].SampleSize)
}

func TestTranslateCacheKeyIncludesTarget(t *testing.T) {
	o := newOrchestrator(t, nil)
	ctx := context.Background()
	native := crewaiNative("Analyst")

	_, err := o.Translate(ctx, native, types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)
	result, err := o.Translate(ctx, native, types.FrameworkCrewAI, types.FrameworkLangChain)
	require.NoError(t, err)
	assert.False(t, result.CacheHit)
}

func TestCacheEvictsOldestFirst(t *testing.T) {
	o := newOrchestrator(t, nil) // cache size 2
	ctx := context.Background()

	a := crewaiNative("A")
	b := crewaiNative("B")
	c := crewaiNative("C")

	_, err := o.Translate(ctx, a, types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)
	_, err = o.Translate(ctx, b, types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)
	// Third distinct entry evicts the first.
	_, err = o.Translate(ctx, c, types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)

	res, err := o.Translate(ctx, a, types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)
	assert.False(t, res.CacheHit)

	res, err = o.Translate(ctx, c, types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
}

func TestCompatibilityMatrixRunningAverage(t *testing.T) {
	o := newOrchestrator(t, nil)
	ctx := context.Background()

	// Full-fidelity document.
	_, err := o.Translate(ctx, crewaiNative("A"), types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)

	// Document with unmapped fields: fidelity below 1.0.
	degraded := crewaiNative("B")
	degraded["step_callback"] = "log"
	second, err := o.Translate(ctx, degraded, types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)
	require.Less(t, second.Fidelity, 1.0)

	entries := o.CompatibilityMatrix()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, types.FrameworkCrewAI, entry.Source)
	assert.Equal(t, types.FrameworkAutoGen, entry.Target)
	assert.Equal(t, int64(2), entry.SampleSize)
	assert.InDelta(t, (1.0+second.Fidelity)/2, entry.AvgFidelity, 1e-9)
}

func TestMorphPersistsCanonicalGraph(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	s, err := store.Open(context.Background(), store.NewMemoryLog(), &store.Options{
		Clock: func() time.Time { return now },
	})
	require.NoError(t, err)
	defer s.Close()

	o := newOrchestrator(t, s)
	native := crewaiNative("Analyst")
	native["step_callback"] = "log" // degrades fidelity

	g, err := o.Morph(context.Background(), "agent-x", native, types.FrameworkCrewAI)
	require.NoError(t, err)
	assert.Less(t, g.Fidelity, 1.0)

	snap, err := s.GetSnapshot(context.Background(), "agent-x", nil)
	require.NoError(t, err)
	assert.Equal(t, g.ID, snap.GraphID)

	objects := map[string]string{}
	for _, st := range snap.Statements {
		objects[st.Predicate] = st.Object
	}
	assert.Equal(t, "Analyst", objects[types.PredicateRole])
	assert.Equal(t, "gpt-4o", objects[types.PredicateLLMModel])
}

func TestMorphWithoutStore(t *testing.T) {
	o := newOrchestrator(t, nil)
	_, err := o.Morph(context.Background(), "agent-x", crewaiNative("Analyst"), types.FrameworkCrewAI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no store attached")
}

type recordingAlerter struct {
	subjects []string
}

func (r *recordingAlerter) Alert(subject, message string) error {
	r.subjects = append(r.subjects, subject)
	return nil
}

func TestLowFidelityTriggersAlert(t *testing.T) {
	registry, err := adapter.NewRegistry()
	require.NoError(t, err)
	alerter := &recordingAlerter{}
	o := New(registry, nil, &Options{Alerter: alerter, FidelityThreshold: 0.99})
	ctx := context.Background()

	// Full-fidelity translation stays quiet.
	_, err = o.Translate(ctx, crewaiNative("A"), types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)
	assert.Empty(t, alerter.subjects)

	degraded := crewaiNative("B")
	degraded["step_callback"] = "log"
	result, err := o.Translate(ctx, degraded, types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)
	require.Less(t, result.Fidelity, 0.99)
	require.Len(t, alerter.subjects, 1)
	assert.Contains(t, alerter.subjects[0], "low fidelity")

	// A cache hit does not re-alert.
	_, err = o.Translate(ctx, degraded, types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)
	assert.Len(t, alerter.subjects, 1)
}

func TestValidateRoutesToAdapter(t *testing.T) {
	o := newOrchestrator(t, nil)

	result, err := o.Validate(context.Background(), map[string]any{"goal": "g"}, types.FrameworkCrewAI)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "role")

	result, err = o.Validate(context.Background(), crewaiNative("Analyst"), types.FrameworkCrewAI)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
