package imago_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imago-ai/imago"
	"github.com/imago-ai/imago/pkg/config"
	"github.com/imago-ai/imago/pkg/store"
	"github.com/imago-ai/imago/pkg/types"
)

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *tickingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClient(t *testing.T, clock *tickingClock) *imago.Client {
	t.Helper()
	client, err := imago.New(context.Background(), &config.Config{}, &imago.Options{
		Clock:     clock.Now,
		RecordLog: store.NewMemoryLog(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func crewaiAnalyst() map[string]any {
	return map[string]any{
		"role":      "Research Analyst",
		"goal":      "Track model releases",
		"backstory": "Veteran analyst",
		"tools":     []any{"search", "scraper"},
		"llm":       map[string]any{"model": "gpt-4o", "temperature": 0.7},
	}
}

func TestMorphThenReadThenCorrect(t *testing.T) {
	clock := &tickingClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	client := newClient(t, clock)
	ctx := context.Background()

	g, err := client.Morph(ctx, "analyst", crewaiAnalyst(), types.FrameworkCrewAI)
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Lineage.Version)

	firstRead := clock.Now()
	snap, err := client.GetSnapshot(ctx, "analyst", nil)
	require.NoError(t, err)
	assert.Equal(t, g.ID, snap.GraphID)

	clock.Advance(time.Hour)
	corrected := []types.Statement{
		{Subject: "analyst", Predicate: types.PredicateRole, Object: "Senior Research Analyst"},
		{Subject: "analyst", Predicate: types.PredicateLLMModel, Object: "gpt-4o"},
	}
	g2, err := client.RecordCorrection(ctx, "analyst", corrected, types.CorrectionUpdate, "title was wrong at ingest", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), g2.Lineage.Version)
	assert.Equal(t, g.ID, g2.Lineage.Supersedes)

	// The current read sees the correction.
	snap, err = client.GetSnapshot(ctx, "analyst", nil)
	require.NoError(t, err)
	assert.Equal(t, g2.ID, snap.GraphID)

	// A read pinned to the pre-correction transaction time still sees the
	// original, exactly as it was.
	snap, err = client.GetSnapshot(ctx, "analyst", &store.SnapshotQuery{RecordedAt: &firstRead})
	require.NoError(t, err)
	assert.Equal(t, g.ID, snap.GraphID)

	history, err := client.GetHistory(ctx, "analyst")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(1), history[0].Version)
	assert.Equal(t, types.CorrectionUpdate, history[1].Correction)
}

func TestQueryEngineOverClientStore(t *testing.T) {
	clock := &tickingClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	client := newClient(t, clock)
	ctx := context.Background()

	_, err := client.Morph(ctx, "analyst", crewaiAnalyst(), types.FrameworkCrewAI)
	require.NoError(t, err)
	afterFirst := clock.Now()

	clock.Advance(time.Hour)
	stmts := []types.Statement{
		{Subject: "analyst", Predicate: types.PredicateRole, Object: "Lead Analyst"},
	}
	g2, err := client.CreateSnapshot(ctx, "analyst", stmts, nil)
	require.NoError(t, err)

	engine := client.Query()

	asOf, err := engine.AsOf(ctx, "analyst", afterFirst)
	require.NoError(t, err)
	require.Len(t, asOf, 1)
	assert.Equal(t, int64(1), asOf[0].Lineage.Version)

	current, err := engine.Current(ctx, "analyst")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, g2.ID, current[0].ID)

	both, err := engine.Between(ctx, "analyst", types.TransactionTime, afterFirst.Add(-time.Hour), clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, both, 2)
}

func TestConcurrentCommitsMergeDisjointFields(t *testing.T) {
	clock := &tickingClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	client := newClient(t, clock)
	ctx := context.Background()

	base := []types.Statement{
		{Subject: "analyst", Predicate: types.PredicateRole, Object: "Analyst"},
	}
	_, err := client.CreateSnapshot(ctx, "analyst", base, nil)
	require.NoError(t, err)

	snap, err := client.GetSnapshot(ctx, "analyst", nil)
	require.NoError(t, err)

	// Writer A lands first.
	clock.Advance(time.Minute)
	winner := []types.Statement{
		{Subject: "analyst", Predicate: types.PredicateGoal, Object: "Track releases"},
	}
	_, err = client.Commit(ctx, "analyst", winner, snap)
	require.NoError(t, err)

	// Writer B read the same base but touches a different field, so the
	// conflict resolves structurally instead of failing.
	clock.Advance(time.Minute)
	loser := []types.Statement{
		{Subject: "analyst", Predicate: types.PredicateBackstory, Object: "Joined in 2021"},
	}
	merged, err := client.Commit(ctx, "analyst", loser, snap)
	require.NoError(t, err)
	assert.Len(t, merged.Lineage.MergedFrom, 2)

	final, err := client.GetSnapshot(ctx, "analyst", nil)
	require.NoError(t, err)
	predicates := map[string]string{}
	for _, st := range final.Statements {
		predicates[st.Predicate] = st.Object
	}
	assert.Equal(t, "Track releases", predicates[types.PredicateGoal])
	assert.Equal(t, "Joined in 2021", predicates[types.PredicateBackstory])
}

func TestTranslateAndCompatibilityThroughClient(t *testing.T) {
	clock := &tickingClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	client := newClient(t, clock)
	ctx := context.Background()

	result, err := client.Translate(ctx, crewaiAnalyst(), types.FrameworkCrewAI, types.FrameworkAutoGen)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Fidelity)
	assert.Equal(t, "Track model releases", result.Native["system_message"])

	entries := client.CompatibilityMatrix()
	require.Len(t, entries, 1)
	assert.Equal(t, types.FrameworkCrewAI, entries[0].Source)
	assert.Equal(t, types.FrameworkAutoGen, entries[0].Target)
}

func TestResolveSpecificationFallsBack(t *testing.T) {
	clock := &tickingClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	client := newClient(t, clock)

	res, err := client.ResolveSpecification(context.Background(), "a2a")
	require.NoError(t, err)
	assert.True(t, res.IsFallback)
	assert.Equal(t, "a2a", res.Protocol)
}

func TestReplayAcrossClients(t *testing.T) {
	clock := &tickingClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	log := store.NewMemoryLog()
	ctx := context.Background()

	first, err := imago.New(ctx, &config.Config{}, &imago.Options{Clock: clock.Now, RecordLog: log})
	require.NoError(t, err)

	_, err = first.Morph(ctx, "analyst", crewaiAnalyst(), types.FrameworkCrewAI)
	require.NoError(t, err)
	want, err := first.GetSnapshot(ctx, "analyst", nil)
	require.NoError(t, err)

	// A second client over the same record log rebuilds identical state.
	second, err := imago.New(ctx, &config.Config{}, &imago.Options{Clock: clock.Now, RecordLog: log})
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetSnapshot(ctx, "analyst", nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
