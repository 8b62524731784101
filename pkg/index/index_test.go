package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imago-ai/imago/pkg/types"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func graphAt(id, agentID string, validFrom, txFrom time.Time) *types.Graph {
	return &types.Graph{
		ID:      id,
		AgentID: agentID,
		Coordinates: types.Coordinates{
			Valid:       types.OpenInterval(validFrom),
			Transaction: types.OpenInterval(txFrom),
		},
	}
}

func TestCurrentTracksOpenTransaction(t *testing.T) {
	ix := New()

	g1 := graphAt("g1", "a1", ts("2024-01-01T00:00:00Z"), ts("2024-01-01T00:00:00Z"))
	ix.Insert(g1)

	id, ok := ix.Current("a1")
	require.True(t, ok)
	assert.Equal(t, "g1", id)

	// Supersession closes g1 and opens g2.
	ix.CloseTransaction("g1", ts("2024-02-01T00:00:00Z"))
	g2 := graphAt("g2", "a1", ts("2024-02-01T00:00:00Z"), ts("2024-02-01T00:00:00Z"))
	ix.Insert(g2)

	id, ok = ix.Current("a1")
	require.True(t, ok)
	assert.Equal(t, "g2", id)
}

func TestAsOfUsesTransactionDimension(t *testing.T) {
	ix := New()

	ix.Insert(graphAt("g1", "a1", ts("2024-01-01T00:00:00Z"), ts("2024-01-01T00:00:00Z")))
	ix.CloseTransaction("g1", ts("2024-03-01T00:00:00Z"))
	ix.Insert(graphAt("g2", "a1", ts("2024-03-01T00:00:00Z"), ts("2024-03-01T00:00:00Z")))

	assert.Equal(t, []string{"g1"}, ix.AsOf("a1", ts("2024-02-01T00:00:00Z")))
	assert.Equal(t, []string{"g2"}, ix.AsOf("a1", ts("2024-04-01T00:00:00Z")))
	assert.Empty(t, ix.AsOf("a1", ts("2023-12-01T00:00:00Z")))
}

func TestValidAtIsIndependentOfTransactionTime(t *testing.T) {
	ix := New()

	// Recorded in March, but valid since January.
	ix.Insert(graphAt("g1", "a1", ts("2024-01-01T00:00:00Z"), ts("2024-03-01T00:00:00Z")))

	assert.Equal(t, []string{"g1"}, ix.ValidAt("a1", ts("2024-02-01T00:00:00Z")))
	assert.Empty(t, ix.AsOf("a1", ts("2024-02-01T00:00:00Z")))
}

func TestBetweenOverlap(t *testing.T) {
	ix := New()

	g := graphAt("g1", "a1", ts("2024-01-10T00:00:00Z"), ts("2024-01-10T00:00:00Z"))
	to := ts("2024-01-20T00:00:00Z")
	g.Coordinates.Valid.To = &to
	ix.Insert(g)

	assert.Equal(t, []string{"g1"}, ix.Between("a1", types.ValidTime, ts("2024-01-15T00:00:00Z"), ts("2024-02-01T00:00:00Z")))
	assert.Empty(t, ix.Between("a1", types.ValidTime, ts("2024-01-20T00:00:00Z"), ts("2024-02-01T00:00:00Z")))
	assert.Equal(t, []string{"g1"}, ix.Between("a1", types.TransactionTime, ts("2024-01-01T00:00:00Z"), ts("2024-01-11T00:00:00Z")))
}

func TestCombinedPointQuery(t *testing.T) {
	ix := New()

	// g1 recorded Jan 1, superseded Feb 1 by g2 which corrects the same
	// valid period.
	ix.Insert(graphAt("g1", "a1", ts("2024-01-01T00:00:00Z"), ts("2024-01-01T00:00:00Z")))
	ix.CloseTransaction("g1", ts("2024-02-01T00:00:00Z"))
	ix.Insert(graphAt("g2", "a1", ts("2024-01-01T00:00:00Z"), ts("2024-02-01T00:00:00Z")))

	// What we believed in mid January about mid January: g1.
	assert.Equal(t, []string{"g1"}, ix.At("a1", ts("2024-01-15T00:00:00Z"), ts("2024-01-15T00:00:00Z")))
	// What we believe now about mid January: g2.
	assert.Equal(t, []string{"g2"}, ix.At("a1", ts("2024-01-15T00:00:00Z"), ts("2024-03-01T00:00:00Z")))
}

func TestSupersedeClosesAndInsertsTogether(t *testing.T) {
	ix := New()
	at := ts("2024-02-01T00:00:00Z")

	ix.Insert(graphAt("g1", "a1", ts("2024-01-01T00:00:00Z"), ts("2024-01-01T00:00:00Z")))
	ix.Supersede("g1", at, graphAt("g2", "a1", ts("2024-02-01T00:00:00Z"), at))

	id, ok := ix.Current("a1")
	require.True(t, ok)
	assert.Equal(t, "g2", id)

	// The closure took effect: at the supersession instant only the
	// successor is believed.
	assert.Equal(t, []string{"g2"}, ix.AsOf("a1", at))
	assert.Equal(t, []string{"g1"}, ix.AsOf("a1", ts("2024-01-15T00:00:00Z")))
}

func TestSupersedeWithSplitFragments(t *testing.T) {
	ix := New()
	at := ts("2024-03-01T00:00:00Z")

	ix.Insert(graphAt("g1", "a1", ts("2024-01-01T00:00:00Z"), ts("2024-01-01T00:00:00Z")))

	pre := graphAt("pre", "a1", ts("2024-01-01T00:00:00Z"), at)
	split := ts("2024-02-01T00:00:00Z")
	pre.Coordinates.Valid.To = &split
	post := graphAt("post", "a1", split, at)
	ix.Supersede("g1", at, pre, post)

	// Insertion order decides the current id when both replacements are
	// open: the last inserted wins.
	id, ok := ix.Current("a1")
	require.True(t, ok)
	assert.Equal(t, "post", id)
	assert.Equal(t, 3, ix.Len())
	// Pinned before the supersession the original is still believed; from
	// the supersession instant the pre fragment covers that valid period.
	assert.Equal(t, []string{"g1"}, ix.At("a1", ts("2024-01-15T00:00:00Z"), ts("2024-02-15T00:00:00Z")))
	assert.Equal(t, []string{"pre"}, ix.At("a1", ts("2024-01-15T00:00:00Z"), at))
}

func TestRemove(t *testing.T) {
	ix := New()
	ix.Insert(graphAt("g1", "a1", ts("2024-01-01T00:00:00Z"), ts("2024-01-01T00:00:00Z")))
	require.Equal(t, 1, ix.Len())

	ix.Remove("g1")
	assert.Equal(t, 0, ix.Len())
	assert.False(t, ix.HasAgent("a1"))
	_, ok := ix.Current("a1")
	assert.False(t, ok)
}

func TestAgents(t *testing.T) {
	ix := New()
	ix.Insert(graphAt("g1", "b", ts("2024-01-01T00:00:00Z"), ts("2024-01-01T00:00:00Z")))
	ix.Insert(graphAt("g2", "a", ts("2024-01-01T00:00:00Z"), ts("2024-01-01T00:00:00Z")))

	assert.Equal(t, []string{"a", "b"}, ix.Agents())
}
