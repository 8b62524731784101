package index

import (
	"sort"
	"sync"
	"time"

	"github.com/imago-ai/imago/pkg/types"
)

// entry is one indexed graph version. The index stores coordinates by value
// so lookups never touch the arena.
type entry struct {
	graphID string
	agentID string
	coords  types.Coordinates
}

// TemporalIndex maintains two interval indexes (valid time, transaction
// time) plus a current-state lookup keyed by agent identifier.
//
// The index is derived state: it is rebuilt from the append-only record and
// supersession logs on startup and is never the source of truth. All methods
// are safe for concurrent use.
type TemporalIndex struct {
	mu sync.RWMutex

	// byAgent holds each agent's entries ordered by transaction start, which
	// is also version order since versions are appended monotonically.
	byAgent map[string][]*entry
	// current maps agent id to the graph with the open transaction interval.
	current map[string]string
	// byGraph resolves a graph id to its entry for interval closure.
	byGraph map[string]*entry
}

// New returns an empty index.
func New() *TemporalIndex {
	return &TemporalIndex{
		byAgent: make(map[string][]*entry),
		current: make(map[string]string),
		byGraph: make(map[string]*entry),
	}
}

// Insert registers a graph version. A graph with an open transaction
// interval becomes its agent's current version.
func (ix *TemporalIndex) Insert(g *types.Graph) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.insertLocked(g)
}

func (ix *TemporalIndex) insertLocked(g *types.Graph) {
	e := &entry{graphID: g.ID, agentID: g.AgentID, coords: g.Coordinates}
	entries := ix.byAgent[g.AgentID]
	pos := sort.Search(len(entries), func(i int) bool {
		return entries[i].coords.Transaction.From.After(e.coords.Transaction.From)
	})
	entries = append(entries, nil)
	copy(entries[pos+1:], entries[pos:])
	entries[pos] = e
	ix.byAgent[g.AgentID] = entries
	ix.byGraph[g.ID] = e

	if g.Coordinates.IsCurrent() {
		ix.current[g.AgentID] = g.ID
	}
}

// CloseTransaction records that a graph's transaction interval was closed at
// the given instant, removing it from the current-state lookup. Log replay
// only; live supersessions go through Supersede so that a concurrent reader
// never sees the close without its replacement.
func (ix *TemporalIndex) CloseTransaction(graphID string, at time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.closeTransactionLocked(graphID, at)
}

func (ix *TemporalIndex) closeTransactionLocked(graphID string, at time.Time) {
	e, ok := ix.byGraph[graphID]
	if !ok {
		return
	}
	t := at
	e.coords.Transaction.To = &t
	if ix.current[e.agentID] == graphID {
		delete(ix.current, e.agentID)
	}
}

// Supersede atomically closes one graph's transaction interval and inserts
// its replacements under a single lock acquisition. A concurrent scan sees
// either the state before the supersession or the state after it, never a
// window where the old graph is closed and the new one absent.
func (ix *TemporalIndex) Supersede(oldID string, at time.Time, replacements ...*types.Graph) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.closeTransactionLocked(oldID, at)
	for _, g := range replacements {
		ix.insertLocked(g)
	}
}

// Remove drops a graph from all indexes. Used by compaction only.
func (ix *TemporalIndex) Remove(graphID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e, ok := ix.byGraph[graphID]
	if !ok {
		return
	}
	delete(ix.byGraph, graphID)
	entries := ix.byAgent[e.agentID]
	for i, cand := range entries {
		if cand.graphID == graphID {
			ix.byAgent[e.agentID] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(ix.byAgent[e.agentID]) == 0 {
		delete(ix.byAgent, e.agentID)
	}
	if ix.current[e.agentID] == graphID {
		delete(ix.current, e.agentID)
	}
}

// Current returns the graph id holding the open transaction interval for an
// agent, if one exists.
func (ix *TemporalIndex) Current(agentID string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	id, ok := ix.current[agentID]
	return id, ok
}

// AgentGraphIDs returns an agent's graph ids in transaction order.
func (ix *TemporalIndex) AgentGraphIDs(agentID string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entries := ix.byAgent[agentID]
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.graphID
	}
	return ids
}

// HasAgent reports whether any version, current or historical, exists for
// the agent.
func (ix *TemporalIndex) HasAgent(agentID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byAgent[agentID]) > 0
}

// AsOf returns the agent's graph ids whose transaction intervals contain
// recordedAt.
func (ix *TemporalIndex) AsOf(agentID string, recordedAt time.Time) []string {
	return ix.scan(agentID, func(c types.Coordinates) bool {
		return c.Transaction.Contains(recordedAt)
	})
}

// ValidAt returns the agent's graph ids whose valid intervals contain
// validAt.
func (ix *TemporalIndex) ValidAt(agentID string, validAt time.Time) []string {
	return ix.scan(agentID, func(c types.Coordinates) bool {
		return c.Valid.Contains(validAt)
	})
}

// Between returns the agent's graph ids whose interval on the requested
// dimension overlaps [from, to).
func (ix *TemporalIndex) Between(agentID string, dim types.Dimension, from, to time.Time) []string {
	return ix.scan(agentID, func(c types.Coordinates) bool {
		return c.On(dim).Overlaps(from, to)
	})
}

// At returns the agent's graph ids matching the combined bi-temporal point
// query: first narrowed to what was knowable at recordedAt, then to what was
// true at validAt within that knowledge.
func (ix *TemporalIndex) At(agentID string, validAt, recordedAt time.Time) []string {
	return ix.scan(agentID, func(c types.Coordinates) bool {
		return c.Transaction.Contains(recordedAt) && c.Valid.Contains(validAt)
	})
}

func (ix *TemporalIndex) scan(agentID string, keep func(types.Coordinates) bool) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var ids []string
	for _, e := range ix.byAgent[agentID] {
		if keep(e.coords) {
			ids = append(ids, e.graphID)
		}
	}
	return ids
}

// Agents returns every indexed agent identifier.
func (ix *TemporalIndex) Agents() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	agents := make([]string, 0, len(ix.byAgent))
	for id := range ix.byAgent {
		agents = append(agents, id)
	}
	sort.Strings(agents)
	return agents
}

// Len returns the number of indexed graph versions.
func (ix *TemporalIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byGraph)
}
