package store

import (
	"context"
	"sync"

	"github.com/imago-ai/imago/pkg/types"
)

// MemoryLog is an in-process RecordLog. It keeps deep copies of appended
// graphs so later arena mutations never leak into the log.
type MemoryLog struct {
	mu            sync.Mutex
	graphs        []*types.Graph
	supersessions []types.Supersession
}

// NewMemoryLog returns an empty in-memory record log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) AppendGraph(ctx context.Context, g *types.Graph) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.graphs = append(l.graphs, cloneGraph(g))
	return nil
}

func (l *MemoryLog) AppendSupersession(ctx context.Context, s types.Supersession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.supersessions = append(l.supersessions, s)
	return nil
}

func (l *MemoryLog) ReplayGraphs(ctx context.Context, fn func(*types.Graph) error) error {
	l.mu.Lock()
	graphs := make([]*types.Graph, len(l.graphs))
	for i, g := range l.graphs {
		graphs[i] = cloneGraph(g)
	}
	l.mu.Unlock()

	for _, g := range graphs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(g); err != nil {
			return err
		}
	}
	return nil
}

func (l *MemoryLog) ReplaySupersessions(ctx context.Context, fn func(types.Supersession) error) error {
	l.mu.Lock()
	events := make([]types.Supersession, len(l.supersessions))
	copy(events, l.supersessions)
	l.mu.Unlock()

	for _, s := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (l *MemoryLog) RemoveGraphs(ctx context.Context, graphIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	drop := make(map[string]bool, len(graphIDs))
	for _, id := range graphIDs {
		drop[id] = true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.graphs[:0]
	for _, g := range l.graphs {
		if !drop[g.ID] {
			kept = append(kept, g)
		}
	}
	l.graphs = kept
	return nil
}

func (l *MemoryLog) Close() error {
	return nil
}

// cloneGraph copies a graph deeply enough that the store's supersession
// writes (transaction close, superseded-by) never alias log state.
func cloneGraph(g *types.Graph) *types.Graph {
	c := *g
	c.Statements = make([]types.Statement, len(g.Statements))
	copy(c.Statements, g.Statements)
	if g.Coordinates.Valid.To != nil {
		t := *g.Coordinates.Valid.To
		c.Coordinates.Valid.To = &t
	}
	if g.Coordinates.Transaction.To != nil {
		t := *g.Coordinates.Transaction.To
		c.Coordinates.Transaction.To = &t
	}
	if len(g.Lineage.MergedFrom) > 0 {
		c.Lineage.MergedFrom = append([]string(nil), g.Lineage.MergedFrom...)
	}
	return &c
}
