package query

import (
	"context"
	"sort"
	"time"

	"github.com/imago-ai/imago/pkg/types"
)

// GraphSource supplies the live graph versions of an agent. The store
// satisfies it; tests substitute fixtures.
type GraphSource interface {
	Graphs(agentID string) []*types.Graph
	Agents() []string
}

// Engine evaluates temporal queries over immutable graph records. Every
// operator is read-only: results are views and merges are materialized as
// fresh values, never written back.
type Engine struct {
	source GraphSource
	clock  func() time.Time
}

// NewEngine returns an engine over the given source. A nil clock defaults to
// time.Now.
func NewEngine(source GraphSource, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{source: source, clock: clock}
}

// AsOf returns the graphs believed at recordedAt: those whose transaction
// intervals contain the instant. This is time travel on the transaction
// dimension and deliberately ignores valid time.
func (e *Engine) AsOf(ctx context.Context, agentID string, recordedAt time.Time) ([]*types.Graph, error) {
	return e.filter(ctx, agentID, func(c types.Coordinates) bool {
		return c.Transaction.Contains(recordedAt.UTC())
	})
}

// ValidAt returns the graphs describing reality at validAt, regardless of
// when they were recorded. Time travel on the valid dimension.
func (e *Engine) ValidAt(ctx context.Context, agentID string, validAt time.Time) ([]*types.Graph, error) {
	return e.filter(ctx, agentID, func(c types.Coordinates) bool {
		return c.Valid.Contains(validAt.UTC())
	})
}

// Between returns the graphs whose interval on the requested dimension
// overlaps the half-open range [from, to).
func (e *Engine) Between(ctx context.Context, agentID string, dim types.Dimension, from, to time.Time) ([]*types.Graph, error) {
	if !from.Before(to) {
		return nil, &types.ConstraintError{
			Kind:    types.ConstraintMalformedInterval,
			Message: "range start must precede range end",
		}
	}
	return e.filter(ctx, agentID, func(c types.Coordinates) bool {
		return c.On(dim).Overlaps(from.UTC(), to.UTC())
	})
}

// At is the fully general bi-temporal point query: what did we believe at
// recordedAt that reality looked like at validAt. The transaction dimension
// narrows first, then the valid dimension narrows within that knowledge.
func (e *Engine) At(ctx context.Context, agentID string, validAt, recordedAt time.Time) ([]*types.Graph, error) {
	return e.filter(ctx, agentID, func(c types.Coordinates) bool {
		return c.Transaction.Contains(recordedAt.UTC()) && c.Valid.Contains(validAt.UTC())
	})
}

// Current returns the graphs believed right now about right now.
func (e *Engine) Current(ctx context.Context, agentID string) ([]*types.Graph, error) {
	now := e.clock().UTC()
	return e.At(ctx, agentID, now, now)
}

func (e *Engine) filter(ctx context.Context, agentID string, keep func(types.Coordinates) bool) ([]*types.Graph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	graphs := e.source.Graphs(agentID)
	if len(graphs) == 0 {
		return nil, types.ErrAgentNotFound
	}

	var out []*types.Graph
	for _, g := range graphs {
		if keep(g.Coordinates) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Coordinates.Valid.From.Before(out[j].Coordinates.Valid.From)
	})
	return out, nil
}

// Coalesce merges value-identical graphs whose intervals on the chosen
// dimension are adjacent or overlapping into single logical records spanning
// the union. It is a presentation operation: the merged records are fresh
// values and the store keeps every underlying version untouched.
//
// Coalesce is idempotent: applying it to its own output changes nothing.
func Coalesce(graphs []*types.Graph, dim types.Dimension) []*types.Graph {
	if len(graphs) < 2 {
		return graphs
	}

	sorted := make([]*types.Graph, len(graphs))
	copy(sorted, graphs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Coordinates.On(dim).From.Before(sorted[j].Coordinates.On(dim).From)
	})

	out := []*types.Graph{copyGraph(sorted[0])}
	for _, g := range sorted[1:] {
		last := intervalOn(&out[len(out)-1].Coordinates, dim)
		next := g.Coordinates.On(dim)
		if coalescable(out[len(out)-1], g, dim) {
			// Extend the running record's interval to the union.
			if last.To != nil {
				if next.To == nil {
					last.To = nil
				} else if next.To.After(*last.To) {
					t := *next.To
					last.To = &t
				}
			}
			continue
		}
		out = append(out, copyGraph(g))
	}
	return out
}

// coalescable reports whether b can fold into a: identical statement sets
// and intervals on the chosen dimension that touch or overlap. a's interval
// starts at or before b's (caller sorts).
func coalescable(a, b *types.Graph, dim types.Dimension) bool {
	if a.AgentID != b.AgentID {
		return false
	}
	if !types.StatementsEqual(a.Statements, b.Statements) {
		return false
	}
	ai := a.Coordinates.On(dim)
	if ai.To == nil {
		return true
	}
	return !ai.To.Before(b.Coordinates.On(dim).From)
}

// intervalOn resolves the chosen dimension to its writable interval.
func intervalOn(c *types.Coordinates, dim types.Dimension) *types.Interval {
	if dim == types.TransactionTime {
		return &c.Transaction
	}
	return &c.Valid
}

func copyGraph(g *types.Graph) *types.Graph {
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
	return &c
}
