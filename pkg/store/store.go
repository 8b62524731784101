package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imago-ai/imago/pkg/index"
	"github.com/imago-ai/imago/pkg/types"
)

// Store is the append-only bi-temporal store. Every graph version is created
// once and never mutated; the only post-creation write is closing a
// transaction interval, performed here during supersession and nowhere else.
//
// Serialization is per agent identifier: writers on different agents never
// block each other, and the per-agent lock is held only for the final
// compare-and-swap that closes the old graph and opens the new one. Readers
// operate against immutable records and never block writers.
type Store struct {
	log    RecordLog
	logger *slog.Logger
	clock  func() time.Time

	mu       sync.RWMutex
	arena    map[string]*types.Graph
	index    *index.TemporalIndex
	versions map[string]int64
	closed   bool

	agentLocks sync.Map // agent id -> *sync.Mutex
}

// Options configures a Store.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Clock defaults to time.Now; tests substitute a fixed clock.
	Clock func() time.Time
}

// WriteOptions carries the optional parameters of a snapshot write.
type WriteOptions struct {
	// ValidFrom defaults to the transaction time.
	ValidFrom time.Time
	// ValidTo leaves the valid interval open when nil.
	ValidTo *time.Time
	// ExpectedVersion, when set, makes the commit conditional: if another
	// writer superseded that version first, the write fails with a
	// *types.ConflictError instead of silently stacking on top.
	ExpectedVersion *int64
	// Fidelity is the translation fidelity inherited from the adapter.
	// Zero means natively canonical and is stored as 1.0.
	Fidelity float64
	// MergedFrom records both parent graph ids when the write is the result
	// of a structural merge of concurrent modifications.
	MergedFrom []string
}

// LateOptions carries the optional parameters of a late-arriving insert.
type LateOptions struct {
	// ValidTo bounds the late fact's valid range; nil leaves it open.
	ValidTo *time.Time
	// DiscoveredAt defaults to now. The fact's ValidFrom must precede it.
	DiscoveredAt time.Time
	// Fidelity as in WriteOptions.
	Fidelity float64
}

// SnapshotQuery selects the bi-temporal coordinate of a read. Both fields
// nil means current state as currently believed.
type SnapshotQuery struct {
	// ValidAt asks what was true in reality at this instant.
	ValidAt *time.Time
	// RecordedAt asks what the system believed at this instant.
	RecordedAt *time.Time
}

// Open replays the record and supersession logs and returns a ready store.
// The temporal index is rebuilt from the logs: it is derived state, never
// the source of truth.
func Open(ctx context.Context, log RecordLog, opts *Options) (*Store, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Store{
		log:      log,
		logger:   logger,
		clock:    clock,
		arena:    make(map[string]*types.Graph),
		index:    index.New(),
		versions: make(map[string]int64),
	}

	if err := s.replay(ctx); err != nil {
		return nil, fmt.Errorf("failed to replay record log: %w", err)
	}
	logger.InfoContext(ctx, "bi-temporal store opened",
		slog.Int("graphs", s.index.Len()),
		slog.Int("agents", len(s.versions)))
	return s, nil
}

func (s *Store) replay(ctx context.Context) error {
	err := s.log.ReplayGraphs(ctx, func(g *types.Graph) error {
		s.arena[g.ID] = g
		s.index.Insert(g)
		if g.Lineage.Version > s.versions[g.AgentID] {
			s.versions[g.AgentID] = g.Lineage.Version
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.log.ReplaySupersessions(ctx, func(ev types.Supersession) error {
		g, ok := s.arena[ev.GraphID]
		if !ok {
			// Record was compacted away; the event only matters for graphs
			// that survive.
			return nil
		}
		if g.Coordinates.Transaction.To == nil {
			t := ev.SupersededAt
			g.Coordinates.Transaction.To = &t
			g.Lineage.SupersededBy = ev.SupersededBy
			s.index.CloseTransaction(ev.GraphID, ev.SupersededAt)
		}
		return nil
	})
}

// Close closes the underlying record log. Further operations fail with
// ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.log.Close()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.ErrStoreClosed
	}
	return nil
}

func (s *Store) agentLock(agentID string) *sync.Mutex {
	lock, _ := s.agentLocks.LoadOrStore(agentID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// CreateSnapshot appends a new graph version for the agent. If a current
// graph exists it is atomically superseded in the same operation: its
// transaction interval is closed and its lineage points at the new version.
//
// With WriteOptions.ExpectedVersion set, the commit fails with a
// *types.ConflictError when the expected current graph was already
// superseded by another writer.
func (s *Store) CreateSnapshot(ctx context.Context, agentID string, statements []types.Statement, opts *WriteOptions) (*types.Graph, error) {
	return s.append(ctx, agentID, statements, types.CorrectionInsert, "", opts)
}

// RecordCorrection behaves exactly like CreateSnapshot but tags the new
// version with a correction kind and a human-readable reason.
func (s *Store) RecordCorrection(ctx context.Context, agentID string, statements []types.Statement, correction types.CorrectionType, reason string, opts *WriteOptions) (*types.Graph, error) {
	if correction == "" {
		correction = types.CorrectionUpdate
	}
	return s.append(ctx, agentID, statements, correction, reason, opts)
}

func (s *Store) append(ctx context.Context, agentID string, statements []types.Statement, correction types.CorrectionType, reason string, opts *WriteOptions) (*types.Graph, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &WriteOptions{}
	}
	if agentID == "" {
		return nil, types.ErrEmptyAgentID
	}

	now := s.clock().UTC()
	coords := types.NewCoordinates(now, opts.ValidFrom.UTC(), utcPtr(opts.ValidTo))
	if opts.ValidFrom.IsZero() {
		coords.Valid.From = now
	}
	graph := &types.Graph{
		ID:          uuid.New().String(),
		AgentID:     agentID,
		Coordinates: coords,
		Lineage: types.Lineage{
			CorrectionType: correction,
			Reason:         reason,
		},
		Fidelity: normalizeFidelity(opts.Fidelity),
	}
	graph.Statements = scopeStatements(statements, graph.ID)

	// Everything above happened outside the lock; only the final
	// compare-and-swap holds it.
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	if err := graph.Coordinates.Validate(now); err != nil {
		return nil, err
	}

	lock := s.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		// Cancellation is safe here: nothing has been written yet.
		return nil, err
	}

	prev := s.currentGraph(agentID)
	if opts.ExpectedVersion != nil {
		actual := int64(0)
		var theirs []types.Statement
		if prev != nil {
			actual = prev.Lineage.Version
			theirs = prev.Statements
		}
		if actual != *opts.ExpectedVersion {
			conflict := &types.ConflictError{
				AgentID:         agentID,
				ExpectedVersion: *opts.ExpectedVersion,
				ActualVersion:   actual,
				Ours:            statements,
				Theirs:          theirs,
			}
			if prev != nil {
				conflict.TheirGraphID = prev.ID
			}
			return nil, conflict
		}
	}

	graph.Lineage.Version = s.nextVersion(agentID)
	if prev != nil {
		graph.Lineage.Supersedes = prev.ID
	}
	if len(opts.MergedFrom) > 0 {
		graph.Lineage.MergedFrom = append([]string(nil), opts.MergedFrom...)
	}

	if err := s.log.AppendGraph(ctx, graph); err != nil {
		return nil, fmt.Errorf("failed to append graph: %w", err)
	}
	if prev != nil {
		ev := types.Supersession{GraphID: prev.ID, SupersededBy: graph.ID, SupersededAt: now}
		if err := s.log.AppendSupersession(ctx, ev); err != nil {
			return nil, fmt.Errorf("failed to append supersession: %w", err)
		}
	}

	s.mu.Lock()
	s.arena[graph.ID] = graph
	if prev != nil {
		s.closeLocked(prev, graph.ID, now)
		s.index.Supersede(prev.ID, now, graph)
	} else {
		s.index.Insert(graph)
	}
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "graph appended",
		slog.String("agent_id", agentID),
		slog.String("graph_id", graph.ID),
		slog.Int64("version", graph.Lineage.Version),
		slog.String("correction", string(correction)))
	return graph, nil
}

// InsertLateArriving records a fact discovered after the period it describes.
// ValidFrom must be strictly before DiscoveredAt (default now) or the insert
// fails with a *types.OrderingError, leaving the store unchanged.
//
// When the agent's current graph overlaps validFrom, its valid range is
// split: the current graph is closed and two new graphs are appended, one
// carrying the prior statements over the pre-split range and one carrying
// the late statements from the split point, both stamped with the new
// transaction time and both superseding the original.
func (s *Store) InsertLateArriving(ctx context.Context, agentID string, statements []types.Statement, validFrom time.Time, opts *LateOptions) ([]*types.Graph, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &LateOptions{}
	}
	if agentID == "" {
		return nil, types.ErrEmptyAgentID
	}

	now := s.clock().UTC()
	discoveredAt := opts.DiscoveredAt.UTC()
	if opts.DiscoveredAt.IsZero() {
		discoveredAt = now
	}
	validFrom = validFrom.UTC()
	if !validFrom.Before(discoveredAt) {
		return nil, &types.OrderingError{ValidFrom: validFrom, DiscoveredAt: discoveredAt}
	}

	lateValid := types.Interval{From: validFrom, To: utcPtr(opts.ValidTo)}
	if err := lateValid.Validate(); err != nil {
		return nil, err
	}
	fidelity := normalizeFidelity(opts.Fidelity)

	lock := s.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prev := s.currentGraph(agentID)
	if prev == nil || !prev.Coordinates.Valid.Contains(validFrom) {
		// No overlap to split: record the late fact as its own version.
		g := &types.Graph{
			ID:      uuid.New().String(),
			AgentID: agentID,
			Coordinates: types.Coordinates{
				Valid:       lateValid,
				Transaction: types.OpenInterval(now),
			},
			Lineage: types.Lineage{
				Version:        s.nextVersion(agentID),
				CorrectionType: types.CorrectionLateArriving,
			},
			Fidelity: fidelity,
		}
		g.Statements = scopeStatements(statements, g.ID)
		if err := g.Validate(); err != nil {
			return nil, err
		}
		if err := s.log.AppendGraph(ctx, g); err != nil {
			return nil, fmt.Errorf("failed to append graph: %w", err)
		}
		s.mu.Lock()
		s.arena[g.ID] = g
		s.index.Insert(g)
		s.mu.Unlock()
		return []*types.Graph{g}, nil
	}

	if !prev.Coordinates.Valid.From.Before(validFrom) {
		// Splitting at or before the overlapping graph's own start would
		// produce an empty pre-split range.
		return nil, &types.ConstraintError{
			Kind:    types.ConstraintMalformedInterval,
			Message: fmt.Sprintf("split point %s does not fall inside the current valid range", validFrom.Format(time.RFC3339)),
		}
	}

	splitAt := validFrom
	pre := &types.Graph{
		ID:      uuid.New().String(),
		AgentID: agentID,
		Coordinates: types.Coordinates{
			Valid:       types.Interval{From: prev.Coordinates.Valid.From, To: &splitAt},
			Transaction: types.OpenInterval(now),
		},
		Lineage: types.Lineage{
			Supersedes:     prev.ID,
			CorrectionType: types.CorrectionLateArriving,
		},
		Fidelity: prev.Fidelity,
	}
	pre.Statements = scopeStatements(prev.Statements, pre.ID)

	post := &types.Graph{
		ID:      uuid.New().String(),
		AgentID: agentID,
		Coordinates: types.Coordinates{
			Valid:       types.Interval{From: splitAt, To: lateValid.To},
			Transaction: types.OpenInterval(now),
		},
		Lineage: types.Lineage{
			Supersedes:     prev.ID,
			CorrectionType: types.CorrectionLateArriving,
		},
		Fidelity: fidelity,
	}
	post.Statements = scopeStatements(statements, post.ID)
	if post.Coordinates.Valid.To == nil {
		post.Coordinates.Valid.To = prev.Coordinates.Valid.To
	}

	if err := pre.Validate(); err != nil {
		return nil, err
	}
	if err := post.Validate(); err != nil {
		return nil, err
	}
	pre.Lineage.Version = s.nextVersion(agentID)
	post.Lineage.Version = s.nextVersion(agentID)

	if err := s.log.AppendGraph(ctx, pre); err != nil {
		return nil, fmt.Errorf("failed to append pre-split graph: %w", err)
	}
	if err := s.log.AppendGraph(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to append post-split graph: %w", err)
	}
	ev := types.Supersession{GraphID: prev.ID, SupersededBy: post.ID, SupersededAt: now}
	if err := s.log.AppendSupersession(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to append supersession: %w", err)
	}

	s.mu.Lock()
	s.closeLocked(prev, post.ID, now)
	s.arena[pre.ID] = pre
	s.arena[post.ID] = post
	s.index.Supersede(prev.ID, now, pre, post)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "late-arriving split",
		slog.String("agent_id", agentID),
		slog.String("superseded", prev.ID),
		slog.Time("split_at", splitAt))
	return []*types.Graph{pre, post}, nil
}

// closeLocked is the sole post-creation write in the system: it closes a
// graph's transaction interval exactly once and records its successor.
// Caller holds s.mu and pairs this with index.Supersede, which applies the
// closure and the replacement insert under one index lock. A second closure
// is a programming error and panics rather than self-healing silently.
func (s *Store) closeLocked(g *types.Graph, supersededBy string, at time.Time) {
	if g.Coordinates.Transaction.To != nil || g.Lineage.SupersededBy != "" {
		panic(&types.ConstraintError{
			Kind:    types.ConstraintDoubleSupersession,
			Message: fmt.Sprintf("graph %s is already superseded", g.ID),
		})
	}
	t := at
	g.Coordinates.Transaction.To = &t
	g.Lineage.SupersededBy = supersededBy
}

// currentGraph returns the agent's open graph, nil if none. Caller may hold
// the agent lock; s.mu is taken internally.
func (s *Store) currentGraph(agentID string) *types.Graph {
	id, ok := s.index.Current(agentID)
	if !ok {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.arena[id]
}

func (s *Store) nextVersion(agentID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[agentID]++
	return s.versions[agentID]
}

// CurrentVersion returns the last assigned version for an agent, 0 when the
// agent has never been written.
func (s *Store) CurrentVersion(agentID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[agentID]
}

// GetSnapshot reads the agent at a bi-temporal coordinate:
//
//   - no arguments: current state as currently believed;
//   - RecordedAt only: the best-known latest valid state as of that
//     transaction point;
//   - ValidAt only: today's best knowledge of that date;
//   - both: the fully general bi-temporal coordinate.
//
// The combined query narrows on transaction time first (what was knowable),
// then on valid time (what was true within that knowledge).
func (s *Store) GetSnapshot(ctx context.Context, agentID string, q *SnapshotQuery) (*types.AgentSnapshot, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q == nil {
		q = &SnapshotQuery{}
	}
	if !s.index.HasAgent(agentID) {
		return nil, types.ErrAgentNotFound
	}

	now := s.clock().UTC()
	var ids []string
	switch {
	case q.ValidAt == nil && q.RecordedAt == nil:
		ids = s.index.At(agentID, now, now)
	case q.ValidAt == nil:
		ids = s.index.AsOf(agentID, q.RecordedAt.UTC())
	case q.RecordedAt == nil:
		ids = s.index.At(agentID, q.ValidAt.UTC(), now)
	default:
		ids = s.index.At(agentID, q.ValidAt.UTC(), q.RecordedAt.UTC())
	}
	if len(ids) == 0 {
		return nil, types.ErrGraphNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *types.Graph
	for _, id := range ids {
		g := s.arena[id]
		if g == nil {
			continue
		}
		if best == nil || snapshotPreferred(g, best, q) {
			best = g
		}
	}
	if best == nil {
		return nil, types.ErrGraphNotFound
	}
	return snapshotOf(best), nil
}

// snapshotPreferred ranks candidate graphs for a snapshot read. For a pure
// transaction-point query the record with the latest valid start wins (best
// known latest valid state); otherwise the most recently recorded wins, with
// version as the tie-break.
func snapshotPreferred(g, best *types.Graph, q *SnapshotQuery) bool {
	if q.ValidAt == nil && q.RecordedAt != nil {
		if !g.Coordinates.Valid.From.Equal(best.Coordinates.Valid.From) {
			return g.Coordinates.Valid.From.After(best.Coordinates.Valid.From)
		}
	}
	if !g.Coordinates.Transaction.From.Equal(best.Coordinates.Transaction.From) {
		return g.Coordinates.Transaction.From.After(best.Coordinates.Transaction.From)
	}
	return g.Lineage.Version > best.Lineage.Version
}

func snapshotOf(g *types.Graph) *types.AgentSnapshot {
	stmts := make([]types.Statement, len(g.Statements))
	copy(stmts, g.Statements)
	return &types.AgentSnapshot{
		AgentID:     g.AgentID,
		GraphID:     g.ID,
		Statements:  stmts,
		Coordinates: g.Coordinates,
		Lineage:     g.Lineage,
		Fidelity:    g.Fidelity,
	}
}

// GetHistory returns the agent's full version history ordered by version.
func (s *Store) GetHistory(ctx context.Context, agentID string) ([]types.HistoryEntry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.index.HasAgent(agentID) {
		return nil, types.ErrAgentNotFound
	}

	ids := s.index.AgentGraphIDs(agentID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]types.HistoryEntry, 0, len(ids))
	for _, id := range ids {
		g := s.arena[id]
		if g == nil {
			continue
		}
		entries = append(entries, types.HistoryEntry{
			Version:     g.Lineage.Version,
			GraphID:     g.ID,
			Lineage:     g.Lineage,
			Coordinates: g.Coordinates,
			RecordedAt:  g.Coordinates.Transaction.From,
			Correction:  g.Lineage.CorrectionType,
		})
	}
	sortHistory(entries)
	return entries, nil
}

// Graphs returns immutable views of every live graph, for the query engine.
// The views are copies taken under the store lock: a later supersession
// closes the arena record in place, and a view handed out earlier must never
// change underneath its reader.
func (s *Store) Graphs(agentID string) []*types.Graph {
	ids := s.index.AgentGraphIDs(agentID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	graphs := make([]*types.Graph, 0, len(ids))
	for _, id := range ids {
		if g := s.arena[id]; g != nil {
			graphs = append(graphs, cloneGraph(g))
		}
	}
	return graphs
}

// Agents lists every agent with at least one live graph.
func (s *Store) Agents() []string {
	return s.index.Agents()
}

func sortHistory(entries []types.HistoryEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Version < entries[j-1].Version; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func scopeStatements(statements []types.Statement, graphID string) []types.Statement {
	scoped := make([]types.Statement, len(statements))
	for i, st := range statements {
		st.GraphID = graphID
		scoped[i] = st
	}
	return scoped
}

func normalizeFidelity(f float64) float64 {
	if f <= 0 {
		return 1.0
	}
	if f > 1.0 {
		return 1.0
	}
	return f
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
