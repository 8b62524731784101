package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/imago-ai/imago/pkg/types"
)

// CompactOptions controls which superseded records Compact may remove.
type CompactOptions struct {
	// Retention is how long a closed record stays queryable after its
	// transaction interval ends. Records younger than this survive.
	Retention time.Duration

	// KeepVersions keeps at least this many of the newest versions per
	// agent regardless of age. Defaults to 1.
	KeepVersions int

	// ArchiveDir, when set, receives a parquet export of every removed
	// record before physical deletion.
	ArchiveDir string
}

// archivedGraph is the flat parquet row for one compacted graph record.
type archivedGraph struct {
	GraphID      string    `parquet:"graph_id"`
	AgentID      string    `parquet:"agent_id"`
	Version      int64     `parquet:"version"`
	Statements   string    `parquet:"statements"` // JSON
	Lineage      string    `parquet:"lineage"`    // JSON
	ValidFrom    time.Time `parquet:"valid_from"`
	ValidTo      time.Time `parquet:"valid_to"`
	ValidOpen    bool      `parquet:"valid_open"`
	TxFrom       time.Time `parquet:"tx_from"`
	TxTo         time.Time `parquet:"tx_to"`
	Fidelity     float64   `parquet:"fidelity"`
	ArchivedAt   time.Time `parquet:"archived_at"`
	SupersededBy string    `parquet:"superseded_by"`
}

// Compact removes superseded records that have left the retention window.
// Open-transaction records are never touched, the newest KeepVersions
// versions of each agent survive regardless of age, and a record still
// referenced by a survivor's supersedes pointer is kept so lineage chains
// never dangle. Returns the number of records removed.
func (s *Store) Compact(ctx context.Context, opts CompactOptions) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if opts.KeepVersions < 1 {
		opts.KeepVersions = 1
	}
	cutoff := s.clock().UTC().Add(-opts.Retention)

	s.mu.Lock()
	victims := s.selectVictimsLocked(cutoff, opts.KeepVersions)
	s.mu.Unlock()
	if len(victims) == 0 {
		return 0, nil
	}

	if opts.ArchiveDir != "" {
		if err := archiveGraphs(opts.ArchiveDir, victims, s.clock().UTC()); err != nil {
			return 0, fmt.Errorf("failed to archive compacted records: %w", err)
		}
	}

	ids := make([]string, len(victims))
	for i, g := range victims {
		ids[i] = g.ID
	}
	if err := s.log.RemoveGraphs(ctx, ids); err != nil {
		return 0, fmt.Errorf("failed to remove compacted records: %w", err)
	}

	s.mu.Lock()
	for _, id := range ids {
		delete(s.arena, id)
		s.index.Remove(id)
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "compaction complete",
		slog.Int("removed", len(ids)),
		slog.Time("cutoff", cutoff))
	return len(ids), nil
}

// selectVictimsLocked picks removable records. Caller holds s.mu.
func (s *Store) selectVictimsLocked(cutoff time.Time, keepVersions int) []*types.Graph {
	byAgent := make(map[string][]*types.Graph)
	for _, g := range s.arena {
		byAgent[g.AgentID] = append(byAgent[g.AgentID], g)
	}

	var victims []*types.Graph
	for _, graphs := range byAgent {
		sort.Slice(graphs, func(i, j int) bool {
			return graphs[i].Lineage.Version > graphs[j].Lineage.Version
		})

		candidates := make(map[string]*types.Graph)
		for i, g := range graphs {
			if i < keepVersions {
				continue
			}
			if g.Coordinates.Transaction.To == nil {
				continue
			}
			if !g.Coordinates.Transaction.To.Before(cutoff) {
				continue
			}
			candidates[g.ID] = g
		}

		// A candidate referenced by a retained record's lineage is spared so
		// the chain stays walkable one hop from every retained version.
		// Sparing does not cascade: a spared candidate's own references do
		// not keep its ancestors alive, otherwise a linear history would
		// never compact at all.
		retained := make([]*types.Graph, 0, len(graphs))
		for _, g := range graphs {
			if _, doomed := candidates[g.ID]; !doomed {
				retained = append(retained, g)
			}
		}
		for _, g := range retained {
			if g.Lineage.Supersedes != "" {
				delete(candidates, g.Lineage.Supersedes)
			}
			for _, parent := range g.Lineage.MergedFrom {
				delete(candidates, parent)
			}
		}

		for _, g := range candidates {
			victims = append(victims, g)
		}
	}
	return victims
}

func archiveGraphs(dir string, graphs []*types.Graph, now time.Time) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	rows := make([]archivedGraph, 0, len(graphs))
	for _, g := range graphs {
		statements, err := json.Marshal(g.Statements)
		if err != nil {
			return fmt.Errorf("failed to encode statements for graph %s: %w", g.ID, err)
		}
		lineage, err := json.Marshal(g.Lineage)
		if err != nil {
			return fmt.Errorf("failed to encode lineage for graph %s: %w", g.ID, err)
		}

		row := archivedGraph{
			GraphID:      g.ID,
			AgentID:      g.AgentID,
			Version:      g.Lineage.Version,
			Statements:   string(statements),
			Lineage:      string(lineage),
			ValidFrom:    g.Coordinates.Valid.From,
			ValidOpen:    g.Coordinates.Valid.To == nil,
			TxFrom:       g.Coordinates.Transaction.From,
			Fidelity:     g.Fidelity,
			ArchivedAt:   now,
			SupersededBy: g.Lineage.SupersededBy,
		}
		if g.Coordinates.Valid.To != nil {
			row.ValidTo = *g.Coordinates.Valid.To
		}
		if g.Coordinates.Transaction.To != nil {
			row.TxTo = *g.Coordinates.Transaction.To
		}
		rows = append(rows, row)
	}

	name := fmt.Sprintf("compacted_%s_%d.parquet", now.Format("20060102_150405"), now.UnixNano())
	if err := parquet.WriteFile(filepath.Join(dir, name), rows); err != nil {
		return fmt.Errorf("failed to write archive file: %w", err)
	}
	return nil
}
