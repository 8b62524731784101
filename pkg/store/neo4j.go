package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/imago-ai/imago/pkg/types"
)

// Neo4jLog is the remote RecordLog backend. Each graph version is one
// (:GraphRecord) node and each supersession event one (:SupersessionRecord)
// node; a per-log sequence property preserves append order for replay.
// Records are only ever created or deleted (by compaction), never updated.
type Neo4jLog struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jLog creates a record log backed by a neo4j instance.
func NewNeo4jLog(uri, username, password, database string) (*Neo4jLog, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jLog{client: driver, database: database}, nil
}

func (l *Neo4jLog) session(ctx context.Context) neo4j.SessionWithContext {
	return l.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: l.database})
}

func (l *Neo4jLog) AppendGraph(ctx context.Context, g *types.Graph) error {
	statements, err := json.Marshal(g.Statements)
	if err != nil {
		return fmt.Errorf("failed to encode statements: %w", err)
	}
	lineage, err := json.Marshal(g.Lineage)
	if err != nil {
		return fmt.Errorf("failed to encode lineage: %w", err)
	}

	session := l.session(ctx)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (c:LogCounter {name: 'graph'})
			ON CREATE SET c.seq = 0
			SET c.seq = c.seq + 1
			CREATE (r:GraphRecord {
				seq: c.seq,
				graph_id: $graph_id,
				agent_id: $agent_id,
				statements: $statements,
				lineage: $lineage,
				valid_from: $valid_from,
				valid_to: $valid_to,
				tx_from: $tx_from,
				tx_to: $tx_to,
				fidelity: $fidelity
			})
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"graph_id":   g.ID,
			"agent_id":   g.AgentID,
			"statements": string(statements),
			"lineage":    string(lineage),
			"valid_from": g.Coordinates.Valid.From.UTC(),
			"valid_to":   optionalTime(g.Coordinates.Valid.To),
			"tx_from":    g.Coordinates.Transaction.From.UTC(),
			"tx_to":      optionalTime(g.Coordinates.Transaction.To),
			"fidelity":   g.Fidelity,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to append graph record: %w", err)
	}
	return nil
}

func (l *Neo4jLog) AppendSupersession(ctx context.Context, s types.Supersession) error {
	session := l.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (c:LogCounter {name: 'supersession'})
			ON CREATE SET c.seq = 0
			SET c.seq = c.seq + 1
			CREATE (r:SupersessionRecord {
				seq: c.seq,
				graph_id: $graph_id,
				superseded_by: $superseded_by,
				superseded_at: $superseded_at
			})
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"graph_id":      s.GraphID,
			"superseded_by": s.SupersededBy,
			"superseded_at": s.SupersededAt.UTC(),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to append supersession record: %w", err)
	}
	return nil
}

func (l *Neo4jLog) ReplayGraphs(ctx context.Context, fn func(*types.Graph) error) error {
	session := l.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (r:GraphRecord)
			RETURN r.graph_id AS graph_id, r.agent_id AS agent_id,
			       r.statements AS statements, r.lineage AS lineage,
			       r.valid_from AS valid_from, r.valid_to AS valid_to,
			       r.tx_from AS tx_from, r.tx_to AS tx_to,
			       r.fidelity AS fidelity
			ORDER BY r.seq
		`, nil)
		if err != nil {
			return nil, err
		}

		for res.Next(ctx) {
			record := res.Record()
			g, err := graphFromRecord(record.AsMap())
			if err != nil {
				return nil, err
			}
			if err := fn(g); err != nil {
				return nil, err
			}
		}
		return nil, res.Err()
	})
	return err
}

func (l *Neo4jLog) ReplaySupersessions(ctx context.Context, fn func(types.Supersession) error) error {
	session := l.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (r:SupersessionRecord)
			RETURN r.graph_id AS graph_id, r.superseded_by AS superseded_by,
			       r.superseded_at AS superseded_at
			ORDER BY r.seq
		`, nil)
		if err != nil {
			return nil, err
		}

		for res.Next(ctx) {
			m := res.Record().AsMap()
			s := types.Supersession{
				GraphID:      stringValue(m["graph_id"]),
				SupersededBy: stringValue(m["superseded_by"]),
			}
			if t, ok := timeValue(m["superseded_at"]); ok {
				s.SupersededAt = t
			}
			if err := fn(s); err != nil {
				return nil, err
			}
		}
		return nil, res.Err()
	})
	return err
}

func (l *Neo4jLog) RemoveGraphs(ctx context.Context, graphIDs []string) error {
	if len(graphIDs) == 0 {
		return nil
	}

	session := l.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (r:GraphRecord)
			WHERE r.graph_id IN $graph_ids
			DELETE r
		`, map[string]any{"graph_ids": graphIDs})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to remove graph records: %w", err)
	}
	return nil
}

func (l *Neo4jLog) Close() error {
	return l.client.Close(context.Background())
}

func graphFromRecord(m map[string]any) (*types.Graph, error) {
	g := &types.Graph{
		ID:       stringValue(m["graph_id"]),
		AgentID:  stringValue(m["agent_id"]),
		Fidelity: floatValue(m["fidelity"]),
	}

	if raw := stringValue(m["statements"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &g.Statements); err != nil {
			return nil, fmt.Errorf("failed to decode statements for graph %s: %w", g.ID, err)
		}
	}
	if raw := stringValue(m["lineage"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &g.Lineage); err != nil {
			return nil, fmt.Errorf("failed to decode lineage for graph %s: %w", g.ID, err)
		}
	}

	if t, ok := timeValue(m["valid_from"]); ok {
		g.Coordinates.Valid.From = t
	}
	if t, ok := timeValue(m["valid_to"]); ok {
		g.Coordinates.Valid.To = &t
	}
	if t, ok := timeValue(m["tx_from"]); ok {
		g.Coordinates.Transaction.From = t
	}
	if t, ok := timeValue(m["tx_to"]); ok {
		g.Coordinates.Transaction.To = &t
	}
	return g, nil
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func floatValue(v any) float64 {
	f, _ := v.(float64)
	return f
}

func timeValue(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	return time.Time{}, false
}
