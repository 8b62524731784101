package types

import (
	"sort"
	"time"
)

// Statement is one (subject, predicate, object) triple scoped to the graph
// that carries it. Granularity is graph-level: every statement in a graph
// shares that graph's coordinates and lineage, so an agent definition
// changes atomically as a whole.
type Statement struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	GraphID   string `json:"graph_id,omitempty"`
}

// Validate checks the triple carries all three positions.
func (s Statement) Validate() error {
	if s.Subject == "" || s.Predicate == "" || s.Object == "" {
		return ErrNoStatements
	}
	return nil
}

// CorrectionType tags why a new graph version was recorded.
type CorrectionType string

const (
	CorrectionInsert       CorrectionType = "insert"
	CorrectionUpdate       CorrectionType = "update"
	CorrectionDelete       CorrectionType = "delete"
	CorrectionLateArriving CorrectionType = "late_arriving"
)

// Lineage links one graph version into its agent's immutable version chain.
// Records are never rewritten: supersession closes the predecessor's
// transaction interval and points it at its successor.
type Lineage struct {
	// Version is a per-agent monotonic integer.
	Version int64 `json:"version"`
	// Supersedes is the graph id this version replaced, if any.
	Supersedes string `json:"supersedes,omitempty"`
	// SupersededBy is the graph id that replaced this version, if any.
	SupersededBy string `json:"superseded_by,omitempty"`
	// CorrectionType tags the kind of change this version records.
	CorrectionType CorrectionType `json:"correction_type"`
	// Reason is the human-readable justification for a correction.
	Reason string `json:"reason,omitempty"`
	// MergedFrom lists both parent graph ids when this version was produced
	// by a structural merge of concurrent writes.
	MergedFrom []string `json:"merged_from,omitempty"`
}

// Graph is one immutable version of an agent's canonical statement set,
// positioned in bi-temporal space. Created once, never mutated; retired only
// by the store closing its transaction interval.
type Graph struct {
	ID          string      `json:"graph_id"`
	AgentID     string      `json:"agent_id"`
	Statements  []Statement `json:"statements"`
	Coordinates Coordinates `json:"coordinates"`
	Lineage     Lineage     `json:"lineage"`
	// Fidelity is the translation fidelity score inherited from the adapter
	// that produced the statement set, 1.0 for natively canonical graphs.
	Fidelity float64 `json:"fidelity_score"`
}

// Validate applies the structural checks shared by all write paths.
func (g *Graph) Validate() error {
	if g.AgentID == "" {
		return ErrEmptyAgentID
	}
	if len(g.Statements) == 0 {
		return ErrNoStatements
	}
	for _, st := range g.Statements {
		if err := st.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsCurrent reports whether this version is the store's present belief for
// its agent.
func (g *Graph) IsCurrent() bool {
	return g.Coordinates.IsCurrent()
}

// StatementsEqual reports whether two statement sets carry the same triples,
// ignoring order and graph scoping.
func StatementsEqual(a, b []Statement) bool {
	if len(a) != len(b) {
		return false
	}
	ka, kb := statementKeys(a), statementKeys(b)
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}

func statementKeys(stmts []Statement) []string {
	keys := make([]string, len(stmts))
	for i, s := range stmts {
		keys[i] = s.Subject + "\x1f" + s.Predicate + "\x1f" + s.Object
	}
	sort.Strings(keys)
	return keys
}

// AgentSnapshot is the result of a bi-temporal read: the statement set an
// agent had at one (valid, transaction) coordinate, with the lineage and
// fidelity of the graph that carried it.
type AgentSnapshot struct {
	AgentID     string      `json:"agent_id"`
	GraphID     string      `json:"graph_id"`
	Statements  []Statement `json:"statements"`
	Coordinates Coordinates `json:"coordinates"`
	Lineage     Lineage     `json:"lineage"`
	Fidelity    float64     `json:"fidelity_score"`
}

// HistoryEntry is one row of an agent's version history, ordered by version.
type HistoryEntry struct {
	Version     int64          `json:"version"`
	GraphID     string         `json:"graph_id"`
	Lineage     Lineage        `json:"lineage"`
	Coordinates Coordinates    `json:"coordinates"`
	RecordedAt  time.Time      `json:"recorded_at"`
	Correction  CorrectionType `json:"correction_type"`
}

// Supersession is one row of the append-only supersession log. The log,
// replayed after the graph log, is what rebuilds the current-state index;
// the index itself is derived and never the source of truth.
type Supersession struct {
	GraphID      string    `json:"graph_id"`
	SupersededBy string    `json:"superseded_by,omitempty"`
	SupersededAt time.Time `json:"superseded_at"`
}
