package imago

import (
	"context"
	"time"

	"github.com/imago-ai/imago/pkg/bridge"
	"github.com/imago-ai/imago/pkg/registry"
	"github.com/imago-ai/imago/pkg/store"
	"github.com/imago-ai/imago/pkg/types"
)

// Archivist is the bi-temporal write/read surface of the store.
type Archivist interface {
	// CreateSnapshot appends a new graph version, atomically superseding the
	// agent's current graph when one exists.
	CreateSnapshot(ctx context.Context, agentID string, statements []types.Statement, opts *store.WriteOptions) (*types.Graph, error)

	// RecordCorrection appends a correction version with a kind and reason.
	RecordCorrection(ctx context.Context, agentID string, statements []types.Statement, correction types.CorrectionType, reason string, opts *store.WriteOptions) (*types.Graph, error)

	// InsertLateArriving records a fact discovered after the period it
	// describes, splitting the overlapping valid range when needed.
	InsertLateArriving(ctx context.Context, agentID string, statements []types.Statement, validFrom time.Time, opts *store.LateOptions) ([]*types.Graph, error)

	// Commit writes through the conflict resolver: gate, expected-version
	// check against the base snapshot, structural merge for disjoint fields.
	Commit(ctx context.Context, agentID string, statements []types.Statement, base *types.AgentSnapshot) (*types.Graph, error)

	// GetSnapshot reads the agent at a bi-temporal coordinate.
	GetSnapshot(ctx context.Context, agentID string, q *store.SnapshotQuery) (*types.AgentSnapshot, error)

	// GetHistory returns the agent's version history ordered by version.
	GetHistory(ctx context.Context, agentID string) ([]types.HistoryEntry, error)
}

// Translator is the framework translation surface.
type Translator interface {
	// Translate converts a native document between framework shapes through
	// the canonical form.
	Translate(ctx context.Context, native map[string]any, source, target types.Framework) (*bridge.TranslationResult, error)

	// Morph canonicalizes a native document and persists it for the agent.
	Morph(ctx context.Context, agentID string, native map[string]any, source types.Framework) (*types.Graph, error)

	// Validate checks a native document against its framework's schema.
	Validate(ctx context.Context, native map[string]any, framework types.Framework) (*types.ValidationResult, error)

	// CompatibilityMatrix reports the running-average fidelity per
	// (source, target) framework pair.
	CompatibilityMatrix() []bridge.CompatibilityEntry
}

// SpecResolver resolves protocol specification documents.
type SpecResolver interface {
	// ResolveSpecification never fails outright: remote sources degrade to
	// the embedded fallback schema and finally a generated stub.
	ResolveSpecification(ctx context.Context, protocol string) (*registry.Resolution, error)
}

// Maintainer covers store housekeeping.
type Maintainer interface {
	// Compact removes superseded records outside the retention window.
	Compact(ctx context.Context, opts store.CompactOptions) (int, error)
}

// Imago is the full client surface.
type Imago interface {
	Archivist
	Translator
	SpecResolver
	Maintainer

	// Close releases the record log and flushes telemetry.
	Close() error
}

var _ Imago = (*Client)(nil)
