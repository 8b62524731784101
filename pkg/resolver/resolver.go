package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/imago-ai/imago/pkg/store"
	"github.com/imago-ai/imago/pkg/types"
)

// ErrInconsistentWrite is returned by the validation gate when a single
// write binds the same (subject, predicate) to two different objects.
var ErrInconsistentWrite = errors.New("write binds the same subject and predicate to conflicting objects")

// Committer is the slice of the store the resolver needs.
type Committer interface {
	CreateSnapshot(ctx context.Context, agentID string, statements []types.Statement, opts *store.WriteOptions) (*types.Graph, error)
	RecordCorrection(ctx context.Context, agentID string, statements []types.Statement, correction types.CorrectionType, reason string, opts *store.WriteOptions) (*types.Graph, error)
}

// Resolver commits writes through a validation gate and resolves concurrent
// modifications structurally where that is safe. Two writes merge only when
// their (subject, predicate) sets are disjoint; a collision on the same field
// is never auto-resolved and surfaces as a *types.ConflictError carrying both
// statement sets.
type Resolver struct {
	committer   Committer
	logger      *slog.Logger
	maxAttempts int
}

// Options configures a Resolver.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// MaxAttempts bounds merge retries when writers keep racing. Defaults to 3.
	MaxAttempts int
}

// New returns a resolver committing through the given store.
func New(committer Committer, opts *Options) *Resolver {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}
	return &Resolver{committer: committer, logger: logger, maxAttempts: attempts}
}

// Gate validates a statement set before anything touches the log: the set
// must be non-empty, every triple complete, and no (subject, predicate) may
// carry two different objects within the one write. A write failing the gate
// leaves the store untouched.
func Gate(statements []types.Statement) error {
	if len(statements) == 0 {
		return types.ErrNoStatements
	}
	seen := make(map[string]string, len(statements))
	for _, st := range statements {
		if err := st.Validate(); err != nil {
			return err
		}
		key := st.Subject + "\x1f" + st.Predicate
		if prev, ok := seen[key]; ok && prev != st.Object {
			return fmt.Errorf("%w: %s %s", ErrInconsistentWrite, st.Subject, st.Predicate)
		}
		seen[key] = st.Object
	}
	return nil
}

// Commit writes a new version on top of the base snapshot the writer read,
// nil for agent creation. On a version race it merges structurally when the
// competing sets touch disjoint fields, recording both parents in the merged
// graph's lineage; otherwise the conflict is returned for the caller to
// resolve.
func (r *Resolver) Commit(ctx context.Context, agentID string, statements []types.Statement, base *types.AgentSnapshot) (*types.Graph, error) {
	if err := Gate(statements); err != nil {
		return nil, err
	}

	expected := int64(0)
	baseID := ""
	if base != nil {
		expected = base.Lineage.Version
		baseID = base.GraphID
	}

	g, err := r.committer.CreateSnapshot(ctx, agentID, statements, &store.WriteOptions{ExpectedVersion: &expected})
	if err == nil {
		return g, nil
	}

	var conflict *types.ConflictError
	if !errors.As(err, &conflict) {
		return nil, err
	}
	return r.merge(ctx, agentID, statements, baseID, conflict)
}

func (r *Resolver) merge(ctx context.Context, agentID string, ours []types.Statement, baseID string, conflict *types.ConflictError) (*types.Graph, error) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if !Disjoint(ours, conflict.Theirs) {
			r.logger.WarnContext(ctx, "concurrent modification not mergeable",
				slog.String("agent_id", agentID),
				slog.Int64("expected_version", conflict.ExpectedVersion),
				slog.Int64("actual_version", conflict.ActualVersion))
			return nil, conflict
		}

		merged := make([]types.Statement, 0, len(conflict.Theirs)+len(ours))
		merged = append(merged, conflict.Theirs...)
		merged = append(merged, ours...)

		parents := make([]string, 0, 2)
		if baseID != "" {
			parents = append(parents, baseID)
		}
		if conflict.TheirGraphID != "" {
			parents = append(parents, conflict.TheirGraphID)
		}

		expected := conflict.ActualVersion
		g, err := r.committer.RecordCorrection(ctx, agentID, merged, types.CorrectionUpdate,
			"structural merge of concurrent writes",
			&store.WriteOptions{ExpectedVersion: &expected, MergedFrom: parents})
		if err == nil {
			r.logger.InfoContext(ctx, "concurrent writes merged",
				slog.String("agent_id", agentID),
				slog.String("graph_id", g.ID),
				slog.Int("attempt", attempt))
			return g, nil
		}

		var next *types.ConflictError
		if !errors.As(err, &next) {
			return nil, err
		}
		// Yet another writer landed while merging; re-evaluate against the
		// new winner.
		conflict = next
	}
	return nil, conflict
}

// Disjoint reports whether two statement sets touch no common
// (subject, predicate) field. Only disjoint sets are safe to merge without
// arbitrating between values.
func Disjoint(a, b []types.Statement) bool {
	keys := make(map[string]struct{}, len(a))
	for _, st := range a {
		keys[st.Subject+"\x1f"+st.Predicate] = struct{}{}
	}
	for _, st := range b {
		if _, ok := keys[st.Subject+"\x1f"+st.Predicate]; ok {
			return false
		}
	}
	return true
}
