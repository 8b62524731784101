package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/imago-ai/imago/pkg/adapter"
	"github.com/imago-ai/imago/pkg/alert"
	"github.com/imago-ai/imago/pkg/store"
	"github.com/imago-ai/imago/pkg/types"
)

// Persister is the slice of the store the orchestrator writes through.
type Persister interface {
	CreateSnapshot(ctx context.Context, agentID string, statements []types.Statement, opts *store.WriteOptions) (*types.Graph, error)
}

// TranslationResult is the outcome of one framework-to-framework
// translation.
type TranslationResult struct {
	Source    types.Framework        `json:"source"`
	Target    types.Framework        `json:"target"`
	Native    map[string]any         `json:"native"`
	Canonical *types.CanonicalAgent  `json:"canonical"`
	Fidelity  float64                `json:"fidelity"`
	Warnings  []types.FidelityWarning `json:"warnings,omitempty"`
	CacheHit  bool                   `json:"cache_hit"`
}

// Orchestrator routes translation requests to adapters, caches results,
// tracks the compatibility matrix, and persists canonical graphs through
// the store. All state is constructor-supplied; nothing here is a package
// singleton.
type Orchestrator struct {
	adapters *adapter.Registry
	persist  Persister
	cache    *translationCache
	matrix   *compatibilityMatrix
	logger   *slog.Logger

	alerter   alert.Alerter
	threshold float64
}

// Options configures an Orchestrator.
type Options struct {
	// CacheSize bounds the translation cache. Defaults to 256 entries.
	CacheSize int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Alerter receives a notification when a translation's fidelity drops
	// below FidelityThreshold. Nil disables alerting.
	Alerter alert.Alerter
	// FidelityThreshold in (0, 1]. Zero disables fidelity alerting.
	FidelityThreshold float64
}

// New returns an orchestrator over the given adapter registry and store.
// persist may be nil when only Translate/Validate are used.
func New(adapters *adapter.Registry, persist Persister, opts *Options) *Orchestrator {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		adapters:  adapters,
		persist:   persist,
		cache:     newTranslationCache(opts.CacheSize),
		matrix:    newCompatibilityMatrix(),
		logger:    logger,
		alerter:   opts.Alerter,
		threshold: opts.FidelityThreshold,
	}
}

// Translate converts a native document from one framework's shape to
// another's through the canonical form. The result is cached by
// (source, target, content hash); a hit increments the hit counter and
// returns without re-running either adapter. Each cache miss records the
// observed fidelity into the compatibility matrix.
func (o *Orchestrator) Translate(ctx context.Context, native map[string]any, source, target types.Framework) (*TranslationResult, error) {
	hash, err := contentHash(native)
	if err != nil {
		return nil, err
	}
	key := cacheKey{source: source, target: target, hash: hash}
	if cached, ok := o.cache.get(key); ok {
		hit := *cached
		hit.CacheHit = true
		return &hit, nil
	}

	result, err := o.translate(ctx, native, source, target)
	if err != nil {
		return nil, err
	}
	o.cache.put(key, result)
	o.matrix.record(source, target, result.Fidelity)
	o.checkFidelity(ctx, source, target, result.Fidelity)
	return result, nil
}

// checkFidelity notifies the alerter when a fresh translation scores below
// the configured threshold. Alert failures are logged, never propagated.
func (o *Orchestrator) checkFidelity(ctx context.Context, source, target types.Framework, fidelity float64) {
	if o.alerter == nil || o.threshold <= 0 || fidelity >= o.threshold {
		return
	}
	subject := fmt.Sprintf("low fidelity translation: %s -> %s", source, target)
	message := fmt.Sprintf("translation from %s to %s scored %.2f, below the %.2f threshold", source, target, fidelity, o.threshold)
	if err := o.alerter.Alert(subject, message); err != nil {
		o.logger.WarnContext(ctx, "fidelity alert failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) translate(ctx context.Context, native map[string]any, source, target types.Framework) (*TranslationResult, error) {
	from, err := o.adapters.Get(source)
	if err != nil {
		return nil, err
	}
	to, err := o.adapters.Get(target)
	if err != nil {
		return nil, err
	}

	canonical, err := from.ToCanonical(ctx, translationSubject(native, source), native)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize %s document: %w", source, err)
	}
	out, restoreWarnings, err := to.FromCanonical(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s document: %w", target, err)
	}

	warnings := append(append([]types.FidelityWarning(nil), canonical.Warnings...), restoreWarnings...)
	o.logger.DebugContext(ctx, "translation complete",
		slog.String("source", string(source)),
		slog.String("target", string(target)),
		slog.Float64("fidelity", canonical.Fidelity),
		slog.Int("warnings", len(warnings)))

	return &TranslationResult{
		Source:    source,
		Target:    target,
		Native:    out,
		Canonical: canonical,
		Fidelity:  canonical.Fidelity,
		Warnings:  warnings,
	}, nil
}

// Morph canonicalizes a native document and persists it as a new graph
// version for the agent. The adapter runs before the store takes the
// per-agent lock, so translation never holds up other writers.
func (o *Orchestrator) Morph(ctx context.Context, agentID string, native map[string]any, source types.Framework) (*types.Graph, error) {
	if o.persist == nil {
		return nil, fmt.Errorf("orchestrator has no store attached")
	}
	a, err := o.adapters.Get(source)
	if err != nil {
		return nil, err
	}
	canonical, err := a.ToCanonical(ctx, agentID, native)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize %s document: %w", source, err)
	}

	g, err := o.persist.CreateSnapshot(ctx, agentID, canonical.Statements, &store.WriteOptions{
		Fidelity: canonical.Fidelity,
	})
	if err != nil {
		return nil, err
	}
	o.logger.InfoContext(ctx, "agent morphed",
		slog.String("agent_id", agentID),
		slog.String("source", string(source)),
		slog.String("graph_id", g.ID),
		slog.Float64("fidelity", g.Fidelity))
	return g, nil
}

// Validate checks a native document against its framework's schema.
func (o *Orchestrator) Validate(ctx context.Context, native map[string]any, framework types.Framework) (*types.ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, err := o.adapters.Get(framework)
	if err != nil {
		return nil, err
	}
	return a.ValidateNative(native), nil
}

// CompatibilityMatrix returns the running-average fidelity per
// (source, target) pair, sorted.
func (o *Orchestrator) CompatibilityMatrix() []CompatibilityEntry {
	return o.matrix.entries()
}

// CacheStats reports the translation cache's size and cumulative hits.
func (o *Orchestrator) CacheStats() (size int, hits int64) {
	return o.cache.stats()
}

// translationSubject picks the statement subject for a pure translation,
// where no caller-supplied agent id exists. The native document's name
// field when present, a fixed placeholder otherwise.
func translationSubject(native map[string]any, source types.Framework) string {
	for _, key := range []string{"name", "role"} {
		if v, ok := native[key].(string); ok && v != "" {
			return v
		}
	}
	if meta, ok := native["metadata"].(map[string]any); ok {
		if v, ok := meta["name"].(string); ok && v != "" {
			return v
		}
	}
	return string(source) + ":anonymous"
}
