package imago

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/imago-ai/imago/pkg/adapter"
	"github.com/imago-ai/imago/pkg/alert"
	"github.com/imago-ai/imago/pkg/bridge"
	"github.com/imago-ai/imago/pkg/config"
	"github.com/imago-ai/imago/pkg/query"
	"github.com/imago-ai/imago/pkg/registry"
	"github.com/imago-ai/imago/pkg/resolver"
	"github.com/imago-ai/imago/pkg/store"
	"github.com/imago-ai/imago/pkg/types"
)

// Client composes the bi-temporal store, the translation orchestrator, the
// conflict resolver and the specification registry behind the Imago
// interface. All state is owned by the instance; two clients over different
// record logs are fully independent.
type Client struct {
	store    *store.Store
	bridge   *bridge.Orchestrator
	resolver *resolver.Resolver
	registry *registry.Registry
	logger   *slog.Logger
	clock    func() time.Time
}

// Options tunes client construction.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Clock defaults to time.Now; tests substitute a fixed clock.
	Clock func() time.Time
	// RecordLog overrides the backend the config would select. Tests pass
	// store.NewMemoryLog().
	RecordLog store.RecordLog
}

// New builds a client from configuration: opens (or creates) the record log
// backend, replays it, loads the embedded adapter tables, and wires the
// orchestrator and registry.
func New(ctx context.Context, cfg *config.Config, opts *Options) (*Client, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	recordLog := opts.RecordLog
	if recordLog == nil {
		var err error
		recordLog, err = store.NewRecordLog(&cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to open record log: %w", err)
		}
	}

	st, err := store.Open(ctx, recordLog, &store.Options{Logger: logger, Clock: opts.Clock})
	if err != nil {
		recordLog.Close()
		return nil, err
	}

	adapters, err := adapter.NewRegistry()
	if err != nil {
		st.Close()
		return nil, err
	}

	var alerter alert.Alerter
	if cfg.Alert.Enabled {
		alerter = alert.NewEmailAlerter(cfg.Alert)
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	timeout := time.Duration(cfg.Registry.TimeoutSeconds) * time.Second
	return &Client{
		clock: clock,
		store: st,
		bridge: bridge.New(adapters, st, &bridge.Options{
			CacheSize:         cfg.Bridge.CacheSize,
			Logger:            logger,
			Alerter:           alerter,
			FidelityThreshold: cfg.Alert.FidelityThreshold,
		}),
		resolver: resolver.New(st, &resolver.Options{Logger: logger}),
		registry: registry.New(&registry.Options{Sources: cfg.Registry.Sources, Timeout: timeout, Logger: logger}),
		logger:   logger,
	}, nil
}

// Close releases the underlying record log.
func (c *Client) Close() error {
	return c.store.Close()
}

// CreateSnapshot implements Archivist.
func (c *Client) CreateSnapshot(ctx context.Context, agentID string, statements []types.Statement, opts *store.WriteOptions) (*types.Graph, error) {
	return c.store.CreateSnapshot(ctx, agentID, statements, opts)
}

// RecordCorrection implements Archivist.
func (c *Client) RecordCorrection(ctx context.Context, agentID string, statements []types.Statement, correction types.CorrectionType, reason string, opts *store.WriteOptions) (*types.Graph, error) {
	return c.store.RecordCorrection(ctx, agentID, statements, correction, reason, opts)
}

// InsertLateArriving implements Archivist.
func (c *Client) InsertLateArriving(ctx context.Context, agentID string, statements []types.Statement, validFrom time.Time, opts *store.LateOptions) ([]*types.Graph, error) {
	return c.store.InsertLateArriving(ctx, agentID, statements, validFrom, opts)
}

// Commit implements Archivist.
func (c *Client) Commit(ctx context.Context, agentID string, statements []types.Statement, base *types.AgentSnapshot) (*types.Graph, error) {
	return c.resolver.Commit(ctx, agentID, statements, base)
}

// GetSnapshot implements Archivist.
func (c *Client) GetSnapshot(ctx context.Context, agentID string, q *store.SnapshotQuery) (*types.AgentSnapshot, error) {
	return c.store.GetSnapshot(ctx, agentID, q)
}

// GetHistory implements Archivist.
func (c *Client) GetHistory(ctx context.Context, agentID string) ([]types.HistoryEntry, error) {
	return c.store.GetHistory(ctx, agentID)
}

// Translate implements Translator.
func (c *Client) Translate(ctx context.Context, native map[string]any, source, target types.Framework) (*bridge.TranslationResult, error) {
	return c.bridge.Translate(ctx, native, source, target)
}

// Morph implements Translator.
func (c *Client) Morph(ctx context.Context, agentID string, native map[string]any, source types.Framework) (*types.Graph, error) {
	return c.bridge.Morph(ctx, agentID, native, source)
}

// Validate implements Translator.
func (c *Client) Validate(ctx context.Context, native map[string]any, framework types.Framework) (*types.ValidationResult, error) {
	return c.bridge.Validate(ctx, native, framework)
}

// CompatibilityMatrix implements Translator.
func (c *Client) CompatibilityMatrix() []bridge.CompatibilityEntry {
	return c.bridge.CompatibilityMatrix()
}

// ResolveSpecification implements SpecResolver.
func (c *Client) ResolveSpecification(ctx context.Context, protocol string) (*registry.Resolution, error) {
	return c.registry.ResolveSpecification(ctx, protocol)
}

// Compact implements Maintainer.
func (c *Client) Compact(ctx context.Context, opts store.CompactOptions) (int, error) {
	return c.store.Compact(ctx, opts)
}

// Store exposes the underlying store for query-engine composition.
func (c *Client) Store() *store.Store {
	return c.store
}

// Query returns a temporal query engine over the client's store.
func (c *Client) Query() *query.Engine {
	return query.NewEngine(c.store, c.clock)
}
