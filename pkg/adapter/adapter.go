package adapter

import (
	"context"
	"embed"
	"fmt"
	"sort"

	"github.com/imago-ai/imago/pkg/types"
)

// Adapter translates between one framework's native document shape and the
// canonical statement set. Implementations must be stateless and safe for
// concurrent use; all five shipped frameworks share one generic mapping
// engine driven by a declarative table, so a new framework is a new table,
// not a new code path.
type Adapter interface {
	// Framework returns the framework tag this adapter serves.
	Framework() types.Framework

	// ToCanonical maps known native fields to canonical predicates and
	// routes every unmapped field into the extension list. Nothing is
	// dropped: fidelity reports mapped/total and the warnings name each
	// field that found no predicate.
	ToCanonical(ctx context.Context, agentID string, native map[string]any) (*types.CanonicalAgent, error)

	// FromCanonical reconstructs a native document. Extensions recorded for
	// this framework are restored before defaults apply; extensions from
	// other frameworks degrade fidelity with a warning, never fail.
	FromCanonical(ctx context.Context, agent *types.CanonicalAgent) (map[string]any, []types.FidelityWarning, error)

	// ValidateNative checks a native document against the framework's
	// required fields.
	ValidateNative(native map[string]any) *types.ValidationResult
}

//go:embed mappings/*.yaml
var embeddedMappings embed.FS

// Registry holds the adapters known to one orchestrator instance. It is
// constructor-supplied state, never a package singleton.
type Registry struct {
	adapters map[types.Framework]Adapter
}

// NewRegistry loads every embedded mapping table and returns a registry of
// the adapters they define.
func NewRegistry() (*Registry, error) {
	r := &Registry{adapters: make(map[types.Framework]Adapter)}

	entries, err := embeddedMappings.ReadDir("mappings")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded mapping tables: %w", err)
	}
	for _, entry := range entries {
		raw, err := embeddedMappings.ReadFile("mappings/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read mapping table %s: %w", entry.Name(), err)
		}
		table, err := ParseMappingTable(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mapping table %s: %w", entry.Name(), err)
		}
		r.Register(NewMappingAdapter(table))
	}
	return r, nil
}

// Register adds or replaces the adapter for its framework.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Framework()] = a
}

// Get returns the adapter for a framework.
func (r *Registry) Get(framework types.Framework) (Adapter, error) {
	a, ok := r.adapters[framework]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrAdapterNotFound, framework)
	}
	return a, nil
}

// Frameworks lists the registered framework tags, sorted.
func (r *Registry) Frameworks() []types.Framework {
	out := make([]types.Framework, 0, len(r.adapters))
	for f := range r.adapters {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
