package store

import (
	"context"
	"fmt"

	"github.com/imago-ai/imago/pkg/types"
)

// RecordLog is the persistence contract of the bi-temporal store: one
// append-only record per graph version plus a separate append-only
// supersession log. The store replays both on open to rebuild its arena and
// temporal index; the index is derived state and never the source of truth.
//
// Appends must be durable in call order. RemoveGraphs exists solely for
// compaction of records that have left the retention window.
type RecordLog interface {
	// AppendGraph appends one immutable graph version.
	AppendGraph(ctx context.Context, g *types.Graph) error

	// AppendSupersession appends one supersession event.
	AppendSupersession(ctx context.Context, s types.Supersession) error

	// ReplayGraphs streams every surviving graph record in append order.
	ReplayGraphs(ctx context.Context, fn func(*types.Graph) error) error

	// ReplaySupersessions streams every supersession event in append order.
	ReplaySupersessions(ctx context.Context, fn func(types.Supersession) error) error

	// RemoveGraphs physically deletes compacted graph records.
	RemoveGraphs(ctx context.Context, graphIDs []string) error

	// Close releases all resources held by the log.
	Close() error
}

// LogBackend selects a RecordLog implementation.
type LogBackend string

const (
	// LogBackendMemory keeps records in process memory. Tests and ephemeral use.
	LogBackendMemory LogBackend = "memory"
	// LogBackendBadger persists records to an embedded badger database.
	LogBackendBadger LogBackend = "badger"
	// LogBackendNeo4j persists records to a remote neo4j instance.
	LogBackendNeo4j LogBackend = "neo4j"
)

// LogConfig configures the record log factory.
type LogConfig struct {
	// Backend is the log implementation: "memory", "badger" (default), "neo4j".
	Backend LogBackend `mapstructure:"backend" json:"backend,omitempty"`

	// Path is the data directory for the badger backend.
	Path string `mapstructure:"path" json:"path,omitempty"`

	// URI, Username, Password and Database configure the neo4j backend.
	URI      string `mapstructure:"uri" json:"uri,omitempty"`
	Username string `mapstructure:"username" json:"username,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	Database string `mapstructure:"database" json:"database,omitempty"`
}

// NewRecordLog creates a RecordLog for the configured backend. An empty
// backend defaults to badger when a path is set, memory otherwise.
func NewRecordLog(cfg *LogConfig) (RecordLog, error) {
	if cfg == nil {
		cfg = &LogConfig{}
	}

	backend := cfg.Backend
	if backend == "" {
		if cfg.Path != "" {
			backend = LogBackendBadger
		} else {
			backend = LogBackendMemory
		}
	}

	switch backend {
	case LogBackendMemory:
		return NewMemoryLog(), nil
	case LogBackendBadger:
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger record log requires a path")
		}
		return NewBadgerLog(cfg.Path)
	case LogBackendNeo4j:
		if cfg.URI == "" {
			return nil, fmt.Errorf("neo4j record log requires a uri")
		}
		return NewNeo4jLog(cfg.URI, cfg.Username, cfg.Password, cfg.Database)
	default:
		return nil, fmt.Errorf("unsupported record log backend: %s (supported: memory, badger, neo4j)", backend)
	}
}
