package registry

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/sony/gobreaker"
)

//go:embed schemas/*.json
var embeddedSchemas embed.FS

// Resolution is the outcome of specification resolution. The registry never
// fails outright: when every source degrades, Document is the embedded
// fallback schema or a minimal generated stub and IsFallback is true.
type Resolution struct {
	Protocol   string         `json:"protocol"`
	Document   map[string]any `json:"document"`
	SourceURL  string         `json:"source_url,omitempty"`
	IsFallback bool           `json:"is_fallback"`
}

// Registry resolves protocol specification documents from an ordered list of
// remote sources, falling back to embedded schemas and finally a generated
// stub. Remote fetches run behind a circuit breaker with a bounded
// per-request timeout so resolution degrades instead of blocking.
type Registry struct {
	client  *http.Client
	sources map[string][]string
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	timeout time.Duration
}

// Options configures a Registry.
type Options struct {
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Sources maps a protocol name to its ordered specification URLs.
	Sources map[string][]string
	// Timeout bounds each remote fetch. Defaults to 5s.
	Timeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New returns a registry over the given sources.
func New(opts *Options) *Registry {
	if opts == nil {
		opts = &Options{}
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st := gobreaker.Settings{
		Name:    "specification-registry",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				logger.Warn("specification fetch circuit opened",
					slog.String("breaker", name),
					slog.String("from", from.String()))
			}
		},
	}

	return &Registry{
		client:  client,
		sources: opts.Sources,
		breaker: gobreaker.NewCircuitBreaker(st),
		logger:  logger,
		timeout: timeout,
	}
}

// ResolveSpecification resolves a protocol's specification document. It
// tries each configured URL in order, then the embedded fallback schema,
// then a minimal generated stub. An unresolvable specification is a
// degradation, not an error: the returned error is always nil unless the
// context is done.
func (r *Registry) ResolveSpecification(ctx context.Context, protocol string) (*Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, url := range r.sources[protocol] {
		doc, err := r.fetch(ctx, url)
		if err != nil {
			r.logger.WarnContext(ctx, "specification source degraded",
				slog.String("protocol", protocol),
				slog.String("url", url),
				slog.String("error", err.Error()))
			continue
		}
		return &Resolution{Protocol: protocol, Document: doc, SourceURL: url}, nil
	}

	if doc, ok := r.embeddedFallback(protocol); ok {
		r.logger.InfoContext(ctx, "using embedded fallback schema",
			slog.String("protocol", protocol))
		return &Resolution{Protocol: protocol, Document: doc, SourceURL: "embedded:" + protocol, IsFallback: true}, nil
	}

	r.logger.WarnContext(ctx, "specification unresolvable, generating stub",
		slog.String("protocol", protocol))
	return &Resolution{Protocol: protocol, Document: stubDocument(protocol), IsFallback: true}, nil
}

func (r *Registry) fetch(ctx context.Context, url string) (map[string]any, error) {
	raw, err := r.breaker.Execute(func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}

	body := raw.([]byte)
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		// Remote registries serve malformed JSON often enough to be worth a
		// repair pass before giving up on the source.
		repaired, repairErr := jsonrepair.JSONRepair(string(body))
		if repairErr != nil {
			return nil, fmt.Errorf("malformed document: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
			return nil, fmt.Errorf("document unusable after repair: %w", err)
		}
	}
	return doc, nil
}

func (r *Registry) embeddedFallback(protocol string) (map[string]any, bool) {
	raw, err := embeddedSchemas.ReadFile("schemas/" + protocol + ".json")
	if err != nil {
		return nil, false
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// stubDocument is the last resort: enough shape for a caller to proceed.
func stubDocument(protocol string) map[string]any {
	return map[string]any{
		"name":    protocol,
		"version": "unknown",
		"stub":    true,
		"schema": map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}
