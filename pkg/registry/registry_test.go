package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFromRemoteSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"name":"mcp","version":"2024-11-05"}`))
	}))
	defer srv.Close()

	r := New(&Options{Sources: map[string][]string{"mcp": {srv.URL}}})
	res, err := r.ResolveSpecification(context.Background(), "mcp")
	require.NoError(t, err)

	assert.False(t, res.IsFallback)
	assert.Equal(t, srv.URL, res.SourceURL)
	assert.Equal(t, "2024-11-05", res.Document["version"])
}

func TestResolveRepairsMalformedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Trailing comma and single quotes: broken JSON, repairable.
		w.Write([]byte(`{'name': 'mcp', 'version': '2024-11-05',}`))
	}))
	defer srv.Close()

	r := New(&Options{Sources: map[string][]string{"mcp": {srv.URL}}})
	res, err := r.ResolveSpecification(context.Background(), "mcp")
	require.NoError(t, err)

	assert.False(t, res.IsFallback)
	assert.Equal(t, "mcp", res.Document["name"])
}

func TestResolveTriesSourcesInOrder(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"name":"a2a"}`))
	}))
	defer good.Close()

	r := New(&Options{Sources: map[string][]string{"a2a": {bad.URL, good.URL}}})
	res, err := r.ResolveSpecification(context.Background(), "a2a")
	require.NoError(t, err)

	assert.False(t, res.IsFallback)
	assert.Equal(t, good.URL, res.SourceURL)
}

func TestResolveFallsBackToEmbeddedSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := New(&Options{Sources: map[string][]string{"mcp": {srv.URL}}})
	res, err := r.ResolveSpecification(context.Background(), "mcp")
	require.NoError(t, err)

	assert.True(t, res.IsFallback)
	assert.Equal(t, "embedded:mcp", res.SourceURL)
	assert.Equal(t, "mcp", res.Document["name"])
}

func TestResolveNoSourcesUsesEmbedded(t *testing.T) {
	r := New(nil)
	res, err := r.ResolveSpecification(context.Background(), "a2a")
	require.NoError(t, err)

	assert.True(t, res.IsFallback)
	assert.Equal(t, "a2a", res.Document["name"])
}

// An unknown protocol with no sources and no embedded schema still resolves:
// the stub is the floor, never an error.
func TestResolveUnknownProtocolGeneratesStub(t *testing.T) {
	r := New(nil)
	res, err := r.ResolveSpecification(context.Background(), "acp")
	require.NoError(t, err)

	assert.True(t, res.IsFallback)
	assert.Empty(t, res.SourceURL)
	assert.Equal(t, "acp", res.Document["name"])
	assert.Equal(t, true, res.Document["stub"])
}

func TestResolveCancelledContext(t *testing.T) {
	r := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ResolveSpecification(ctx, "mcp")
	assert.ErrorIs(t, err, context.Canceled)
}

// Repeated source failures open the breaker; resolution keeps working off
// the embedded fallback without waiting on the dead remote.
func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := New(&Options{Sources: map[string][]string{"mcp": {srv.URL}}})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		res, err := r.ResolveSpecification(ctx, "mcp")
		require.NoError(t, err)
		assert.True(t, res.IsFallback)
	}
	// Once open, the breaker short-circuits without hitting the server.
	assert.Less(t, calls, 10)
}
