package adapterpool

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthyServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPoolGetCachesByEndpointAndKind(t *testing.T) {
	srv := healthyServer(t)
	p := New()

	a, err := p.Get(t.Context(), srv.URL, KindShip)
	require.NoError(t, err)

	b, err := p.Get(t.Context(), srv.URL, KindShip)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := p.Get(t.Context(), srv.URL, KindGull)
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	assert.Equal(t, 2, p.Size())
}

func TestPoolGetSingleFlightsConcurrentConstruction(t *testing.T) {
	var constructCount int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			mu.Lock()
			constructCount++
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Get(t.Context(), srv.URL, KindShip)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, p.Size())
	mu.Lock()
	assert.Equal(t, 1, constructCount)
	mu.Unlock()
}

func TestPoolGetRejectsUnknownKind(t *testing.T) {
	p := New()
	_, err := p.Get(t.Context(), "http://example.invalid", Kind("bogus"))
	require.Error(t, err)
}

func TestPoolEvict(t *testing.T) {
	srv := healthyServer(t)
	p := New()

	_, err := p.Get(t.Context(), srv.URL, KindShip)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Size())

	p.Evict(srv.URL, KindShip)
	assert.Equal(t, 0, p.Size())
}
