package bmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetResponsesAreCachedWithinTTL(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/eadrax-vcs/v4/vehicles", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"vin": "WBA123"}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, &memStore{tok: validToken()})

	for range 3 {
		vehicles, err := c.Vehicles(context.Background())
		require.NoError(t, err)
		require.Len(t, vehicles, 1)
		assert.Equal(t, "WBA123", vehicles[0].VIN)
	}

	assert.Equal(t, int32(1), calls.Load())
}

func TestPostInvalidatesGetCache(t *testing.T) {
	var gets atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/thing", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, &memStore{tok: validToken()})
	ctx := context.Background()

	require.NoError(t, c.getJSON(ctx, "/thing", nil, time.Minute, nil))
	require.NoError(t, c.getJSON(ctx, "/thing", nil, time.Minute, nil))
	assert.Equal(t, int32(1), gets.Load())

	require.NoError(t, c.postJSON(ctx, "/thing", nil))

	require.NoError(t, c.getJSON(ctx, "/thing", nil, time.Minute, nil))
	assert.Equal(t, int32(2), gets.Load())
}

func TestUnauthorizedTriggersOneReloginThenRetries(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	registerOAuth(mux, srv.URL)

	mux.HandleFunc("/guarded", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"answer": 42}`))
	})

	c := newTestClient(t, srv, &memStore{tok: validToken()})

	var out struct {
		Answer int `json:"answer"`
	}
	require.NoError(t, c.getJSON(context.Background(), "/guarded", nil, 0, &out))
	assert.Equal(t, 42, out.Answer)
}

func TestUnauthorizedTwiceIsAnError(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	registerOAuth(mux, srv.URL)

	mux.HandleFunc("/guarded", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	c := newTestClient(t, srv, &memStore{tok: validToken()})

	err := c.getJSON(context.Background(), "/guarded", nil, 0, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestRateLimitIsRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/thing", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, &memStore{tok: validToken()})

	require.NoError(t, c.getJSON(context.Background(), "/thing", nil, 0, nil))
	assert.Equal(t, int32(2), calls.Load())
}

func TestServerErrorIsRetriedAndClearsToken(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/thing", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := &memStore{tok: validToken()}
	c := newTestClient(t, srv, store)

	require.NoError(t, c.getJSON(context.Background(), "/thing", nil, 0, nil))
	assert.Equal(t, int32(2), calls.Load())
	assert.Nil(t, store.tok, "persistent 5xx should force a fresh login next time")
}

func TestRetryBudgetBoundsServerErrorLoop(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/thing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, &memStore{tok: validToken()}, WithRetryPolicy(RetryPolicy{
		ServerErrorDelay: 10 * time.Millisecond,
		RateLimitDelay:   10 * time.Millisecond,
		MaxElapsed:       5 * time.Millisecond,
	}))

	err := c.getJSON(context.Background(), "/thing", nil, 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry budget")
}

func TestBusyConflictIsSoftSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message": "vehicle is busy"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, &memStore{tok: validToken()})

	res, err := c.request(context.Background(), apiRequest{method: http.MethodPost, path: "/command"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, res.Status)
}

func TestNonBusyConflictIsAnError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message": "command rejected"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, &memStore{tok: validToken()})

	_, err := c.request(context.Background(), apiRequest{method: http.MethodPost, path: "/command"})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusConflict))
}

func TestRedirectBodyIsLocationHeader(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "com.bmw.connected://oauth?code=abc")
		w.WriteHeader(http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, &memStore{tok: validToken()})

	res, err := c.request(context.Background(), apiRequest{method: http.MethodGet, path: "/redirect"})
	require.NoError(t, err)
	assert.Equal(t, "com.bmw.connected://oauth?code=abc", string(res.Body))
}

func TestVehicleImageReturnsRawBytes(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	mux := http.NewServeMux()
	mux.HandleFunc("/eadrax-ics/v3/presentation/vehicles/WBA123/images", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "FrontView", r.URL.Query().Get("carView"))
		assert.Equal(t, "image/png", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, &memStore{tok: validToken()})

	got, err := c.VehicleImage(context.Background(), "WBA123", ViewFront)
	require.NoError(t, err)
	assert.Equal(t, png, got)
}

func TestFixedHeadersAreSent(t *testing.T) {
	var header http.Header
	mux := http.NewServeMux()
	mux.HandleFunc("/thing", func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, &memStore{tok: validToken()})
	require.NoError(t, c.getJSON(context.Background(), "/thing", nil, 0, nil))

	assert.Equal(t, UserAgent, header.Get("User-Agent"))
	assert.Equal(t, "android(SP1A.210812.016.C1);bmw;2.12.0(19883);na", header.Get("X-User-Agent"))
	assert.Equal(t, "session-1", header.Get("bmw-session-id"))
	assert.Equal(t, "d=KM;v=L", header.Get("bmw-units-preferences"))
	assert.Equal(t, "gcdm", header.Get("x-identity-provider"))
	assert.Equal(t, "never", header.Get("x-cluster-use-mock"))
	assert.NotEmpty(t, header.Get("x-correlation-id"))
	assert.Equal(t, header.Get("x-correlation-id"), header.Get("bmw-correlation-id"))
	assert.Equal(t, "Bearer stale-but-valid", header.Get("Authorization"))
}
