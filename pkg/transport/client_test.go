package transport_test

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyx-dev/onyx-database-go/pkg/transport"
)

type recorded struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   string
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.calls...)
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*transport.Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.calls = append(rec.calls, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query(),
			header: r.Header.Clone(),
			body:   string(body),
		})
		rec.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	retry := transport.DefaultRetryConfig()
	retry.InitialDelay = time.Millisecond
	retry.MaxDelay = 5 * time.Millisecond
	retry.Jitter = false

	c := transport.New(transport.Options{
		BaseURL:   srv.URL + "/",
		APIKey:    "key-1",
		APISecret: "secret-1",
		Retry:     retry,
	})
	return c, rec
}

func TestRequestHeaders(t *testing.T) {
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	ctx := context.Background()

	require.NoError(t, c.Do(ctx, http.MethodGet, "/data/db/User/1", nil, nil, nil))
	require.NoError(t, c.Do(ctx, http.MethodPut, "/data/db/User", nil, map[string]any{"id": "1"}, nil))
	require.NoError(t, c.Do(ctx, http.MethodDelete, "/data/db/User/1", url.Values{"relationships": {"roles"}}, nil, nil))

	all := calls.all()
	require.Len(t, all, 3)
	get, put, del := all[0], all[1], all[2]

	assert.Equal(t, "key-1", get.header.Get("x-onyx-key"))
	assert.Equal(t, "secret-1", get.header.Get("x-onyx-secret"))
	assert.Equal(t, "application/json", get.header.Get("Accept"))
	assert.Empty(t, get.header.Get("Content-Type"))

	assert.Equal(t, "application/json", put.header.Get("Content-Type"))
	assert.JSONEq(t, `{"id":"1"}`, put.body)

	assert.Equal(t, "return=representation", del.header.Get("Prefer"))
	assert.Equal(t, "roles", del.query.Get("relationships"))
	assert.Equal(t, "/data/db/User/1", del.path)
}

func TestHTTPErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"backend message", http.StatusBadRequest, `{"error":{"message":"field age is not an int"}}`, "field age is not an int"},
		{"status line", http.StatusNotFound, `not json`, "404 Not Found"},
		{"json without message", http.StatusConflict, `{"error":"nope"}`, "409 Conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			err := c.Do(context.Background(), http.MethodPut, "/x", nil, map[string]any{}, nil)
			require.Error(t, err)

			var he *transport.HTTPError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, tt.status, he.Status)
			assert.Equal(t, tt.body, he.RawBody)
			assert.Equal(t, tt.message, err.Error())
			assert.Equal(t, tt.status, transport.StatusCode(err))
			assert.Equal(t, tt.status == http.StatusNotFound, transport.IsNotFound(err))
		})
	}
}

func TestRetryAppliesToGetOnly(t *testing.T) {
	t.Run("get recovers after 503", func(t *testing.T) {
		var n atomic.Int32
		c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			if n.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"ok":true}`))
		})
		var out map[string]bool
		require.NoError(t, c.Do(context.Background(), http.MethodGet, "/x", nil, nil, &out))
		assert.True(t, out["ok"])
		assert.Equal(t, int32(3), n.Load())
	})

	t.Run("get gives up", func(t *testing.T) {
		c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil, nil)
		assert.ErrorIs(t, err, transport.ErrRetryExhausted)
		assert.Equal(t, http.StatusTooManyRequests, transport.StatusCode(err))
		assert.Len(t, calls.all(), 4)
	})

	t.Run("client errors are final", func(t *testing.T) {
		c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil, nil)
		assert.True(t, transport.IsNotFound(err))
		assert.NotErrorIs(t, err, transport.ErrRetryExhausted)
		assert.Len(t, calls.all(), 1)
	})

	t.Run("put is never retried", func(t *testing.T) {
		c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		err := c.Do(context.Background(), http.MethodPut, "/x", nil, map[string]any{}, nil)
		assert.Equal(t, http.StatusBadGateway, transport.StatusCode(err))
		assert.Len(t, calls.all(), 1)
	})
}

func TestNonFiniteValues(t *testing.T) {
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"score":NaN,"max":Infinity,"label":"NaN"}`))
	})
	var out map[string]any
	err := c.Do(context.Background(), http.MethodPut, "/x", nil, map[string]any{"score": math.NaN()}, &out)
	require.NoError(t, err)

	assert.JSONEq(t, `{"score":null}`, calls.all()[0].body)
	assert.Equal(t, map[string]any{"score": nil, "max": nil, "label": "NaN"}, out)
}

func TestDecodeFailureIsNotRetried(t *testing.T) {
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"broken":`))
	})
	var out map[string]any
	err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode GET /x response")
	assert.Len(t, calls.all(), 1)

	// An empty body is not an error.
	c2, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c2.Do(context.Background(), http.MethodGet, "/x", nil, nil, &out))
}

func TestStreamReturnsBodyOrError(t *testing.T) {
	c, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}
		_, _ = w.Write([]byte("{\"action\":\"KEEP_ALIVE\"}\n"))
	})

	res, err := c.Stream(context.Background(), http.MethodPut, "/s", nil, map[string]any{"type": "SelectQuery"})
	require.NoError(t, err)
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	assert.Equal(t, "{\"action\":\"KEEP_ALIVE\"}\n", string(data))

	_, err = c.Stream(context.Background(), http.MethodPut, "/s", url.Values{"fail": {"1"}}, nil)
	assert.EqualError(t, err, "bad key")
	assert.Len(t, calls.all(), 2)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, transport.IsRetryable(nil))
	assert.False(t, transport.IsRetryable(context.Canceled))
	assert.True(t, transport.IsRetryable(errors.New("connection reset")))
	assert.True(t, transport.IsRetryable(&transport.HTTPError{Status: 500}))
	assert.False(t, transport.IsRetryable(&transport.HTTPError{Status: 400}))
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "/data/db-1/User", transport.DataPath("db-1", "User"))
	assert.Equal(t, "/data/db-1/User/a%2Fb", transport.RecordPath("db-1", "User", "a/b"))
	assert.Equal(t, "/data/db-1/query/User", transport.QueryPath("db-1", transport.QueryPage, "User"))
	assert.Equal(t, "/data/db-1/query/count/User", transport.QueryPath("db-1", transport.QueryCount, "User"))
	assert.Equal(t, "/data/db-1/query/stream/User", transport.QueryPath("db-1", transport.QueryStream, "User"))
}
