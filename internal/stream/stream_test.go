package stream_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onyx-dev/onyx-database-go/internal/stream"
	"github.com/onyx-dev/onyx-database-go/pkg/query"
)

type collector struct {
	mu      sync.Mutex
	added   []string
	updated []string
	deleted []string
	actions []query.StreamAction
}

func (c *collector) events() query.StreamEvents {
	add := func(dst *[]string) func(json.RawMessage) {
		return func(raw json.RawMessage) {
			c.mu.Lock()
			defer c.mu.Unlock()
			*dst = append(*dst, string(raw))
		}
	}
	return query.StreamEvents{
		OnItemAdded:   add(&c.added),
		OnItemUpdated: add(&c.updated),
		OnItemDeleted: add(&c.deleted),
		OnItem: func(_ json.RawMessage, a query.StreamAction) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.actions = append(c.actions, a)
		},
	}
}

type countingMetrics struct {
	reconnects atomic.Int32
	events     atomic.Int32
}

func (m *countingMetrics) ObserveStreamReconnect()    { m.reconnects.Add(1) }
func (m *countingMetrics) ObserveStreamEvent(string) { m.events.Add(1) }

func waitDone(t *testing.T, h *stream.Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestStreamDispatchAndReconnect(t *testing.T) {
	body := strings.Join([]string{
		`{"action":"CREATE","entity":{"id":1}}`,
		`{"action":"KEEP_ALIVE"}`,
		`not json`,
		``,
		`{"action":"UPDATE","entity":{"id":2}}`,
		`{"action":"DELETE","entity":{"id":3}}`,
		`{"action":"QUERY_RESPONSE","entity":{"id":4}}`,
		`{"action":"CREATE","entity":{"id":5}}`,
	}, "\n")

	var opens atomic.Int32
	open := func(ctx context.Context) (io.ReadCloser, error) {
		if opens.Add(1) == 1 {
			return io.NopCloser(strings.NewReader(body)), nil
		}
		// Later connections stay open until the stream is canceled.
		r, _ := io.Pipe()
		return r, nil
	}

	c := &collector{}
	m := &countingMetrics{}
	h, err := stream.Open(context.Background(), open, c.events(), stream.Options{
		ReconnectDelay: 5 * time.Millisecond,
		Metrics:        m,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return opens.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.State() == stream.StateReading }, 2*time.Second, 5*time.Millisecond)

	c.mu.Lock()
	assert.Equal(t, []string{`{"id":1}`}, c.added)
	assert.Equal(t, []string{`{"id":2}`}, c.updated)
	assert.Equal(t, []string{`{"id":3}`}, c.deleted)
	assert.Equal(t, []query.StreamAction{
		query.ActionCreate, query.ActionUpdate, query.ActionDelete, query.ActionQueryResponse,
	}, c.actions)
	c.mu.Unlock()

	assert.Equal(t, int32(5), m.events.Load())
	assert.Equal(t, int32(1), m.reconnects.Load())

	h.Cancel()
	h.Cancel()
	waitDone(t, h)
	assert.Equal(t, stream.StateCanceled, h.State())
	assert.Equal(t, int32(2), opens.Load())
}

func TestStreamFirstConnectError(t *testing.T) {
	refused := errors.New("connection refused")
	h, err := stream.Open(context.Background(), func(context.Context) (io.ReadCloser, error) {
		return nil, refused
	}, query.StreamEvents{}, stream.Options{})
	assert.ErrorIs(t, err, refused)
	assert.Nil(t, h)
}

func TestCancelFromListenerStopsDelivery(t *testing.T) {
	r, w := io.Pipe()
	var opens atomic.Int32
	open := func(context.Context) (io.ReadCloser, error) {
		opens.Add(1)
		return r, nil
	}

	var (
		handle atomic.Pointer[stream.Handle]
		calls  atomic.Int32
	)
	events := query.StreamEvents{
		OnItemAdded: func(json.RawMessage) {
			calls.Add(1)
			handle.Load().Cancel()
		},
	}
	h, err := stream.Open(context.Background(), open, events, stream.Options{ReconnectDelay: time.Millisecond})
	require.NoError(t, err)
	handle.Store(h)

	_, err = w.Write([]byte(`{"action":"CREATE","entity":{"id":1}}` + "\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"action":"CREATE","entity":{"id":2}}` + "\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	waitDone(t, h)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), opens.Load())
}

func TestStreamOutlivesOpeningContext(t *testing.T) {
	r, w := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 1)
	h, err := stream.Open(ctx, func(context.Context) (io.ReadCloser, error) { return r, nil },
		query.StreamEvents{OnItemUpdated: func(raw json.RawMessage) { got <- string(raw) }},
		stream.Options{})
	require.NoError(t, err)
	defer h.Cancel()

	cancel()
	_, err = w.Write([]byte(`{"action":"UPDATE","entity":"x"}` + "\n"))
	require.NoError(t, err)

	select {
	case raw := <-got:
		assert.Equal(t, `"x"`, raw)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after the opening context was canceled")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", stream.StateConnecting.String())
	assert.Equal(t, "reconnecting", stream.StateReconnecting.String())
	assert.Equal(t, "unknown", stream.State(42).String())
}
