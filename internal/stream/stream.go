// Package stream reads a newline-delimited JSON change stream and keeps it
// connected until it is canceled.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onyx-dev/onyx-database-go/internal/debug"
	"github.com/onyx-dev/onyx-database-go/internal/jsonx"
	"github.com/onyx-dev/onyx-database-go/pkg/query"
)

// DefaultReconnectDelay is the pause between a dropped connection and the
// next attempt.
const DefaultReconnectDelay = time.Second

// State is the lifecycle position of a Handle.
type State int32

const (
	StateConnecting State = iota
	StateReading
	StateReconnecting
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReading:
		return "reading"
	case StateReconnecting:
		return "reconnecting"
	case StateCanceled:
		return "canceled"
	}
	return "unknown"
}

// Opener starts one connection and returns its body. It is called again
// after every drop; ctx is canceled by Handle.Cancel.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Metrics is notified about reconnects and dispatched records.
type Metrics interface {
	ObserveStreamReconnect()
	ObserveStreamEvent(action string)
}

// Options tune a stream. Zero values pick the defaults.
type Options struct {
	ReconnectDelay time.Duration
	Logger         *slog.Logger
	Metrics        Metrics
}

// Handle owns one live stream. A single supervising goroutine holds the
// connection, so there is never more than one reader.
type Handle struct {
	ctx    context.Context
	stop   context.CancelFunc
	open   Opener
	events query.StreamEvents
	delay  time.Duration
	log    *slog.Logger
	stats  Metrics

	state    atomic.Int32
	canceled atomic.Bool
	once     sync.Once
	done     chan struct{}

	mu   sync.Mutex
	body io.ReadCloser
}

type record struct {
	Action query.StreamAction `json:"action"`
	Entity json.RawMessage    `json:"entity"`
}

// Open connects once and returns the error of that first attempt, if any.
// After that, drops are retried every ReconnectDelay until Cancel.
func Open(ctx context.Context, open Opener, events query.StreamEvents, opts Options) (*Handle, error) {
	h := &Handle{
		open:   open,
		events: events,
		delay:  opts.ReconnectDelay,
		log:    opts.Logger,
		stats:  opts.Metrics,
		done:   make(chan struct{}),
	}
	if h.delay <= 0 {
		h.delay = DefaultReconnectDelay
	}
	if h.log == nil {
		h.log = debug.With("component", "stream")
	}
	// The stream outlives the call that opened it; only Cancel stops it.
	h.ctx, h.stop = context.WithCancel(context.WithoutCancel(ctx))

	h.setState(StateConnecting)
	body, err := open(h.ctx)
	if err != nil {
		h.stop()
		h.setState(StateCanceled)
		close(h.done)
		return nil, err
	}
	h.setBody(body)
	go h.supervise(body)
	return h, nil
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Done is closed when the supervising goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel stops the stream. It is safe to call more than once and from a
// listener. No listener starts after Cancel returns; one that was already
// running may finish.
func (h *Handle) Cancel() {
	h.once.Do(func() {
		h.canceled.Store(true)
		h.stop()
		h.closeBody()
		h.log.Debug("stream canceled")
	})
}

func (h *Handle) supervise(body io.ReadCloser) {
	defer close(h.done)
	defer h.setState(StateCanceled)

	for {
		h.setState(StateReading)
		err := h.read(body)
		h.closeBody()
		if h.canceled.Load() {
			return
		}
		h.log.Debug("stream dropped", "error", err)

		for {
			h.setState(StateReconnecting)
			if h.stats != nil {
				h.stats.ObserveStreamReconnect()
			}
			if !h.sleep() {
				return
			}
			h.setState(StateConnecting)
			body, err = h.open(h.ctx)
			if err == nil {
				break
			}
			if h.canceled.Load() {
				return
			}
			h.log.Warn("stream reconnect failed", "error", err, "retryIn", h.delay)
		}
		h.setBody(body)
		if h.canceled.Load() {
			h.closeBody()
			return
		}
	}
}

func (h *Handle) sleep() bool {
	timer := time.NewTimer(h.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !h.canceled.Load()
	case <-h.ctx.Done():
		return false
	}
}

// read frames body into lines and dispatches each complete one. A trailing
// line without a newline is discarded.
func (h *Handle) read(body io.Reader) error {
	r := bufio.NewReader(body)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if h.canceled.Load() {
			return context.Canceled
		}
		h.handleLine(line)
	}
}

func (h *Handle) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	var rec record
	if err := jsonx.Unmarshal(line, &rec); err != nil {
		h.log.Debug("dropping malformed stream line", "error", err)
		return
	}
	h.dispatch(rec)
}

func (h *Handle) dispatch(rec record) {
	if h.stats != nil {
		h.stats.ObserveStreamEvent(string(rec.Action))
	}
	ev := h.events
	switch rec.Action {
	case query.ActionCreate:
		if ev.OnItemAdded != nil && !h.canceled.Load() {
			ev.OnItemAdded(rec.Entity)
		}
	case query.ActionUpdate:
		if ev.OnItemUpdated != nil && !h.canceled.Load() {
			ev.OnItemUpdated(rec.Entity)
		}
	case query.ActionDelete:
		if ev.OnItemDeleted != nil && !h.canceled.Load() {
			ev.OnItemDeleted(rec.Entity)
		}
	}
	if rec.Action != query.ActionKeepAlive && ev.OnItem != nil && !h.canceled.Load() {
		ev.OnItem(rec.Entity, rec.Action)
	}
}

func (h *Handle) setState(s State) {
	h.state.Store(int32(s))
}

func (h *Handle) setBody(body io.ReadCloser) {
	h.mu.Lock()
	h.body = body
	h.mu.Unlock()
}

func (h *Handle) closeBody() {
	h.mu.Lock()
	body := h.body
	h.body = nil
	h.mu.Unlock()
	if body != nil {
		_ = body.Close()
	}
}
