package onyx

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/onyx-dev/onyx-database-go/internal/stream"
	"github.com/onyx-dev/onyx-database-go/pkg/query"
	"github.com/onyx-dev/onyx-database-go/pkg/transport"
)

// executor runs compiled queries for the builders of one DB.
type executor struct {
	db *DB
}

var _ query.Executor = executor{}

func (db *DB) executor() query.Executor {
	return executor{db: db}
}

func (e executor) QueryPage(ctx context.Context, table string, q *query.SelectQuery, opts query.PageOptions) (*query.RawPage, error) {
	client, res, err := e.db.conn()
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	if opts.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	if opts.NextPage != "" {
		params.Set("nextPage", opts.NextPage)
	}
	if opts.Partition != "" {
		params.Set("partition", opts.Partition)
	}
	var page query.RawPage
	path := transport.QueryPath(res.DatabaseID, transport.QueryPage, table)
	if err := client.Do(ctx, http.MethodPut, path, params, q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (e executor) Count(ctx context.Context, table string, q *query.SelectQuery, partition string) (int, error) {
	return e.counted(ctx, transport.QueryCount, table, q, partition)
}

func (e executor) DeleteByQuery(ctx context.Context, table string, q *query.SelectQuery, partition string) (int, error) {
	return e.counted(ctx, transport.QueryDelete, table, q, partition)
}

func (e executor) UpdateByQuery(ctx context.Context, table string, q *query.UpdateQuery, partition string) (int, error) {
	return e.counted(ctx, transport.QueryUpdate, table, q, partition)
}

func (e executor) counted(ctx context.Context, kind, table string, body any, partition string) (int, error) {
	client, res, err := e.db.conn()
	if err != nil {
		return 0, err
	}
	var n int
	path := transport.QueryPath(res.DatabaseID, kind, table)
	if err := client.Do(ctx, http.MethodPut, path, partitionParams(partition), body, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (e executor) Stream(ctx context.Context, table string, q *query.SelectQuery, opts query.StreamOptions, events query.StreamEvents) (query.StreamHandle, error) {
	params := url.Values{}
	params.Set("includeQueryResults", strconv.FormatBool(opts.IncludeQueryResults))
	params.Set("keepAlive", strconv.FormatBool(opts.KeepAlive))

	// Every attempt resolves the connection again so reconnects pick up
	// rotated credentials.
	open := func(ctx context.Context) (io.ReadCloser, error) {
		client, res, err := e.db.conn()
		if err != nil {
			return nil, err
		}
		path := transport.QueryPath(res.DatabaseID, transport.QueryStream, table)
		resp, err := client.Stream(ctx, http.MethodPut, path, params, q)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}
	sopts := stream.Options{
		ReconnectDelay: e.db.reconnectDelay,
		Logger:         e.db.log,
	}
	if e.db.metrics != nil {
		sopts.Metrics = e.db.metrics
	}
	h, err := stream.Open(ctx, open, events, sopts)
	if err != nil {
		return nil, err
	}
	if err := e.db.register(h); err != nil {
		h.Cancel()
		return nil, err
	}
	return h, nil
}

// register tracks h until it finishes so Close can cancel it.
func (db *DB) register(h *stream.Handle) error {
	id := uuid.NewString()
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrClosed
	}
	db.streams[id] = h
	db.mu.Unlock()
	db.logger().Debug("stream registered", "id", id)

	go func() {
		<-h.Done()
		db.mu.Lock()
		delete(db.streams, id)
		db.mu.Unlock()
	}()
	return nil
}

// OpenStreams returns the number of live streams.
func (db *DB) OpenStreams() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.streams)
}

func partitionParams(partition string) url.Values {
	if partition == "" {
		return nil
	}
	return url.Values{"partition": {partition}}
}
