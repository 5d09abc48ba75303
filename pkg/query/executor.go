package query

import (
	"context"
	"encoding/json"
)

// Executor sends compiled queries to the backend. The database facade
// implements it; tests substitute fakes.
type Executor interface {
	QueryPage(ctx context.Context, table string, q *SelectQuery, opts PageOptions) (*RawPage, error)
	Count(ctx context.Context, table string, q *SelectQuery, partition string) (int, error)
	DeleteByQuery(ctx context.Context, table string, q *SelectQuery, partition string) (int, error)
	UpdateByQuery(ctx context.Context, table string, q *UpdateQuery, partition string) (int, error)
	Stream(ctx context.Context, table string, q *SelectQuery, opts StreamOptions, events StreamEvents) (StreamHandle, error)
}

// PageOptions are the query-string parameters of a paged query.
type PageOptions struct {
	PageSize  int
	NextPage  string
	Partition string
}

// PageOption adjusts PageOptions for a single Page or List call.
type PageOption func(*PageOptions)

// WithPageSize requests n records per page.
func WithPageSize(n int) PageOption {
	return func(o *PageOptions) { o.PageSize = n }
}

// WithNextPage continues from a cursor returned by an earlier page.
func WithNextPage(token string) PageOption {
	return func(o *PageOptions) { o.NextPage = token }
}

// RawPage is an undecoded page as returned by the backend.
type RawPage struct {
	Records  []json.RawMessage `json:"records"`
	NextPage string            `json:"nextPage"`
}

// StreamAction tags each record of a change stream.
type StreamAction string

const (
	ActionCreate        StreamAction = "CREATE"
	ActionUpdate        StreamAction = "UPDATE"
	ActionDelete        StreamAction = "DELETE"
	ActionQueryResponse StreamAction = "QUERY_RESPONSE"
	ActionKeepAlive     StreamAction = "KEEP_ALIVE"
)

// StreamOptions control the stream request flags.
type StreamOptions struct {
	IncludeQueryResults bool
	KeepAlive           bool
}

// StreamEvents are the raw listeners a stream dispatches to. Nil
// listeners are skipped.
type StreamEvents struct {
	OnItemAdded   func(entity json.RawMessage)
	OnItemUpdated func(entity json.RawMessage)
	OnItemDeleted func(entity json.RawMessage)
	OnItem        func(entity json.RawMessage, action StreamAction)
}

// StreamHandle owns a live stream. Cancel is idempotent.
type StreamHandle interface {
	Cancel()
}
