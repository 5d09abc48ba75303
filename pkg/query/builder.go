package query

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/onyx-dev/onyx-database-go/internal/debug"
)

type builderMode int

const (
	modeSelect builderMode = iota
	modeUpdate
)

func (m builderMode) String() string {
	if m == modeUpdate {
		return "update"
	}
	return "select"
}

type listeners[T any] struct {
	added   func(T)
	updated func(T)
	deleted func(T)
	item    func(T, StreamAction)
}

// Builder accumulates the state of one query or bulk update against a
// table and compiles it into a SelectQuery or UpdateQuery when a verb
// runs. A Builder is owned by one caller and stays reusable after a verb.
//
// Setters never fail; the first problem found while chaining is kept and
// returned by the next verb.
type Builder[T any] struct {
	exec      Executor
	table     string
	fields    []string
	resolvers []string
	cond      *ConditionBuilder
	sort      []Sort
	groupBy   []string
	distinct  bool
	limit     *int
	partition string
	pageSize  int
	nextPage  string
	updates   map[string]any
	mode      builderMode
	listeners listeners[T]
}

// New returns a select-mode builder for table. The table may be empty and
// set later with From.
func New[T any](exec Executor, table string) *Builder[T] {
	return &Builder[T]{exec: exec, table: table}
}

// From sets the target table.
func (b *Builder[T]) From(table string) *Builder[T] {
	b.table = table
	return b
}

// Table returns the target table.
func (b *Builder[T]) Table() string { return b.table }

// SelectFields restricts the returned fields. No fields means all fields.
func (b *Builder[T]) SelectFields(fields ...string) *Builder[T] {
	b.fields = nilIfEmpty(fields)
	return b
}

// Resolve names relationship resolvers to materialize inline.
func (b *Builder[T]) Resolve(names ...string) *Builder[T] {
	b.resolvers = nilIfEmpty(names)
	return b
}

// Where is And under a more readable name.
func (b *Builder[T]) Where(src ConditionSource) *Builder[T] {
	return b.And(src)
}

// And joins src to the builder's condition with AND.
func (b *Builder[T]) And(src ConditionSource) *Builder[T] {
	if b.cond == nil {
		b.cond = &ConditionBuilder{}
	}
	b.cond.And(src)
	return b
}

// Or joins src to the builder's condition with OR.
func (b *Builder[T]) Or(src ConditionSource) *Builder[T] {
	if b.cond == nil {
		b.cond = &ConditionBuilder{}
	}
	b.cond.Or(src)
	return b
}

// OrderBy appends sort keys.
func (b *Builder[T]) OrderBy(sorts ...Sort) *Builder[T] {
	b.sort = append(b.sort, sorts...)
	return b
}

// GroupBy sets the grouping fields.
func (b *Builder[T]) GroupBy(fields ...string) *Builder[T] {
	b.groupBy = nilIfEmpty(fields)
	return b
}

// Distinct removes duplicate rows from the result.
func (b *Builder[T]) Distinct() *Builder[T] {
	b.distinct = true
	return b
}

// Limit caps the number of records returned.
func (b *Builder[T]) Limit(n int) *Builder[T] {
	b.limit = &n
	return b
}

// InPartition scopes the query to a partition.
func (b *Builder[T]) InPartition(partition string) *Builder[T] {
	b.partition = partition
	return b
}

// PageSize sets the page size. It wins over WithPageSize.
func (b *Builder[T]) PageSize(n int) *Builder[T] {
	b.pageSize = n
	return b
}

// NextPage sets the continuation cursor. It wins over WithNextPage.
func (b *Builder[T]) NextPage(token string) *Builder[T] {
	b.nextPage = token
	return b
}

// SetUpdates switches the builder to update mode for good and stores the
// field assignments applied by Update.
func (b *Builder[T]) SetUpdates(updates map[string]any) *Builder[T] {
	b.mode = modeUpdate
	b.updates = maps.Clone(updates)
	return b
}

// OnItemAdded registers the CREATE listener for Stream.
func (b *Builder[T]) OnItemAdded(fn func(T)) *Builder[T] {
	b.listeners.added = fn
	return b
}

// OnItemUpdated registers the UPDATE listener for Stream.
func (b *Builder[T]) OnItemUpdated(fn func(T)) *Builder[T] {
	b.listeners.updated = fn
	return b
}

// OnItemDeleted registers the DELETE listener for Stream.
func (b *Builder[T]) OnItemDeleted(fn func(T)) *Builder[T] {
	b.listeners.deleted = fn
	return b
}

// OnItem registers a listener called for every streamed action except
// KEEP_ALIVE.
func (b *Builder[T]) OnItem(fn func(T, StreamAction)) *Builder[T] {
	b.listeners.item = fn
	return b
}

// HasCondition reports whether Where, And or Or has been called.
func (b *Builder[T]) HasCondition() bool {
	return b.cond != nil
}

// SelectQuery compiles the builder into a read request. The result shares
// nothing mutable with the builder.
func (b *Builder[T]) SelectQuery() (*SelectQuery, error) {
	cond, err := b.condition()
	if err != nil {
		return nil, err
	}
	q := &SelectQuery{
		Type:       "SelectQuery",
		Fields:     slices.Clone(b.fields),
		Conditions: cond,
		Sort:       slices.Clone(b.sort),
		Distinct:   b.distinct,
		GroupBy:    slices.Clone(b.groupBy),
		Resolvers:  slices.Clone(b.resolvers),
	}
	if b.limit != nil {
		n := *b.limit
		q.Limit = &n
	}
	if b.partition != "" {
		p := b.partition
		q.Partition = &p
	}
	return q, nil
}

// UpdateQuery compiles the builder into a bulk update request.
func (b *Builder[T]) UpdateQuery() (*UpdateQuery, error) {
	cond, err := b.condition()
	if err != nil {
		return nil, err
	}
	q := &UpdateQuery{
		Type:       "UpdateQuery",
		Conditions: cond,
		Updates:    maps.Clone(b.updates),
		Sort:       slices.Clone(b.sort),
	}
	if b.limit != nil {
		n := *b.limit
		q.Limit = &n
	}
	if b.partition != "" {
		p := b.partition
		q.Partition = &p
	}
	return q, nil
}

// CompileSubQuery makes a builder usable as an IN / NOT IN value.
func (b *Builder[T]) CompileSubQuery() (*SubQuery, error) {
	if b.table == "" {
		return nil, domainError("sub-query", ErrMissingTable, "table not defined for sub-query")
	}
	if b.mode == modeUpdate {
		return nil, domainError("sub-query", ErrWrongMode, "an update builder cannot be used as a sub-query")
	}
	q, err := b.SelectQuery()
	if err != nil {
		return nil, err
	}
	return &SubQuery{SelectQuery: q, Table: b.table}, nil
}

// Count returns the number of records matching the condition.
func (b *Builder[T]) Count(ctx context.Context) (int, error) {
	q, err := b.compileSelect("count")
	if err != nil {
		return 0, err
	}
	return b.exec.Count(ctx, b.table, q, b.partition)
}

// Page fetches one page. Builder PageSize and NextPage take precedence
// over the call options.
func (b *Builder[T]) Page(ctx context.Context, opts ...PageOption) (*QueryPage[T], error) {
	q, err := b.compileSelect("page")
	if err != nil {
		return nil, err
	}
	var po PageOptions
	for _, opt := range opts {
		opt(&po)
	}
	if b.pageSize > 0 {
		po.PageSize = b.pageSize
	}
	if b.nextPage != "" {
		po.NextPage = b.nextPage
	}
	po.Partition = b.partition

	debug.Debug("query page", "table", b.table, "pageSize", po.PageSize, "nextPage", po.NextPage)
	raw, err := b.exec.QueryPage(ctx, b.table, q, po)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords[T](raw.Records)
	if err != nil {
		return nil, fmt.Errorf("decode %s page: %w", b.table, err)
	}
	return &QueryPage[T]{Records: records, NextPage: raw.NextPage}, nil
}

// List fetches the first page and binds a fetcher that follows the
// continuation cursor. Later changes to b do not affect the fetcher.
func (b *Builder[T]) List(ctx context.Context, opts ...PageOption) (*Results[T], error) {
	base := b.clone()
	page, err := base.Page(ctx, opts...)
	if err != nil {
		return nil, err
	}
	fetch := func(ctx context.Context, token string) (*QueryPage[T], error) {
		next := base.clone()
		next.nextPage = token
		return next.Page(ctx, opts...)
	}
	return NewResults(page, fetch), nil
}

// FirstOrNull returns the first matching record, or nil when nothing
// matches. A condition is required.
func (b *Builder[T]) FirstOrNull(ctx context.Context) (*T, error) {
	if b.cond == nil {
		return nil, domainError("firstOrNull", ErrNoCondition, "firstOrNull requires a where() condition")
	}
	one := b.clone()
	one.Limit(1)
	page, err := one.Page(ctx)
	if err != nil {
		return nil, err
	}
	if len(page.Records) == 0 {
		return nil, nil
	}
	rec := page.Records[0]
	return &rec, nil
}

// One is FirstOrNull.
func (b *Builder[T]) One(ctx context.Context) (*T, error) {
	return b.FirstOrNull(ctx)
}

// Delete removes every record matching the condition and returns how many
// were deleted.
func (b *Builder[T]) Delete(ctx context.Context) (int, error) {
	q, err := b.compileSelect("delete")
	if err != nil {
		return 0, err
	}
	return b.exec.DeleteByQuery(ctx, b.table, q, b.partition)
}

// Update applies the stored updates to every matching record and returns
// how many were changed.
func (b *Builder[T]) Update(ctx context.Context) (int, error) {
	if err := b.guard("update", modeUpdate); err != nil {
		return 0, err
	}
	if len(b.updates) == 0 {
		return 0, domainError("update", ErrWrongMode, "update requires setUpdates() with at least one field")
	}
	q, err := b.UpdateQuery()
	if err != nil {
		return 0, err
	}
	return b.exec.UpdateByQuery(ctx, b.table, q, b.partition)
}

// Stream opens a change stream for the query and dispatches decoded
// records to the registered listeners until the handle is canceled.
func (b *Builder[T]) Stream(ctx context.Context, opts StreamOptions) (StreamHandle, error) {
	q, err := b.compileSelect("stream")
	if err != nil {
		return nil, err
	}
	return b.exec.Stream(ctx, b.table, q, opts, b.streamEvents())
}

// StreamEventsOnly streams changes without the initial query results.
func (b *Builder[T]) StreamEventsOnly(ctx context.Context, keepAlive bool) (StreamHandle, error) {
	return b.Stream(ctx, StreamOptions{KeepAlive: keepAlive})
}

// StreamWithQueryResults streams the current matches as QUERY_RESPONSE
// records before the changes.
func (b *Builder[T]) StreamWithQueryResults(ctx context.Context, keepAlive bool) (StreamHandle, error) {
	return b.Stream(ctx, StreamOptions{IncludeQueryResults: true, KeepAlive: keepAlive})
}

func (b *Builder[T]) guard(op string, want builderMode) error {
	if b.table == "" {
		return domainError(op, ErrMissingTable, "table not defined; call From() first")
	}
	if b.exec == nil {
		return domainError(op, ErrWrongMode, "builder has no executor")
	}
	if b.mode != want {
		return domainError(op, ErrWrongMode, "%s is not allowed in %s mode", op, b.mode)
	}
	return nil
}

func (b *Builder[T]) compileSelect(op string) (*SelectQuery, error) {
	if err := b.guard(op, modeSelect); err != nil {
		return nil, err
	}
	return b.SelectQuery()
}

func (b *Builder[T]) condition() (Condition, error) {
	if b.cond == nil {
		return nil, nil
	}
	cond, err := b.cond.ToCondition()
	if err != nil {
		return nil, err
	}
	return normalizeCondition(cond)
}

func (b *Builder[T]) clone() *Builder[T] {
	c := *b
	c.fields = slices.Clone(b.fields)
	c.resolvers = slices.Clone(b.resolvers)
	c.sort = slices.Clone(b.sort)
	c.groupBy = slices.Clone(b.groupBy)
	c.updates = maps.Clone(b.updates)
	if b.cond != nil {
		cb := *b.cond
		c.cond = &cb
	}
	if b.limit != nil {
		n := *b.limit
		c.limit = &n
	}
	return &c
}

func (b *Builder[T]) streamEvents() StreamEvents {
	l := b.listeners
	var ev StreamEvents
	if l.added != nil {
		ev.OnItemAdded = func(raw json.RawMessage) {
			if v, ok := decodeEntity[T](raw); ok {
				l.added(v)
			}
		}
	}
	if l.updated != nil {
		ev.OnItemUpdated = func(raw json.RawMessage) {
			if v, ok := decodeEntity[T](raw); ok {
				l.updated(v)
			}
		}
	}
	if l.deleted != nil {
		ev.OnItemDeleted = func(raw json.RawMessage) {
			if v, ok := decodeEntity[T](raw); ok {
				l.deleted(v)
			}
		}
	}
	if l.item != nil {
		ev.OnItem = func(raw json.RawMessage, action StreamAction) {
			if v, ok := decodeEntity[T](raw); ok {
				l.item(v, action)
			}
		}
	}
	return ev
}

func decodeRecords[T any](raw []json.RawMessage) ([]T, error) {
	out := make([]T, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal(r, &out[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return out, nil
}

func decodeEntity[T any](raw json.RawMessage) (T, bool) {
	var v T
	if len(raw) == 0 {
		return v, true
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		debug.Warn("dropping undecodable stream entity", "error", err)
		return v, false
	}
	return v, true
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return slices.Clone(s)
}
