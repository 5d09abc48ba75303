package onyx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/onyx-dev/onyx-database-go/pkg/transport"
)

// DefaultBatchSize is the chunk size used by BatchSave.
const DefaultBatchSize = 1000

type requestOptions struct {
	relationships []string
	partition     string
	resolvers     []string
}

// RequestOption adjusts a save, find or delete request.
type RequestOption func(*requestOptions)

// WithRelationships cascades the operation through the named
// relationships. Each entry is a relationship name or a graph built with
// Relationship.
func WithRelationships(relationships ...string) RequestOption {
	return func(o *requestOptions) { o.relationships = append(o.relationships, relationships...) }
}

// WithPartition scopes the operation to a partition.
func WithPartition(partition string) RequestOption {
	return func(o *requestOptions) { o.partition = partition }
}

// WithResolvers materializes relationship resolvers on FindByID.
func WithResolvers(resolvers ...string) RequestOption {
	return func(o *requestOptions) { o.resolvers = append(o.resolvers, resolvers...) }
}

// params encodes the options. The relationship list is joined with
// commas and escaped exactly once by url.Values.Encode.
func (o requestOptions) params() url.Values {
	params := url.Values{}
	if len(o.relationships) > 0 {
		params.Set("relationships", strings.Join(o.relationships, ","))
	}
	if o.partition != "" {
		params.Set("partition", o.partition)
	}
	if len(o.resolvers) > 0 {
		params.Set("resolvers", strings.Join(o.resolvers, ","))
	}
	return params
}

func collect(opts []RequestOption) requestOptions {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Save stores one entity and returns the stored version.
func Save[T any](ctx context.Context, db *DB, table string, entity T, opts ...RequestOption) (T, error) {
	var out T
	err := db.put(ctx, table, entity, &out, collect(opts))
	return out, err
}

// SaveMany stores entities in one request.
func SaveMany[T any](ctx context.Context, db *DB, table string, entities []T, opts ...RequestOption) ([]T, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	var out []T
	err := db.put(ctx, table, entities, &out, collect(opts))
	return out, err
}

// BatchSave stores entities in chunks of batchSize (DefaultBatchSize when
// zero or less), one request per chunk, stopping at the first failure.
func BatchSave[T any](ctx context.Context, db *DB, table string, entities []T, batchSize int, opts ...RequestOption) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	o := collect(opts)
	for start := 0; start < len(entities); start += batchSize {
		end := min(start+batchSize, len(entities))
		if err := db.put(ctx, table, entities[start:end], nil, o); err != nil {
			return fmt.Errorf("batch save %s [%d:%d]: %w", table, start, end, err)
		}
	}
	return nil
}

// FindByID fetches one record by primary key. A missing record yields
// nil and no error.
func FindByID[T any](ctx context.Context, db *DB, table, id string, opts ...RequestOption) (*T, error) {
	client, res, err := db.conn()
	if err != nil {
		return nil, err
	}
	var out T
	path := transport.RecordPath(res.DatabaseID, table, id)
	if err := client.Do(ctx, http.MethodGet, path, collect(opts).params(), nil, &out); err != nil {
		if transport.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// FindByID is the untyped form of the package-level FindByID.
func (db *DB) FindByID(ctx context.Context, table, id string, opts ...RequestOption) (Record, error) {
	rec, err := FindByID[Record](ctx, db, table, id, opts...)
	if err != nil || rec == nil {
		return nil, err
	}
	return *rec, nil
}

// Delete removes one record by primary key and returns the deleted
// record when the backend sends it back.
func (db *DB) Delete(ctx context.Context, table, id string, opts ...RequestOption) (Record, error) {
	client, res, err := db.conn()
	if err != nil {
		return nil, err
	}
	var out Record
	path := transport.RecordPath(res.DatabaseID, table, id)
	if err := client.Do(ctx, http.MethodDelete, path, collect(opts).params(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Save stores one untyped entity.
func (db *DB) Save(ctx context.Context, table string, entity any, opts ...RequestOption) (Record, error) {
	var out Record
	err := db.put(ctx, table, entity, &out, collect(opts))
	return out, err
}

func (db *DB) put(ctx context.Context, table string, body, out any, o requestOptions) error {
	client, res, err := db.conn()
	if err != nil {
		return err
	}
	return client.Do(ctx, http.MethodPut, transport.DataPath(res.DatabaseID, table), o.params(), body, out)
}

// SaveBuilder prepares a save whose cascade is configured before the
// entities are known.
type SaveBuilder struct {
	db            *DB
	table         string
	relationships []string
	partition     string
}

// PrepareSave starts a save on table.
func (db *DB) PrepareSave(table string) *SaveBuilder {
	return &SaveBuilder{db: db, table: table}
}

// Cascade adds relationships to save along with the entity.
func (b *SaveBuilder) Cascade(relationships ...string) *SaveBuilder {
	b.relationships = append(b.relationships, relationships...)
	return b
}

// InPartition scopes the save to a partition.
func (b *SaveBuilder) InPartition(partition string) *SaveBuilder {
	b.partition = partition
	return b
}

// One saves a single entity.
func (b *SaveBuilder) One(ctx context.Context, entity any) (Record, error) {
	var out Record
	err := b.db.put(ctx, b.table, entity, &out, b.options())
	return out, err
}

// Many saves several entities in one request. entities must encode as a
// JSON array.
func (b *SaveBuilder) Many(ctx context.Context, entities any) ([]Record, error) {
	var out []Record
	err := b.db.put(ctx, b.table, entities, &out, b.options())
	return out, err
}

func (b *SaveBuilder) options() requestOptions {
	return requestOptions{relationships: b.relationships, partition: b.partition}
}
