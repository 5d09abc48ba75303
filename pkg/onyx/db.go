// Package onyx is the entry point of the Onyx database client.
//
//	db := onyx.New()
//	users, err := onyx.Table[User](db, "User").
//		Where(query.Eq("isActive", true)).
//		Limit(5).
//		List(ctx)
package onyx

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/onyx-dev/onyx-database-go/internal/debug"
	"github.com/onyx-dev/onyx-database-go/internal/metrics"
	"github.com/onyx-dev/onyx-database-go/internal/stream"
	"github.com/onyx-dev/onyx-database-go/pkg/config"
	"github.com/onyx-dev/onyx-database-go/pkg/query"
	"github.com/onyx-dev/onyx-database-go/pkg/transport"
)

// ErrClosed is returned by operations on a closed DB.
var ErrClosed = errors.New("onyx: database closed")

// Record is an untyped entity.
type Record = map[string]any

// DB is a handle to one Onyx database. It is safe for concurrent use.
type DB struct {
	cfg            config.Config
	resolver       *config.Resolver
	log            *slog.Logger
	metrics        *metrics.Collectors
	limiter        *rate.Limiter
	reconnectDelay time.Duration

	mu       sync.Mutex
	client   *transport.Client
	resolved *config.Resolved
	streams  map[string]*stream.Handle
	closed   bool
}

// Option configures a DB.
type Option func(*DB)

// WithConfig sets explicit configuration. Unset fields fall back to the
// environment and credential files.
func WithConfig(cfg config.Config) Option {
	return func(db *DB) { db.cfg = cfg }
}

// WithResolver uses r instead of config.Default. A nil r keeps the default.
func WithResolver(r *config.Resolver) Option {
	return func(db *DB) {
		if r != nil {
			db.resolver = r
		}
	}
}

// WithHTTPClient sends requests through c.
func WithHTTPClient(c *http.Client) Option {
	return func(db *DB) { db.cfg.HTTPClient = c }
}

// WithLogger replaces the debug logger.
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) { db.log = l }
}

// WithMetrics registers Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(db *DB) { db.metrics = metrics.New(reg) }
}

// WithRateLimit caps outgoing requests at r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(db *DB) { db.limiter = rate.NewLimiter(r, burst) }
}

// WithReconnectDelay sets the pause between stream reconnects.
func WithReconnectDelay(d time.Duration) Option {
	return func(db *DB) { db.reconnectDelay = d }
}

// New returns a DB. Configuration is resolved on first use, so errors
// surface from the first operation.
func New(opts ...Option) *DB {
	db := &DB{
		resolver: config.Default,
		streams:  make(map[string]*stream.Handle),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Open is New followed by an immediate configuration check.
func Open(opts ...Option) (*DB, error) {
	db := New(opts...)
	if _, _, err := db.conn(); err != nil {
		return nil, err
	}
	return db, nil
}

// Config returns the resolved configuration.
func (db *DB) Config() (*config.Resolved, error) {
	_, res, err := db.conn()
	return res, err
}

// ClearConfigCache forces the next operation to resolve configuration
// again.
func (db *DB) ClearConfigCache() {
	db.resolver.Invalidate()
	db.mu.Lock()
	db.client = nil
	db.resolved = nil
	db.mu.Unlock()
}

// Close cancels every open stream. Calling it again is a no-op.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	handles := make([]*stream.Handle, 0, len(db.streams))
	for id, h := range db.streams {
		handles = append(handles, h)
		delete(db.streams, id)
	}
	db.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	db.logger().Debug("database closed", "streams", len(handles))
	return nil
}

// From starts an untyped query on table.
func (db *DB) From(table string) *query.Builder[Record] {
	return query.New[Record](db.executor(), table)
}

// Select starts an untyped query with a projection. Call From before a verb.
func (db *DB) Select(fields ...string) *query.Builder[Record] {
	return query.New[Record](db.executor(), "").SelectFields(fields...)
}

// Table starts a query on table whose records decode into T.
func Table[T any](db *DB, table string) *query.Builder[T] {
	return query.New[T](db.executor(), table)
}

// conn returns a transport client for the current configuration,
// rebuilding it when the resolver produced different values.
func (db *DB) conn() (*transport.Client, *config.Resolved, error) {
	res, err := db.resolver.Resolve(db.cfg)
	if err != nil {
		return nil, nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, nil, ErrClosed
	}
	if db.client != nil && sameConnection(db.resolved, res) {
		return db.client, db.resolved, nil
	}
	if res.Debug {
		debug.FromEnv()
	}

	retry := transport.DefaultRetryConfig()
	retry.Enabled = res.RetryEnabled
	retry.MaxRetries = res.MaxRetries
	retry.InitialDelay = res.RetryInitialDelay

	opts := transport.Options{
		BaseURL:    res.BaseURL,
		APIKey:     res.APIKey,
		APISecret:  res.APISecret,
		HTTPClient: res.HTTPClient,
		Retry:      retry,
		Limiter:    db.limiter,
		Logger:     db.log,
	}
	if db.metrics != nil {
		opts.Metrics = db.metrics
	}
	db.client = transport.New(opts)
	db.resolved = res
	db.logger().Debug("connection configured", "baseUrl", res.BaseURL, "databaseId", res.DatabaseID, "sources", res.Sources)
	return db.client, db.resolved, nil
}

func sameConnection(a, b *config.Resolved) bool {
	return a != nil && b != nil &&
		a.BaseURL == b.BaseURL && a.DatabaseID == b.DatabaseID &&
		a.APIKey == b.APIKey && a.APISecret == b.APISecret &&
		a.HTTPClient == b.HTTPClient && a.RetryEnabled == b.RetryEnabled &&
		a.MaxRetries == b.MaxRetries && a.RetryInitialDelay == b.RetryInitialDelay
}

func (db *DB) logger() *slog.Logger {
	if db.log != nil {
		return db.log
	}
	return debug.With("component", "onyx")
}
