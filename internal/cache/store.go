package cache

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/ballotdesk/internal/metrics"
	"github.com/roach88/ballotdesk/internal/store"
	"github.com/roach88/ballotdesk/internal/value"
)

// Store is a document store with a read-through query cache.
// Writes pass straight through; the cache is invalidated from the backing
// store's write notifications, so writes made directly on the backend are
// seen too.
type Store struct {
	backend *store.Store
	cache   *QueryCache
	policy  Policy
	logger  *slog.Logger
	enabled bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics records hits, misses and invalidations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.cache.metrics = m }
}

// WithEnabled turns caching on or off. Disabled stores still pass through.
func WithEnabled(enabled bool) Option {
	return func(s *Store) { s.enabled = enabled }
}

// New wraps backend and subscribes to its writes.
func New(backend *store.Store, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		cache:   NewQueryCache(nil),
		policy:  Policy{Catalog: backend.Catalog()},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		enabled: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	backend.OnWrite(func(ev store.WriteEvent) {
		n := s.cache.InvalidatePattern(ev.Collection)
		s.logger.Debug("cache invalidated",
			"collection", ev.Collection,
			"op", string(ev.Op),
			"entries", n)
	})
	return s
}

// Backend returns the wrapped store.
func (s *Store) Backend() *store.Store {
	return s.backend
}

// Cache returns the query cache.
func (s *Store) Cache() *QueryCache {
	return s.cache
}

// Find serves cacheable queries from the cache and everything else from the
// backing store. Returned documents are copies.
func (s *Store) Find(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	if !s.enabled {
		return s.backend.Find(ctx, collection, q)
	}

	key, ok, reason := s.policy.Key(collection, q)
	if !ok {
		s.logger.Debug("query not cacheable", "collection", collection, "reason", reason)
		return s.backend.Find(ctx, collection, q)
	}

	if docs, hit := s.cache.Get(key, collection); hit {
		return docs, nil
	}

	gen := s.cache.Generation(collection)
	docs, err := s.backend.Find(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	s.cache.SetIfCurrent(key, docs, collection, gen)
	return docs, nil
}

// Get reads one document from the backing store.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	return s.backend.Get(ctx, collection, id)
}

// Create passes through to the backing store.
func (s *Store) Create(ctx context.Context, collection, docType string, fields value.Object) (string, error) {
	return s.backend.Create(ctx, collection, docType, fields)
}

// Update passes through to the backing store.
func (s *Store) Update(ctx context.Context, collection string, doc store.Document) (string, error) {
	return s.backend.Update(ctx, collection, doc)
}

// Delete passes through to the backing store.
func (s *Store) Delete(ctx context.Context, collection, id string) (string, error) {
	return s.backend.Delete(ctx, collection, id)
}

// Clear passes through to the backing store.
func (s *Store) Clear(ctx context.Context, collection string) (int, error) {
	return s.backend.Clear(ctx, collection)
}

// BulkCreate passes through to the backing store.
func (s *Store) BulkCreate(ctx context.Context, collection, docType string, rows []value.Object) (store.BulkResult, error) {
	return s.backend.BulkCreate(ctx, collection, docType, rows)
}
