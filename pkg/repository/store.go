// Package repository is the public surface of the provider: a Store owns the
// database handle and the metadata registry, a Context is one unit of work,
// and Repository[T] offers typed reads and writes of one entity type inside
// a Context.
//
//	store, err := repository.Open(ctx, repository.Descriptor{Driver: "sqlite3", DSN: "shop.db"})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.Do(ctx, func(ctx context.Context, c *repository.Context) error {
//	    customers, err := repository.For[Customer](c)
//	    if err != nil {
//	        return err
//	    }
//	    return customers.Add(ctx, &Customer{Name: "Ada"})
//	})
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/reposit-go/reposit/internal/orm/cache"
	"github.com/reposit-go/reposit/internal/orm/crud"
	"github.com/reposit-go/reposit/internal/orm/dialect"
	"github.com/reposit-go/reposit/internal/orm/migrate"
	"github.com/reposit-go/reposit/internal/orm/schema"
	"github.com/reposit-go/reposit/internal/orm/transaction"
)

// Store opens units of work against one database. It is safe for concurrent
// use; the contexts it hands out are not.
type Store struct {
	db       *sql.DB
	owned    bool
	dialect  dialect.Dialect
	registry *schema.Registry
	migrator *migrate.Manager
	units    *transaction.Manager
	backend  cache.Backend
	cache    *cache.QueryCache
	logger   *zap.Logger

	cacheConfig cache.Config
	inspector   migrate.Inspector
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger for statements, schema creation and cache
// activity
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry shares a metadata registry between stores
func WithRegistry(r *schema.Registry) Option {
	return func(s *Store) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithCache caches read results in backend. The store closes backend on
// Close.
func WithCache(backend cache.Backend, cfg cache.Config) Option {
	return func(s *Store) {
		s.backend = backend
		s.cacheConfig = cfg
	}
}

// WithInspector replaces the live schema inspector
func WithInspector(i migrate.Inspector) Option {
	return func(s *Store) {
		s.inspector = i
	}
}

// Open connects to the database named by d. The returned store owns the
// connection pool.
func Open(ctx context.Context, d Descriptor, opts ...Option) (*Store, error) {
	db, dia, err := dialect.Open(ctx, d)
	if err != nil {
		return nil, err
	}
	s := New(db, dia, opts...)
	s.owned = true
	s.logger.Info("opened store", zap.String("driver", d.Driver), zap.String("dialect", dia.Name()))
	return s, nil
}

// New creates a store over an existing handle, which the caller keeps
// ownership of
func New(db *sql.DB, d dialect.Dialect, opts ...Option) *Store {
	s := &Store{
		db:       db,
		dialect:  d,
		registry: schema.NewRegistry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	migrateOpts := []migrate.Option{migrate.WithLogger(s.logger)}
	if s.inspector != nil {
		migrateOpts = append(migrateOpts, migrate.WithInspector(s.inspector))
	}
	s.migrator = migrate.NewManager(s.registry, d, migrateOpts...)
	s.units = transaction.NewManager(db, s.logger)
	if s.backend != nil {
		s.cache = cache.NewQueryCache(s.backend, s.cacheConfig, s.logger)
	}
	return s
}

// Registry returns the metadata registry
func (s *Store) Registry() *schema.Registry {
	return s.registry
}

// Dialect returns the SQL dialect of the database
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Begin opens a unit of work. The caller must Commit or Dispose it.
func (s *Store) Begin(ctx context.Context) (*Context, error) {
	u, err := s.units.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return s.wrap(u), nil
}

// Do runs fn in a unit of work, committing when fn returns nil and rolling
// back when it fails or panics
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, c *Context) error) error {
	return s.units.Do(ctx, func(ctx context.Context, u *transaction.UnitOfWork) error {
		return fn(ctx, s.wrap(u))
	})
}

// Close releases the cache backend and, for stores created by Open, the
// connection pool
func (s *Store) Close() error {
	var firstErr error
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close cache: %w", err)
		}
	}
	if s.owned {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close database: %w", err)
		}
	}
	return firstErr
}

func (s *Store) wrap(u *transaction.UnitOfWork) *Context {
	return &Context{
		store: s,
		uow:   u,
		exec: crud.NewExecutor(crud.Config{
			UnitOfWork: u,
			Registry:   s.registry,
			Schema:     s.migrator.NewSession(),
			Dialect:    s.dialect,
			Cache:      s.cache,
			Logger:     s.logger,
		}),
	}
}
