package repository

import (
	"github.com/reposit-go/reposit/internal/orm/cache"
	"github.com/reposit-go/reposit/internal/orm/dialect"
	"github.com/reposit-go/reposit/internal/orm/migrate"
	"github.com/reposit-go/reposit/internal/orm/ormerrors"
	"github.com/reposit-go/reposit/internal/orm/query"
	"github.com/reposit-go/reposit/internal/orm/transaction"
)

type (
	// Descriptor names a database/sql driver and its connection string
	Descriptor = dialect.Descriptor

	// State is the lifecycle state of a Context
	State = transaction.State

	Expr         = query.Expr
	Predicate    = query.Predicate
	Operand      = query.Operand
	Options      = query.Options
	GroupOptions = query.GroupOptions
	Paging       = query.Paging
	SortKey      = query.SortKey

	// Page is one page of a paged read
	Page[T any] = query.Page[T]

	// CacheConfig configures cached reads
	CacheConfig  = cache.Config
	CacheBackend = cache.Backend
	RedisConfig  = cache.RedisConfig

	// Inspector reads the live shape of a table
	Inspector  = migrate.Inspector
	TableInfo  = migrate.TableInfo
	ColumnInfo = migrate.ColumnInfo

	// Error is a classified provider failure
	Error = ormerrors.Error
)

// Lifecycle states
const (
	StateOpen       = transaction.Open
	StateCommitted  = transaction.Committed
	StateRolledBack = transaction.RolledBack
)

// Predicate and query builders
var (
	Field = query.Field
	Value = query.Value
	And   = query.And
	Or    = query.Or
	Not   = query.Not
	True  = query.True
	False = query.False
	Query = query.New
)

// Cache backends
var (
	DefaultCacheConfig = cache.DefaultConfig
	NewMemoryCache     = cache.NewMemoryCache
	NewRedisCache      = cache.NewRedisCache
)

// Errors matched with errors.Is
var (
	ErrAmbiguousCompositeKeyOrdering  = ormerrors.ErrAmbiguousCompositeKeyOrdering
	ErrForeignKeyMemberNotFound       = ormerrors.ErrForeignKeyMemberNotFound
	ErrAmbiguousRelationshipPrincipal = ormerrors.ErrAmbiguousRelationshipPrincipal
	ErrSchemaMismatch                 = ormerrors.ErrSchemaMismatch
	ErrEntityNotFound                 = ormerrors.ErrEntityNotFound
	ErrContextFinalized               = ormerrors.ErrContextFinalized
	ErrForeignKeyViolation            = ormerrors.ErrForeignKeyViolation
)
