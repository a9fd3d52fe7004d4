// Package crud executes entity reads and writes inside a unit of work:
// graph inserts in principal-first order, keyed updates and deletes, filtered
// and paged selects with one-to-one joins, grouping, and batched loading of
// requested navigations.
package crud

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/reposit-go/reposit/internal/orm/cache"
	"github.com/reposit-go/reposit/internal/orm/dialect"
	"github.com/reposit-go/reposit/internal/orm/migrate"
	"github.com/reposit-go/reposit/internal/orm/ormerrors"
	"github.com/reposit-go/reposit/internal/orm/query"
	"github.com/reposit-go/reposit/internal/orm/schema"
	"github.com/reposit-go/reposit/internal/orm/transaction"
)

// Operation represents a CRUD operation type
type Operation int

const (
	// OperationCreate represents an insert
	OperationCreate Operation = iota
	// OperationRead represents a select
	OperationRead
	// OperationUpdate represents an update
	OperationUpdate
	// OperationDelete represents a delete
	OperationDelete
	// OperationRaw represents a caller-supplied statement
	OperationRaw
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OperationCreate:
		return "create"
	case OperationRead:
		return "read"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	case OperationRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// rawTypeName names the target of raw SQL in errors
const rawTypeName = "raw SQL"

// Config wires an Executor to its unit of work and collaborators
type Config struct {
	UnitOfWork *transaction.UnitOfWork
	Registry   *schema.Registry
	Schema     *migrate.Session
	Dialect    dialect.Dialect
	Cache      *cache.QueryCache // optional
	Logger     *zap.Logger       // optional
}

// Executor runs entity operations for one unit of work. It is not safe for
// concurrent use.
type Executor struct {
	uow      *transaction.UnitOfWork
	registry *schema.Registry
	schema   *migrate.Session
	dialect  dialect.Dialect
	cache    *cache.QueryCache
	logger   *zap.Logger
}

// NewExecutor creates an executor. Cached reads are invalidated for every
// table the unit wrote once it commits.
func NewExecutor(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		uow:      cfg.UnitOfWork,
		registry: cfg.Registry,
		schema:   cfg.Schema,
		dialect:  cfg.Dialect,
		cache:    cfg.Cache,
		logger:   logger,
	}
	if e.cache != nil {
		e.uow.OnCommit(func(ctx context.Context, tables []string) {
			e.cache.Invalidate(ctx, tables)
		})
	}
	return e
}

// Metadata resolves the entity metadata of t
func (e *Executor) Metadata(t reflect.Type) (*schema.EntityMetadata, error) {
	return e.registry.Resolve(t)
}

// EnsureTable creates the table of meta, and those of its principals, when
// missing
func (e *Executor) EnsureTable(ctx context.Context, meta *schema.EntityMetadata) error {
	w, err := e.uow.Writer(ctx, meta.TypeName)
	if err != nil {
		return err
	}
	if err := e.schema.EnsureTable(ctx, w, meta); err != nil {
		return e.uow.Observe(err)
	}
	return nil
}

// reader returns the unit's read handle and whether the table of meta exists
// with a compatible shape
func (e *Executor) reader(ctx context.Context, meta *schema.EntityMetadata) (transaction.Querier, bool, error) {
	r, err := e.uow.Reader(meta.TypeName)
	if err != nil {
		return nil, false, err
	}
	exists, err := e.schema.ValidateSchema(ctx, r, meta)
	if err != nil {
		return nil, false, e.uow.Observe(err)
	}
	return r, exists, nil
}

// writer returns the unit's transaction and whether the table of meta exists
func (e *Executor) writer(ctx context.Context, meta *schema.EntityMetadata) (transaction.Querier, bool, error) {
	w, err := e.uow.Writer(ctx, meta.TypeName)
	if err != nil {
		return nil, false, err
	}
	exists, err := e.schema.ValidateSchema(ctx, w, meta)
	if err != nil {
		return nil, false, e.uow.Observe(err)
	}
	return w, exists, nil
}

func (e *Executor) exec(ctx context.Context, q transaction.Querier, op Operation, typeName, stmt string, args []any) (sql.Result, error) {
	e.logStatement(op, stmt, args)
	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, e.fail(typeName, err)
	}
	return res, nil
}

func (e *Executor) query(ctx context.Context, q transaction.Querier, op Operation, typeName, stmt string, args []any) (*cache.RowSet, error) {
	e.logStatement(op, stmt, args)
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, e.fail(typeName, err)
	}
	rs, err := drain(rows)
	if err != nil {
		return nil, e.fail(typeName, err)
	}
	return rs, nil
}

// fetch runs a select through the query cache. Results over tables the
// unit has written are never cached since they may include pending rows.
func (e *Executor) fetch(ctx context.Context, q transaction.Querier, typeName string, tables []string, stmt string, args []any) (*cache.RowSet, error) {
	var key string
	if e.cacheable(tables) {
		k, err := e.cache.Key(ctx, tables, stmt, args)
		if err != nil {
			e.logger.Warn("cache key failed", zap.Error(err))
		} else {
			key = k
			var rs cache.RowSet
			if e.cache.Load(ctx, key, &rs) {
				e.logger.Debug("cache hit", zap.String("sql", stmt))
				return &rs, nil
			}
		}
	}

	rs, err := e.query(ctx, q, OperationRead, typeName, stmt, args)
	if err != nil {
		return nil, err
	}
	if key != "" {
		e.cache.Store(ctx, key, rs)
	}
	return rs, nil
}

func (e *Executor) scalar(ctx context.Context, q transaction.Querier, typeName string, tables []string, stmt string, args []any) (int64, error) {
	rs, err := e.fetch(ctx, q, typeName, tables, stmt, args)
	if err != nil {
		return 0, err
	}
	if len(rs.Rows) == 0 || len(rs.Rows[0]) == 0 {
		return 0, fmt.Errorf("statement returned no value: %s", stmt)
	}
	var n int64
	if err := assign(reflect.ValueOf(&n).Elem(), rs.Rows[0][0]); err != nil {
		return 0, err
	}
	return n, nil
}

func (e *Executor) cacheable(tables []string) bool {
	if e.cache == nil || e.uow.HasWritten(cache.AllTables) {
		return false
	}
	for _, t := range tables {
		if e.uow.HasWritten(t) {
			return false
		}
	}
	return true
}

// fail classifies a driver error and faults the unit on cancellation
func (e *Executor) fail(typeName string, err error) error {
	e.uow.Observe(err)
	return ormerrors.ConvertDBError(typeName, err)
}

func (e *Executor) logStatement(op Operation, stmt string, args []any) {
	if ce := e.logger.Check(zap.DebugLevel, "executing statement"); ce != nil {
		ce.Write(
			zap.Stringer("op", op),
			zap.String("sql", stmt),
			zap.Int("args", len(args)),
		)
	}
}

// compiler resolves members of meta against alias
func (e *Executor) compiler(meta *schema.EntityMetadata, alias string) *query.Compiler {
	return query.NewCompiler(e.dialect, query.EntityColumns(meta, e.dialect, alias))
}

// keyCondition matches the row of meta whose key equals key
func (e *Executor) keyCondition(meta *schema.EntityMetadata, alias string, key []any, args *query.Args) (string, error) {
	if len(key) != len(meta.PrimaryKey) {
		return "", fmt.Errorf("type %s has a %d-part key, got %d values", meta.TypeName, len(meta.PrimaryKey), len(key))
	}
	cols := make([]string, len(meta.PrimaryKey))
	for i, c := range meta.PrimaryKey {
		cols[i] = query.Qualify(e.dialect, alias, c.Name)
	}
	return e.compiler(meta, alias).KeysIn(cols, [][]any{normalizeAll(key)}, args), nil
}

// entityValue returns the struct addressed by a non-nil pointer
func entityValue(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("expected a non-nil pointer to a struct, got %T", entity)
	}
	return v, nil
}
