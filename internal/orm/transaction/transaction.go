// Package transaction implements the unit of work: one pinned connection,
// one transaction begun on the first write, and a terminal commit or
// rollback.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/reposit-go/reposit/internal/orm/ormerrors"
)

// State is the lifecycle state of a unit of work
type State int32

const (
	// Open accepts reads and writes
	Open State = iota
	// Committed is terminal
	Committed
	// RolledBack is terminal
	RolledBack
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Querier runs statements on the unit's connection or transaction
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CommitHook runs after a successful commit with the tables the unit wrote
type CommitHook func(ctx context.Context, tables []string)

// UnitOfWork owns one connection and at most one transaction. It is not safe
// for concurrent use.
type UnitOfWork struct {
	conn    *sql.Conn
	tx      *sql.Tx
	state   atomic.Int32
	fault   error
	written map[string]struct{}
	hooks   []CommitHook
	logger  *zap.Logger
}

// Manager opens units of work over a database handle
type Manager struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewManager creates a new unit of work manager
func NewManager(db *sql.DB, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{db: db, logger: logger}
}

// DB returns the underlying database handle
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Begin opens a unit of work on a dedicated connection. The transaction is
// begun lazily by the first write.
func (m *Manager) Begin(ctx context.Context) (*UnitOfWork, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &UnitOfWork{
		conn:    conn,
		written: make(map[string]struct{}),
		logger:  m.logger,
	}, nil
}

// Do runs fn in a new unit of work. It commits when fn returns nil and rolls
// back when fn fails or panics.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context, u *UnitOfWork) error) error {
	u, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			u.Dispose()
			panic(p)
		}
	}()

	if err := fn(WithContext(ctx, u), u); err != nil {
		if rbErr := u.Dispose(); rbErr != nil {
			return fmt.Errorf("unit of work failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	return u.Commit(ctx)
}

// State returns the lifecycle state
func (u *UnitOfWork) State() State {
	return State(u.state.Load())
}

// InTransaction reports whether a write has begun the transaction
func (u *UnitOfWork) InTransaction() bool {
	return u.tx != nil
}

// Check fails with ContextFinalized once the unit is terminal or faulted.
// typeName names the entity type of the attempted operation.
func (u *UnitOfWork) Check(typeName string) error {
	if s := u.State(); s != Open {
		return ormerrors.ContextFinalized(typeName, s.String(), nil)
	}
	if u.fault != nil {
		return ormerrors.ContextFinalized(typeName, "aborted", u.fault)
	}
	return nil
}

// Reader returns the transaction when one is active, the connection
// otherwise
func (u *UnitOfWork) Reader(typeName string) (Querier, error) {
	if err := u.Check(typeName); err != nil {
		return nil, err
	}
	if u.tx != nil {
		return u.tx, nil
	}
	return u.conn, nil
}

// Writer returns the transaction, beginning it on first use. The
// transaction outlives the context of the call that begins it; statements
// are still bound to their own contexts.
func (u *UnitOfWork) Writer(ctx context.Context, typeName string) (Querier, error) {
	if err := u.Check(typeName); err != nil {
		return nil, err
	}
	if u.tx == nil {
		if err := ctx.Err(); err != nil {
			return nil, u.Observe(fmt.Errorf("failed to begin transaction: %w", err))
		}
		tx, err := u.conn.BeginTx(context.WithoutCancel(ctx), nil)
		if err != nil {
			return nil, u.Observe(fmt.Errorf("failed to begin transaction: %w", err))
		}
		u.tx = tx
	}
	return u.tx, nil
}

// Observe marks the unit faulted when err comes from a cancelled or expired
// context, then returns err unchanged. A faulted unit accepts only Dispose.
func (u *UnitOfWork) Observe(err error) error {
	if err == nil || u.fault != nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		u.fault = err
	}
	return err
}

// MarkWritten records a write to table
func (u *UnitOfWork) MarkWritten(table string) {
	u.written[table] = struct{}{}
}

// HasWritten reports whether the unit has pending writes to table
func (u *UnitOfWork) HasWritten(table string) bool {
	_, ok := u.written[table]
	return ok
}

// OnCommit registers a hook to run after a successful commit
func (u *UnitOfWork) OnCommit(hook CommitHook) {
	u.hooks = append(u.hooks, hook)
}

// Commit commits the pending writes and finalizes the unit
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if err := u.Check("unit of work"); err != nil {
		return err
	}

	if u.tx != nil {
		if err := u.tx.Commit(); err != nil {
			u.finish(RolledBack)
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}
	u.finish(Committed)

	tables := make([]string, 0, len(u.written))
	for t := range u.written {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, hook := range u.hooks {
		hook(ctx, tables)
	}
	return nil
}

// Dispose rolls back uncommitted writes and releases the connection. It is a
// no-op on a finalized unit.
func (u *UnitOfWork) Dispose() error {
	if u.State() != Open {
		return nil
	}

	var err error
	if u.tx != nil {
		if rbErr := u.tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = fmt.Errorf("failed to rollback transaction: %w", rbErr)
		}
		u.logger.Debug("rolled back unit of work", zap.Int("tables", len(u.written)))
	}
	u.finish(RolledBack)
	return err
}

func (u *UnitOfWork) finish(s State) {
	u.state.Store(int32(s))
	u.tx = nil
	if u.conn != nil {
		u.conn.Close()
	}
}
