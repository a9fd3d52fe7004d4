package migrate

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/reposit-go/reposit/internal/orm/dialect"
	"github.com/reposit-go/reposit/internal/orm/ormerrors"
	"github.com/reposit-go/reposit/internal/orm/schema"
)

// Manager creates missing tables and validates existing ones against the
// metadata of their entity types
type Manager struct {
	registry  *schema.Registry
	ddl       *DDLGenerator
	inspector Inspector
	logger    *zap.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithInspector replaces the atlas inspector
func WithInspector(i Inspector) Option {
	return func(m *Manager) { m.inspector = i }
}

// WithLogger sets the logger DDL is reported to
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a schema manager for one dialect
func NewManager(r *schema.Registry, d dialect.Dialect, opts ...Option) *Manager {
	m := &Manager{
		registry:  r,
		ddl:       NewDDLGenerator(d),
		inspector: NewInspector(d),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureTable creates the table of meta, and first the tables of every
// principal it references, when missing. Existing tables are validated.
func (m *Manager) EnsureTable(ctx context.Context, q ExecQuerier, meta *schema.EntityMetadata) error {
	return m.NewSession().EnsureTable(ctx, q, meta)
}

// ValidateSchema checks the live table of meta. It reports whether the table
// exists; a missing table is not an error.
func (m *Manager) ValidateSchema(ctx context.Context, q ExecQuerier, meta *schema.EntityMetadata) (bool, error) {
	return m.NewSession().ValidateSchema(ctx, q, meta)
}

// NewSession starts a session that handles each entity type at most once.
// A session belongs to one unit of work and is not safe for concurrent use.
func (m *Manager) NewSession() *Session {
	return &Session{
		manager: m,
		state:   make(map[reflect.Type]tableState),
	}
}

type tableState int

const (
	tableUnknown tableState = iota
	tableMissing
	tableReady
)

// Session remembers which tables one unit of work has already created or
// validated
type Session struct {
	manager *Manager
	state   map[reflect.Type]tableState
}

// EnsureTable creates the table of meta when missing, principals first
func (s *Session) EnsureTable(ctx context.Context, q ExecQuerier, meta *schema.EntityMetadata) error {
	return s.ensure(ctx, q, meta, nil)
}

// ValidateSchema validates the table of meta once per session and reports
// whether it exists
func (s *Session) ValidateSchema(ctx context.Context, q ExecQuerier, meta *schema.EntityMetadata) (bool, error) {
	switch s.state[meta.Type] {
	case tableReady:
		return true, nil
	case tableMissing:
		return false, nil
	}

	info, err := s.manager.inspector.InspectTable(ctx, q, meta.Table)
	if err != nil {
		return false, err
	}
	if info == nil {
		s.state[meta.Type] = tableMissing
		return false, nil
	}
	if err := Validate(meta, info); err != nil {
		return true, err
	}
	s.state[meta.Type] = tableReady
	return true, nil
}

func (s *Session) ensure(ctx context.Context, q ExecQuerier, meta *schema.EntityMetadata, path []*schema.EntityMetadata) error {
	if s.state[meta.Type] == tableReady {
		return nil
	}
	for _, p := range path {
		if p.Type == meta.Type {
			return ormerrors.AmbiguousPrincipal(path[len(path)-1].TypeName, meta.TypeName)
		}
	}

	exists, err := s.ValidateSchema(ctx, q, meta)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	path = append(path, meta)
	for _, name := range meta.NavOrder {
		fk, ok := meta.ForeignKeys[name]
		if !ok || fk.Principal == meta.Type {
			continue
		}
		principal, err := s.manager.registry.Resolve(fk.Principal)
		if err != nil {
			return err
		}
		if err := s.ensure(ctx, q, principal, path); err != nil {
			return err
		}
	}

	stmt, err := s.manager.ddl.GenerateCreateTable(meta)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("creating table %s: %w", meta.Table, err)
	}
	s.manager.logger.Info("created table",
		zap.String("table", meta.Table),
		zap.String("type", meta.TypeName))
	s.state[meta.Type] = tableReady
	return nil
}

// Validate compares a live table with the metadata mapped onto it. Column
// names match case-insensitively; required members must be NOT NULL and the
// primary key must cover the same columns.
func Validate(meta *schema.EntityMetadata, info *TableInfo) error {
	for _, c := range meta.Columns {
		live, ok := info.Column(c.Name)
		if !ok {
			return ormerrors.SchemaMismatch(meta.Table, meta.TypeName,
				fmt.Sprintf("column '%s' does not exist", c.Name))
		}
		if c.Required && !c.Key && live.Nullable {
			return ormerrors.SchemaMismatch(meta.Table, meta.TypeName,
				fmt.Sprintf("column '%s' allows NULL but member %s is required", live.Name, c.Field))
		}
	}

	if !sameKeys(meta.KeyNames(), info.PrimaryKey) {
		return ormerrors.SchemaMismatch(meta.Table, meta.TypeName,
			fmt.Sprintf("primary key (%s) does not match key (%s)",
				strings.Join(info.PrimaryKey, ", "), strings.Join(meta.KeyNames(), ", ")))
	}
	return nil
}

// sameKeys compares key columns in key order, ignoring case
func sameKeys(want, have []string) bool {
	if len(want) != len(have) {
		return false
	}
	for i := range want {
		if !strings.EqualFold(want[i], have[i]) {
			return false
		}
	}
	return true
}
