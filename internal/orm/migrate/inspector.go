package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	atlas "ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"

	"github.com/reposit-go/reposit/internal/orm/dialect"
)

// ExecQuerier is the connection or transaction DDL and inspection run on.
// *sql.DB, *sql.Conn and *sql.Tx all satisfy it.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TableInfo is the live definition of a table
type TableInfo struct {
	Name       string
	Columns    []ColumnInfo
	PrimaryKey []string
}

// ColumnInfo is the live definition of a column
type ColumnInfo struct {
	Name     string
	Type     string
	Nullable bool
}

// Column finds a column by name, case-insensitively
func (t *TableInfo) Column(name string) (ColumnInfo, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

// Inspector reads table definitions from a live database
type Inspector interface {
	// InspectTable returns the definition of table, or nil when it does not
	// exist
	InspectTable(ctx context.Context, q ExecQuerier, table string) (*TableInfo, error)
}

// AtlasInspector inspects tables through the atlas drivers
type AtlasInspector struct {
	dialect string
}

// NewInspector returns the inspector for d
func NewInspector(d dialect.Dialect) *AtlasInspector {
	return &AtlasInspector{dialect: d.Name()}
}

// InspectTable implements Inspector
func (i *AtlasInspector) InspectTable(ctx context.Context, q ExecQuerier, table string) (*TableInfo, error) {
	drv, err := i.open(q)
	if err != nil {
		return nil, err
	}

	s, err := drv.InspectSchema(ctx, "", &atlas.InspectOptions{Tables: []string{table}})
	if err != nil {
		if atlas.IsNotExistError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("inspecting table %s: %w", table, err)
	}

	for _, t := range s.Tables {
		if !strings.EqualFold(t.Name, table) {
			continue
		}
		info := tableInfo(t)
		if i.dialect == dialect.SQLite && len(info.PrimaryKey) > 1 {
			if info.PrimaryKey, err = sqliteKeyOrder(ctx, q, t.Name); err != nil {
				return nil, fmt.Errorf("inspecting key of table %s: %w", table, err)
			}
		}
		return info, nil
	}
	return nil, nil
}

// sqliteKeyOrder lists the key columns of table by key position. The atlas
// SQLite driver reports them in column order.
func sqliteKeyOrder(ctx context.Context, q ExecQuerier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		keys = append(keys, name)
	}
	return keys, rows.Err()
}

func (i *AtlasInspector) open(q ExecQuerier) (migrate.Driver, error) {
	switch i.dialect {
	case dialect.SQLite:
		return sqlite.Open(q)
	case dialect.Postgres:
		return postgres.Open(q)
	case dialect.MySQL:
		return mysql.Open(q)
	default:
		return nil, fmt.Errorf("dialect %s cannot inspect a live database", i.dialect)
	}
}

func tableInfo(t *atlas.Table) *TableInfo {
	info := &TableInfo{Name: t.Name}
	for _, c := range t.Columns {
		col := ColumnInfo{Name: c.Name}
		if c.Type != nil {
			col.Nullable = c.Type.Null
			col.Type = c.Type.Raw
		}
		info.Columns = append(info.Columns, col)
	}
	if t.PrimaryKey != nil {
		for _, p := range t.PrimaryKey.Parts {
			if p.C != nil {
				info.PrimaryKey = append(info.PrimaryKey, p.C.Name)
			}
		}
	}
	return info
}
