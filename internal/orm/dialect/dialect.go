// Package dialect describes the SQL flavours understood by the repository
// provider: placeholder syntax, identifier quoting, paging, identity columns
// and the database/sql drivers that speak each flavour.
package dialect

import (
	"fmt"
	"strings"
)

// Dialect names
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
	MySQL    = "mysql"
	ANSI     = "ansi"
)

// Dialect renders the engine-specific parts of generated SQL
type Dialect interface {
	// Name returns one of the dialect name constants
	Name() string

	// Placeholder returns the text of the n-th (1-based) positional parameter
	Placeholder(n int) string

	// Quote quotes an identifier
	Quote(ident string) string

	// Paging renders the skip/take clause. bind appends a parameter value and
	// returns its placeholder; dialects bind in the order their syntax needs.
	Paging(skip, take int, bind func(any) string) string

	// CastToText converts a non-string expression to text
	CastToText(expr string) string

	// EscapeClause returns the ESCAPE suffix for LIKE patterns escaped with a
	// backslash, or "" when backslash is the engine's default.
	EscapeClause() string

	// IdentityColumn returns the column definition suffix for a
	// store-generated integer key. inline reports that the definition already
	// carries PRIMARY KEY and no table-level key constraint may be emitted.
	IdentityColumn() (definition string, inline bool)

	// Returning reports whether inserts read generated keys with RETURNING
	// instead of LastInsertId
	Returning() bool
}

// Get returns the dialect registered under name
func Get(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case SQLite, "sqlite3":
		return sqliteDialect{}, nil
	case Postgres, "postgresql", "pgx":
		return postgresDialect{}, nil
	case MySQL, "mariadb":
		return mysqlDialect{}, nil
	case ANSI:
		return ansiDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect: %s", name)
	}
}

func quoteWith(ident string, q string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return SQLite }
func (sqliteDialect) Placeholder(int) string { return "?" }
func (sqliteDialect) Quote(ident string) string { return quoteWith(ident, `"`) }
func (sqliteDialect) CastToText(expr string) string {
	return "CAST(" + expr + " AS TEXT)"
}
func (sqliteDialect) EscapeClause() string { return ` ESCAPE '\'` }
func (sqliteDialect) Returning() bool { return false }

func (sqliteDialect) Paging(skip, take int, bind func(any) string) string {
	limit := bind(take)
	offset := bind(skip)
	return "LIMIT " + limit + " OFFSET " + offset
}

// SQLite only auto-increments a column declared INTEGER PRIMARY KEY inline
func (sqliteDialect) IdentityColumn() (string, bool) {
	return "INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT", true
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return Postgres }
func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (postgresDialect) Quote(ident string) string { return quoteWith(ident, `"`) }
func (postgresDialect) CastToText(expr string) string {
	return "CAST(" + expr + " AS TEXT)"
}
func (postgresDialect) EscapeClause() string { return ` ESCAPE '\'` }
func (postgresDialect) Returning() bool { return true }

func (postgresDialect) Paging(skip, take int, bind func(any) string) string {
	offset := bind(skip)
	fetch := bind(take)
	return "OFFSET " + offset + " ROWS FETCH NEXT " + fetch + " ROWS ONLY"
}

func (postgresDialect) IdentityColumn() (string, bool) {
	return "BIGINT GENERATED BY DEFAULT AS IDENTITY NOT NULL", false
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return MySQL }
func (mysqlDialect) Placeholder(int) string { return "?" }
func (mysqlDialect) Quote(ident string) string { return quoteWith(ident, "`") }
func (mysqlDialect) CastToText(expr string) string {
	return "CAST(" + expr + " AS CHAR)"
}

// Backslash is already the LIKE escape in MySQL and '\' is not a valid literal
func (mysqlDialect) EscapeClause() string { return "" }
func (mysqlDialect) Returning() bool { return false }

func (mysqlDialect) Paging(skip, take int, bind func(any) string) string {
	limit := bind(take)
	offset := bind(skip)
	return "LIMIT " + limit + " OFFSET " + offset
}

func (mysqlDialect) IdentityColumn() (string, bool) {
	return "BIGINT NOT NULL AUTO_INCREMENT", false
}

// ansiDialect renders named @pN parameters. It has no driver and is used to
// print statements in a neutral form.
type ansiDialect struct{}

func (ansiDialect) Name() string { return ANSI }
func (ansiDialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n-1) }
func (ansiDialect) Quote(ident string) string { return quoteWith(ident, `"`) }
func (ansiDialect) CastToText(expr string) string {
	return "CAST(" + expr + " AS VARCHAR(255))"
}
func (ansiDialect) EscapeClause() string { return ` ESCAPE '\'` }
func (ansiDialect) Returning() bool { return false }

func (ansiDialect) Paging(skip, take int, bind func(any) string) string {
	offset := bind(skip)
	fetch := bind(take)
	return "OFFSET " + offset + " ROWS FETCH NEXT " + fetch + " ROWS ONLY"
}

func (ansiDialect) IdentityColumn() (string, bool) {
	return "BIGINT GENERATED BY DEFAULT AS IDENTITY NOT NULL", false
}
