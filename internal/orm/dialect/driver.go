package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	// database/sql drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Descriptor names a database/sql driver and its connection string
type Descriptor struct {
	Driver string
	DSN    string
}

// String renders the descriptor without the connection string
func (d Descriptor) String() string {
	return d.Driver
}

// drivers maps database/sql driver names to their dialect
var drivers = map[string]string{
	"sqlite3":  SQLite, // github.com/mattn/go-sqlite3
	"sqlite":   SQLite, // modernc.org/sqlite
	"postgres": Postgres,
	"pgx":      Postgres,
	"mysql":    MySQL,
}

// Drivers returns the supported database/sql driver names
func Drivers() []string {
	return []string{"sqlite3", "sqlite", "postgres", "pgx", "mysql"}
}

// ForDriver returns the dialect spoken by a database/sql driver
func ForDriver(driver string) (Dialect, error) {
	name, ok := drivers[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q (supported: %s)", driver, strings.Join(Drivers(), ", "))
	}
	return Get(name)
}

// Open opens and pings the database named by d
func Open(ctx context.Context, d Descriptor) (*sql.DB, Dialect, error) {
	dia, err := ForDriver(d.Driver)
	if err != nil {
		return nil, nil, err
	}
	dsn, err := NormalizeDSN(d.Driver, d.DSN)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s database: %w", d.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to %s database: %w", d.Driver, err)
	}
	return db, dia, nil
}

// NormalizeDSN adds the connection options the provider depends on: foreign
// key enforcement for SQLite, and found-rows counting plus time parsing for
// MySQL so that keyed updates of unchanged rows still report a match.
func NormalizeDSN(driver, dsn string) (string, error) {
	switch driver {
	case "sqlite3":
		if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
			return dsn, nil
		}
		return appendQuery(dsn, "_foreign_keys=1"), nil
	case "sqlite":
		if strings.Contains(dsn, "foreign_keys") {
			return dsn, nil
		}
		return appendQuery(dsn, "_pragma=foreign_keys(1)"), nil
	case "mysql":
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid mysql DSN: %w", err)
		}
		cfg.ClientFoundRows = true
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	default:
		return dsn, nil
	}
}

func appendQuery(dsn, opt string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + opt
	}
	if dsn == ":memory:" {
		return "file::memory:?" + opt
	}
	return dsn + "?" + opt
}
