// Package migrate creates and validates the tables behind entity types. It
// renders CREATE TABLE statements per dialect, inspects live tables and
// reports drift between a table and the metadata that maps onto it.
package migrate

import (
	"database/sql"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/reposit-go/reposit/internal/orm/dialect"
	"github.com/reposit-go/reposit/internal/orm/schema"
)

var (
	timeType  = reflect.TypeOf(time.Time{})
	uuidType  = reflect.TypeOf(uuid.UUID{})
	bytesType = reflect.TypeOf([]byte(nil))
)

// nullable wrappers from database/sql and the scalar they carry
var nullWrappers = map[reflect.Type]reflect.Type{
	reflect.TypeOf(sql.NullString{}):  reflect.TypeOf(""),
	reflect.TypeOf(sql.NullInt64{}):   reflect.TypeOf(int64(0)),
	reflect.TypeOf(sql.NullInt32{}):   reflect.TypeOf(int32(0)),
	reflect.TypeOf(sql.NullInt16{}):   reflect.TypeOf(int16(0)),
	reflect.TypeOf(sql.NullByte{}):    reflect.TypeOf(byte(0)),
	reflect.TypeOf(sql.NullFloat64{}): reflect.TypeOf(float64(0)),
	reflect.TypeOf(sql.NullBool{}):    reflect.TypeOf(false),
	reflect.TypeOf(sql.NullTime{}):    timeType,
	reflect.TypeOf(uuid.NullUUID{}):   uuidType,
}

// TypeMapper maps Go field types to column types of one dialect
type TypeMapper struct {
	dialect string
}

// NewTypeMapper creates a new TypeMapper
func NewTypeMapper(d dialect.Dialect) *TypeMapper {
	return &TypeMapper{dialect: d.Name()}
}

// MapType returns the column type of c. Key and foreign key columns get a
// bounded string type where the engine cannot index unbounded text.
func (tm *TypeMapper) MapType(c *schema.Column, indexed bool) (string, error) {
	t := c.Type
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if inner, ok := nullWrappers[t]; ok {
		t = inner
	}

	switch t {
	case timeType:
		return tm.pick("DATETIME", "TIMESTAMP WITH TIME ZONE", "DATETIME(6)", "TIMESTAMP"), nil
	case uuidType:
		return tm.pick("TEXT", "UUID", "CHAR(36)", "CHAR(36)"), nil
	case bytesType:
		return tm.pick("BLOB", "BYTEA", "LONGBLOB", "BLOB"), nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return tm.pick("INTEGER", "BOOLEAN", "TINYINT(1)", "BOOLEAN"), nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return tm.pick("INTEGER", "INTEGER", "INT", "INTEGER"), nil
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return tm.pick("INTEGER", "BIGINT", "BIGINT", "BIGINT"), nil
	case reflect.Float32:
		return tm.pick("REAL", "REAL", "FLOAT", "REAL"), nil
	case reflect.Float64:
		return tm.pick("REAL", "DOUBLE PRECISION", "DOUBLE", "DOUBLE PRECISION"), nil
	case reflect.String:
		if indexed {
			return tm.pick("TEXT", "VARCHAR(255)", "VARCHAR(255)", "VARCHAR(255)"), nil
		}
		return tm.pick("TEXT", "TEXT", "LONGTEXT", "VARCHAR(4000)"), nil
	default:
		return "", fmt.Errorf("column %s: unsupported field type %s", c.Name, c.Type)
	}
}

// MapNullability returns the nullability clause of c
func (tm *TypeMapper) MapNullability(c *schema.Column) string {
	if c.Required {
		return "NOT NULL"
	}
	return "NULL"
}

func (tm *TypeMapper) pick(sqlite, postgres, mysql, ansi string) string {
	switch tm.dialect {
	case dialect.SQLite:
		return sqlite
	case dialect.Postgres:
		return postgres
	case dialect.MySQL:
		return mysql
	default:
		return ansi
	}
}
