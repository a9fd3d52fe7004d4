package ormerrors

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct{}

func TestError_IsMatchesSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		sentinel error
		kind     Kind
	}{
		{"composite key", AmbiguousCompositeKey("app.Line"), ErrAmbiguousCompositeKeyOrdering, KindAmbiguousCompositeKeyOrdering},
		{"fk member", ForeignKeyMemberMissing("OwnerID", "app.Pet"), ErrForeignKeyMemberNotFound, KindForeignKeyMemberNotFound},
		{"principal", AmbiguousPrincipal("app.A", "app.B"), ErrAmbiguousRelationshipPrincipal, KindAmbiguousRelationshipPrincipal},
		{"schema", SchemaMismatch("Pets", "app.Pet", "missing column 'Name'"), ErrSchemaMismatch, KindSchemaMismatch},
		{"not found", EntityNotFound("app.Pet", []any{1}), ErrEntityNotFound, KindEntityNotFound},
		{"finalized", ContextFinalized("app.Pet", "committed", nil), ErrContextFinalized, KindContextFinalized},
		{"fk violation", ForeignKeyViolation("app.Pet", nil), ErrForeignKeyViolation, KindForeignKeyViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.Equal(t, tt.kind, KindOf(wrapped))
			assert.NotEmpty(t, tt.err.Type)
		})
	}
}

func TestError_Messages(t *testing.T) {
	assert.Equal(t,
		"unable to determine composite key ordering for type 'app.Line': specify an explicit order on every key member",
		AmbiguousCompositeKey("app.Line").Error())
	assert.Equal(t,
		"foreign key member 'OwnerID' was not found on type 'app.Pet'",
		ForeignKeyMemberMissing("OwnerID", "app.Pet").Error())
	assert.Equal(t,
		"no entity of type 'app.Pet' was found with key (1, x)",
		EntityNotFound("app.Pet", []any{1, "x"}).Error())
	assert.Equal(t,
		"operation on 'app.Pet' failed: the unit of work has already been rolled back",
		ContextFinalized("app.Pet", "rolled back", nil).Error())
}

func TestTypeName(t *testing.T) {
	name := TypeName(reflect.TypeOf(&sample{}))
	assert.Equal(t, "github.com/reposit-go/reposit/internal/orm/ormerrors.sample", name)
	assert.Equal(t, "int", TypeName(reflect.TypeOf(0)))
}

func TestIsForeignKeyViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"pgx", &pgconn.PgError{Code: "23503"}, true},
		{"pgx unique", &pgconn.PgError{Code: "23505"}, false},
		{"pq", &pq.Error{Code: "23503"}, true},
		{"mysql child", &mysql.MySQLError{Number: 1452}, true},
		{"mysql parent", &mysql.MySQLError{Number: 1451}, true},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, false},
		{"sqlite3", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, true},
		{"sqlite3 unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, false},
		{"message fallback", errors.New("constraint failed: FOREIGN KEY constraint failed (787)"), true},
		{"wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: "23503"}), true},
		{"other", errors.New("disk full"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsForeignKeyViolation(tt.err))
		})
	}
}

func TestConvertDBError(t *testing.T) {
	assert.NoError(t, ConvertDBError("app.Pet", nil))

	plain := errors.New("boom")
	assert.Same(t, plain, ConvertDBError("app.Pet", plain))

	err := ConvertDBError("app.Pet", &pq.Error{Code: "23503", Message: "insert violates fk"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrForeignKeyViolation))
	var classified *Error
	require.True(t, errors.As(err, &classified))
	assert.Equal(t, "app.Pet", classified.Type)

	already := EntityNotFound("app.Pet", []any{7})
	assert.Same(t, already, ConvertDBError("app.Other", already))
}
