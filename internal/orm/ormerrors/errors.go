// Package ormerrors defines the error taxonomy surfaced by the repository
// provider. Every error carries the full name of the offending entity type and
// a stable, user-visible message.
package ormerrors

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Kind classifies a repository failure
type Kind int

const (
	KindUnknown Kind = iota
	KindAmbiguousCompositeKeyOrdering
	KindForeignKeyMemberNotFound
	KindAmbiguousRelationshipPrincipal
	KindSchemaMismatch
	KindEntityNotFound
	KindContextFinalized
	KindForeignKeyViolation
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindAmbiguousCompositeKeyOrdering:
		return "AmbiguousCompositeKeyOrdering"
	case KindForeignKeyMemberNotFound:
		return "ForeignKeyMemberNotFound"
	case KindAmbiguousRelationshipPrincipal:
		return "AmbiguousRelationshipPrincipal"
	case KindSchemaMismatch:
		return "SchemaMismatch"
	case KindEntityNotFound:
		return "EntityNotFound"
	case KindContextFinalized:
		return "ContextFinalized"
	case KindForeignKeyViolation:
		return "ForeignKeyViolation"
	default:
		return "Unknown"
	}
}

// Sentinel errors, one per kind. *Error values match them with errors.Is.
var (
	ErrAmbiguousCompositeKeyOrdering  = errors.New("ambiguous composite key ordering")
	ErrForeignKeyMemberNotFound       = errors.New("foreign key member not found")
	ErrAmbiguousRelationshipPrincipal = errors.New("ambiguous relationship principal")
	ErrSchemaMismatch                 = errors.New("schema mismatch")
	ErrEntityNotFound                 = errors.New("entity not found")
	ErrContextFinalized               = errors.New("context finalized")
	ErrForeignKeyViolation            = errors.New("foreign key violation")
)

var sentinels = map[Kind]error{
	KindAmbiguousCompositeKeyOrdering:  ErrAmbiguousCompositeKeyOrdering,
	KindForeignKeyMemberNotFound:       ErrForeignKeyMemberNotFound,
	KindAmbiguousRelationshipPrincipal: ErrAmbiguousRelationshipPrincipal,
	KindSchemaMismatch:                 ErrSchemaMismatch,
	KindEntityNotFound:                 ErrEntityNotFound,
	KindContextFinalized:               ErrContextFinalized,
	KindForeignKeyViolation:            ErrForeignKeyViolation,
}

// Message templates. The rendered text is part of the public contract.
const (
	tmplAmbiguousCompositeKey = "unable to determine composite key ordering for type '%s': specify an explicit order on every key member"
	tmplForeignKeyMember      = "foreign key member '%s' was not found on type '%s'"
	tmplAmbiguousPrincipal    = "unable to determine the principal end of the relationship between '%s' and '%s': mark the dependent navigation explicitly"
	tmplSchemaMismatch        = "the schema of table '%s' does not match the model of type '%s': %s"
	tmplEntityNotFound        = "no entity of type '%s' was found with key %s"
	tmplContextFinalized      = "operation on '%s' failed: the unit of work has already been %s"
	tmplForeignKeyViolation   = "a write to type '%s' violated a foreign key constraint: %s"
)

// Error is a classified repository error
type Error struct {
	Kind    Kind
	Type    string // full name of the offending type
	Message string
	Err     error // underlying cause, if any
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && target == s
}

// AmbiguousCompositeKey reports a multi-column key without explicit ordinals
func AmbiguousCompositeKey(typeName string) *Error {
	return &Error{
		Kind:    KindAmbiguousCompositeKeyOrdering,
		Type:    typeName,
		Message: fmt.Sprintf(tmplAmbiguousCompositeKey, typeName),
	}
}

// ForeignKeyMemberMissing reports an explicit foreign key override naming a
// member that does not exist on the dependent type
func ForeignKeyMemberMissing(member, typeName string) *Error {
	return &Error{
		Kind:    KindForeignKeyMemberNotFound,
		Type:    typeName,
		Message: fmt.Sprintf(tmplForeignKeyMember, member, typeName),
	}
}

// AmbiguousPrincipal reports a relation whose principal cannot be decided
func AmbiguousPrincipal(typeA, typeB string) *Error {
	return &Error{
		Kind:    KindAmbiguousRelationshipPrincipal,
		Type:    typeA,
		Message: fmt.Sprintf(tmplAmbiguousPrincipal, typeA, typeB),
	}
}

// SchemaMismatch reports a live table that disagrees with the model
func SchemaMismatch(table, typeName, detail string) *Error {
	return &Error{
		Kind:    KindSchemaMismatch,
		Type:    typeName,
		Message: fmt.Sprintf(tmplSchemaMismatch, table, typeName, detail),
	}
}

// EntityNotFound reports a keyed update/delete that matched no row
func EntityNotFound(typeName string, key []any) *Error {
	return &Error{
		Kind:    KindEntityNotFound,
		Type:    typeName,
		Message: fmt.Sprintf(tmplEntityNotFound, typeName, FormatKey(key)),
	}
}

// ContextFinalized reports an operation on a committed, rolled back or faulted
// unit of work
func ContextFinalized(typeName, state string, cause error) *Error {
	return &Error{
		Kind:    KindContextFinalized,
		Type:    typeName,
		Message: fmt.Sprintf(tmplContextFinalized, typeName, state),
		Err:     cause,
	}
}

// ForeignKeyViolation reports a write rejected by a foreign key constraint
func ForeignKeyViolation(typeName string, cause error) *Error {
	detail := "referenced principal row does not exist"
	if cause != nil {
		detail = cause.Error()
	}
	return &Error{
		Kind:    KindForeignKeyViolation,
		Type:    typeName,
		Message: fmt.Sprintf(tmplForeignKeyViolation, typeName, detail),
		Err:     cause,
	}
}

// KindOf returns the kind of a classified error, or KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// TypeName returns the package-qualified name of t, dereferencing pointers
func TypeName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// FormatKey renders a key tuple as "(v1, v2)"
func FormatKey(key []any) string {
	parts := make([]string, len(key))
	for i, v := range key {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
