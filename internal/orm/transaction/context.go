package transaction

import (
	"context"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const contextKeyUnitOfWork contextKey = "reposit:unit-of-work"

// FromContext retrieves the unit of work carried by ctx
func FromContext(ctx context.Context) (*UnitOfWork, bool) {
	u, ok := ctx.Value(contextKeyUnitOfWork).(*UnitOfWork)
	return u, ok
}

// WithContext returns a new context carrying u
func WithContext(ctx context.Context, u *UnitOfWork) context.Context {
	return context.WithValue(ctx, contextKeyUnitOfWork, u)
}
