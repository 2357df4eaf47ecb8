package middleware

import (
	"context"

	"github.com/angelmondragon/kolo-backend/pkg/enums"
)

// caller is the authenticated identity Auth resolved for the request.
type caller struct {
	userID string
	role   enums.UserRole
}

type (
	callerKey    struct{}
	requestIDKey struct{}
)

func callerFrom(ctx context.Context) caller {
	if ctx == nil {
		return caller{}
	}
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

func withCaller(ctx context.Context, update func(*caller)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := callerFrom(ctx)
	update(&c)
	return context.WithValue(ctx, callerKey{}, c)
}

// UserIDFromContext returns the caller's id, or "" before Auth ran.
func UserIDFromContext(ctx context.Context) string {
	return callerFrom(ctx).userID
}

// RoleFromContext returns the caller's platform role, or "" before Auth ran.
func RoleFromContext(ctx context.Context) enums.UserRole {
	return callerFrom(ctx).role
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return withCaller(ctx, func(c *caller) { c.userID = userID })
}

func WithRole(ctx context.Context, role enums.UserRole) context.Context {
	return withCaller(ctx, func(c *caller) { c.role = role })
}

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
