// Package auth exposes the authentication status consumed by the dual-mode
// persistence layer. The engine never owns credentials; it only asks who, if
// anyone, is signed in.
package auth

import "context"

// User identifies an authenticated evaluator.
type User struct {
	ID    uint   `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Provider reports the current authentication status. A nil user means guest
// mode: everything stays in local device storage, unencrypted.
type Provider interface {
	CurrentUser(ctx context.Context) *User
}

type userContextKey struct{}

// ContextWithUser binds the authenticated user to the request context.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	if user == nil {
		return ctx
	}
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext extracts the authenticated user, or nil for guests.
func UserFromContext(ctx context.Context) *User {
	if ctx == nil {
		return nil
	}
	if user, ok := ctx.Value(userContextKey{}).(*User); ok {
		return user
	}
	return nil
}

// ContextProvider resolves the current user from the request context, where
// the JWT middleware placed it.
type ContextProvider struct{}

// CurrentUser implements Provider.
func (ContextProvider) CurrentUser(ctx context.Context) *User {
	return UserFromContext(ctx)
}
