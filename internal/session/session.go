// Package session carries the signed-in user and the admin settings into
// the services, and scopes subscription lifetimes to a view or request.
package session

import (
	"context"

	"trackly/internal/domain"
	"trackly/internal/errs"
)

type Session struct {
	User     domain.User
	Settings domain.AdminSettings
}

func (s Session) IsAdmin() bool {
	return s.User.Role == domain.RoleAdmin
}

func (s Session) ActorID() string {
	return s.User.ID
}

func (s Session) Role() string {
	if s.User.Role == "" {
		return domain.RoleUser
	}
	return s.User.Role
}

// RequireAdmin returns a ForbiddenError naming action for non-admins.
func (s Session) RequireAdmin(action string) error {
	if !s.IsAdmin() {
		return errs.ForbiddenError{Action: action}
	}
	return nil
}

// CanActFor reports whether the session may touch data owned by userID.
func (s Session) CanActFor(userID string) bool {
	return s.IsAdmin() || s.User.ID == userID
}

// System is the session used by the CLI and background jobs.
func System() Session {
	return Session{User: domain.User{ID: "system", Name: "System", Role: domain.RoleAdmin, Active: true}}
}

type ctxKey struct{}

func With(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func From(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
