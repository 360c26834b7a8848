// Package permissions implements per-application local roles in the style of
// an object-level permission framework: users are granted named roles on a
// single application, and each role carries a fixed set of capabilities.
// The lifecycle service consumes the Checker and RoleAssigner capability
// interfaces so the backing framework stays swappable.
package permissions

import (
	"context"
	"errors"
)

const (
	CapabilitySubmit = "submit"
	CapabilityReview = "review"
	CapabilityView   = "view"
)

var (
	// ErrNoSuchUser is returned when a role is granted to a user identity
	// that does not exist.
	ErrNoSuchUser = errors.New("no such user")
	// ErrRoleUnconfigured is returned when the role name to grant is empty.
	ErrRoleUnconfigured = errors.New("role name not configured")
)

// Checker answers object-level permission questions.
type Checker interface {
	HasPermission(ctx context.Context, applicationID, userID int64, capability string) (bool, error)
}

// RoleAssigner grants local roles on a single application. Add is additive;
// Replace first revokes every existing holder of the role.
type RoleAssigner interface {
	Add(ctx context.Context, applicationID int64, role string, userID int64) error
	Replace(ctx context.Context, applicationID int64, role string, userID int64) error
}

// RoleStore persists local role grants.
type RoleStore interface {
	LocalRoles(ctx context.Context, applicationID, userID int64) ([]string, error)
	AddLocalRole(ctx context.Context, applicationID, userID int64, role string) error
	RemoveLocalRole(ctx context.Context, applicationID int64, role string) error
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// LocalRoles is the default Checker and RoleAssigner over a RoleStore. The
// grants table maps role name to the capabilities it carries.
type LocalRoles struct {
	store  RoleStore
	grants map[string][]string
}

func NewLocalRoles(store RoleStore, grants map[string][]string) *LocalRoles {
	if grants == nil {
		grants = map[string][]string{}
	}
	return &LocalRoles{store: store, grants: grants}
}

func (l *LocalRoles) HasPermission(ctx context.Context, applicationID, userID int64, capability string) (bool, error) {
	roles, err := l.store.LocalRoles(ctx, applicationID, userID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		for _, c := range l.grants[role] {
			if c == capability {
				return true, nil
			}
		}
	}
	return false, nil
}

func (l *LocalRoles) Add(ctx context.Context, applicationID int64, role string, userID int64) error {
	if role == "" {
		return ErrRoleUnconfigured
	}
	ok, err := l.store.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchUser
	}
	return l.store.AddLocalRole(ctx, applicationID, userID, role)
}

func (l *LocalRoles) Replace(ctx context.Context, applicationID int64, role string, userID int64) error {
	if role == "" {
		return ErrRoleUnconfigured
	}
	ok, err := l.store.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchUser
	}
	if err := l.store.RemoveLocalRole(ctx, applicationID, role); err != nil {
		return err
	}
	return l.store.AddLocalRole(ctx, applicationID, userID, role)
}
