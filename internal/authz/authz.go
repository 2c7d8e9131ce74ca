// Package authz answers "can this session do X" from the permission list
// carried in the session token. The static role table is never consulted.
package authz

import (
	"slices"

	"github.com/hongminglow/rdbs-admin-be/internal/session"
)

// HasPermission reports whether name is in the session's permission list.
func HasPermission(s session.Snapshot, name string) bool {
	if !s.Authenticated() {
		return false
	}
	return slices.Contains(s.User.Permissions, name)
}

// HasAnyPermission is a logical OR over names; false for an empty list.
func HasAnyPermission(s session.Snapshot, names []string) bool {
	for _, name := range names {
		if HasPermission(s, name) {
			return true
		}
	}
	return false
}

// HasAllPermissions is a logical AND over names; vacuously true for an empty
// list when the session is authenticated.
func HasAllPermissions(s session.Snapshot, names []string) bool {
	if !s.Authenticated() {
		return false
	}
	for _, name := range names {
		if !HasPermission(s, name) {
			return false
		}
	}
	return true
}

// HasRole reports whether the session user holds role.
func HasRole(s session.Snapshot, role string) bool {
	return s.Authenticated() && s.User.Role == role
}

// HasAnyRole reports whether the session user holds one of roles.
func HasAnyRole(s session.Snapshot, roles []string) bool {
	return s.Authenticated() && slices.Contains(roles, s.User.Role)
}

// Mode selects how a multi-valued requirement is combined.
type Mode int

const (
	MatchAny Mode = iota
	MatchAll
)

// Requirement is a capability gate. Permission and role constraints are
// combined with AND; within each, Mode picks OR or AND. An empty requirement
// only demands an authenticated session.
type Requirement struct {
	Permissions []string
	Roles       []string
	Mode        Mode
}

// Permission builds a requirement on a single permission.
func Permission(name string) Requirement {
	return Requirement{Permissions: []string{name}}
}

// AnyPermission builds a requirement satisfied by any of names.
func AnyPermission(names ...string) Requirement {
	return Requirement{Permissions: names, Mode: MatchAny}
}

// AllPermissions builds a requirement satisfied only by all of names.
func AllPermissions(names ...string) Requirement {
	return Requirement{Permissions: names, Mode: MatchAll}
}

// Role builds a requirement on a single role.
func Role(name string) Requirement {
	return Requirement{Roles: []string{name}}
}

// AnyRole builds a requirement satisfied by any of roles.
func AnyRole(roles ...string) Requirement {
	return Requirement{Roles: roles, Mode: MatchAny}
}

// Allows evaluates req against the session.
func Allows(s session.Snapshot, req Requirement) bool {
	if !s.Authenticated() {
		return false
	}
	if len(req.Permissions) > 0 {
		ok := HasAnyPermission(s, req.Permissions)
		if req.Mode == MatchAll {
			ok = HasAllPermissions(s, req.Permissions)
		}
		if !ok {
			return false
		}
	}
	if len(req.Roles) > 0 {
		if req.Mode == MatchAll {
			for _, role := range req.Roles {
				if !HasRole(s, role) {
					return false
				}
			}
		} else if !HasAnyRole(s, req.Roles) {
			return false
		}
	}
	return true
}
