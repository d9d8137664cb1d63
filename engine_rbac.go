package authguard

import (
	"errors"

	"github.com/coreledger/authguard/rbac"
)

// HasPermission reports one permission for the principal's role.
// Unknown roles answer false.
func (e *Engine) HasPermission(principal *Principal, perm rbac.Permission) bool {
	if e == nil || principal == nil {
		return false
	}
	ok, err := e.evaluator.HasPermission(principal.RoleID, perm)
	return err == nil && ok
}

// HasAny reports whether the principal holds at least one of perms.
func (e *Engine) HasAny(principal *Principal, perms []rbac.Permission) bool {
	if e == nil || principal == nil {
		return false
	}
	ok, err := e.evaluator.HasAny(principal.RoleID, perms)
	return err == nil && ok
}

// HasAll reports whether the principal holds every permission in
// perms.
func (e *Engine) HasAll(principal *Principal, perms []rbac.Permission) bool {
	if e == nil || principal == nil {
		return false
	}
	ok, err := e.evaluator.HasAll(principal.RoleID, perms)
	return err == nil && ok
}

// HasRole reports whether roleName is reachable from the principal's
// role through inheritance.
func (e *Engine) HasRole(principal *Principal, roleName string) bool {
	if e == nil || principal == nil {
		return false
	}
	ok, err := e.evaluator.HasRole(principal.RoleID, roleName)
	return err == nil && ok
}

// HasAnyRole reports whether any of roleNames is reachable from the
// principal's role.
func (e *Engine) HasAnyRole(principal *Principal, roleNames []string) bool {
	if e == nil || principal == nil {
		return false
	}
	ok, err := e.evaluator.HasAnyRole(principal.RoleID, roleNames)
	return err == nil && ok
}

// EffectivePermissions flattens the principal's role to its full
// permission set, inherited roles included.
func (e *Engine) EffectivePermissions(principal *Principal) ([]rbac.Permission, error) {
	if e == nil || e.evaluator == nil {
		return nil, ErrEngineNotReady
	}
	if principal == nil {
		return nil, ErrUnauthorized
	}
	set, err := e.evaluator.Flatten(principal.RoleID)
	if err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	perms := make([]rbac.Permission, 0, len(set))
	for perm := range set {
		perms = append(perms, perm)
	}
	return perms, nil
}
