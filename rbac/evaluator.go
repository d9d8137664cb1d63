package rbac

import "errors"

// ErrRoleNotFound is returned when a role id has no definition.
var ErrRoleNotFound = errors.New("rbac: role not found")

// Evaluator answers permission questions for a role by flattening the
// role's inheritance graph to a permission set at call time. No result
// is cached across calls: a just-revoked permission must stop working
// promptly, which outranks the cost of re-flattening.
type Evaluator struct {
	source Source
}

// NewEvaluator returns an evaluator reading role definitions from source.
func NewEvaluator(source Source) (*Evaluator, error) {
	if source == nil {
		return nil, errors.New("rbac: source is required")
	}
	return &Evaluator{source: source}, nil
}

// Flatten resolves roleID and every inherited role into a single
// permission set. Visited role ids are tracked so accidental
// inheritance cycles terminate and contribute each role's direct
// permissions exactly once.
func (e *Evaluator) Flatten(roleID string) (map[Permission]struct{}, error) {
	perms := make(map[Permission]struct{})
	visited := make(map[string]struct{})
	if err := e.walk(roleID, visited, func(r Role) {
		for _, p := range r.Direct {
			perms[p] = struct{}{}
		}
	}); err != nil {
		return nil, err
	}
	return perms, nil
}

func (e *Evaluator) walk(roleID string, visited map[string]struct{}, visit func(Role)) error {
	if _, seen := visited[roleID]; seen {
		return nil
	}
	visited[roleID] = struct{}{}

	role, ok, err := e.source.Role(roleID)
	if err != nil {
		return err
	}
	if !ok {
		// Only the root of the walk is required to exist; a dangling
		// inherited id is tolerated as an empty contribution.
		if len(visited) == 1 {
			return ErrRoleNotFound
		}
		return nil
	}
	visit(role)

	for _, parent := range role.Inherits {
		if err := e.walk(parent, visited, visit); err != nil {
			return err
		}
	}
	return nil
}

// HasPermission reports whether roleID grants perm.
func (e *Evaluator) HasPermission(roleID string, perm Permission) (bool, error) {
	perms, err := e.Flatten(roleID)
	if err != nil {
		return false, err
	}
	_, ok := perms[perm]
	return ok, nil
}

// HasAny reports whether roleID grants at least one of perms. It
// short-circuits on the first hit.
func (e *Evaluator) HasAny(roleID string, perms []Permission) (bool, error) {
	flat, err := e.Flatten(roleID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if _, ok := flat[p]; ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAll reports whether roleID grants every one of perms. It
// short-circuits on the first miss.
func (e *Evaluator) HasAll(roleID string, perms []Permission) (bool, error) {
	flat, err := e.Flatten(roleID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if _, ok := flat[p]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// RoleNames returns the names of roleID and every role reachable
// through inheritance.
func (e *Evaluator) RoleNames(roleID string) (map[string]struct{}, error) {
	names := make(map[string]struct{})
	visited := make(map[string]struct{})
	if err := e.walk(roleID, visited, func(r Role) {
		names[r.Name] = struct{}{}
	}); err != nil {
		return nil, err
	}
	return names, nil
}

// HasRole reports whether roleID is, or inherits, a role named roleName.
func (e *Evaluator) HasRole(roleID, roleName string) (bool, error) {
	names, err := e.RoleNames(roleID)
	if err != nil {
		return false, err
	}
	_, ok := names[roleName]
	return ok, nil
}

// HasAnyRole reports whether roleID reaches any of roleNames. It
// short-circuits on the first hit.
func (e *Evaluator) HasAnyRole(roleID string, roleNames []string) (bool, error) {
	names, err := e.RoleNames(roleID)
	if err != nil {
		return false, err
	}
	for _, name := range roleNames {
		if _, ok := names[name]; ok {
			return true, nil
		}
	}
	return false, nil
}
