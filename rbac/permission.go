package rbac

import "sync"

// Resource names a protected resource kind ("loan", "payroll", ...).
type Resource string

// Action names an operation on a resource ("read", "approve", ...).
type Action string

// Permission is a closed (resource, action) pair. Permissions are
// checked by set membership, never by hierarchy between kinds.
type Permission struct {
	Resource Resource
	Action   Action
}

// Role is a named set of direct permissions plus the ids of roles it
// inherits from. Inheritance is resolved at evaluation time, not
// stored precomputed, so role edits take effect immediately.
type Role struct {
	ID       string
	Name     string
	Direct   []Permission
	Inherits []string
}

// Source resolves role ids to role definitions.
type Source interface {
	Role(roleID string) (Role, bool, error)
}

// StaticSource is an in-memory, mutable role directory guarded by a
// read-write mutex. It is the default [Source] for deployments that
// declare roles at startup.
type StaticSource struct {
	mu    sync.RWMutex
	roles map[string]Role
}

// NewStaticSource returns an empty role directory.
func NewStaticSource() *StaticSource {
	return &StaticSource{roles: make(map[string]Role)}
}

// SetRole adds or replaces a role definition.
func (s *StaticSource) SetRole(role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.ID] = role
}

// DeleteRole removes a role definition.
func (s *StaticSource) DeleteRole(roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, roleID)
}

// Role implements [Source].
func (s *StaticSource) Role(roleID string) (Role, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[roleID]
	return role, ok, nil
}

// Count reports the number of registered roles.
func (s *StaticSource) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roles)
}
