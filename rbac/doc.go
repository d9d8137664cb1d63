// Package rbac resolves whether a role may perform an action on a
// resource. Roles are flattened through their inheritance graph on
// every evaluation, cycle-safe, with no cross-request caching.
package rbac
