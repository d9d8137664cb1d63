// Package middleware exposes HTTP adapters over the engine's
// authentication and authorization checks.
//
// # Guards
//
//   - [RequireAuth]: authenticates the bearer token and injects the
//     principal into the request context.
//   - [RequirePermission]: one (resource, action) check per route.
//   - [RequireStepUp]: gates sensitive routes on fresh MFA or a
//     trusted device.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into engine calls. It makes
// no authentication or authorization decisions of its own, and it
// never distinguishes failure causes in response bodies beyond the
// status code.
package middleware
