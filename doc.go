// Package authguard provides an authentication and session security
// engine with signed access tokens, rotating opaque refresh tokens,
// role-based authorization, brute-force lockout, delivered-code MFA
// with backup codes, and a trusted device registry.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authguard is the facade. The mechanics live in the component
// packages (token, rbac, lockout, mfa, device, refresh, alert,
// attempt) and remain usable on their own; the engine adds the
// cross-wiring: lockouts write back to the credential store, reuse
// of a revoked refresh token alerts the owner, a trusted device
// bypasses step-up.
//
// # Failure posture
//
// Authentication and authorization fail closed: a store outage denies
// rather than admits. Error values returned to callers never reveal
// whether an identifier, challenge, or token exists for someone else.
//
// # Hot path
//
// Authenticate verifies a signature and performs one credential store
// lookup; it makes no Redis or SQL round-trips beyond that lookup.
// Side-channel work (audit, alerts, metrics) is asynchronous or
// in-process and never blocks the request.
package authguard
