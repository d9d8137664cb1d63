// Package refresh manages opaque rotating refresh tokens.
//
// Tokens are high-entropy opaque strings handed to clients once and
// stored only as SHA-256 hashes. Each token is single-use: rotation
// revokes the presented token and issues a successor atomically, so a
// replay of an already-rotated token fails with ErrTokenRevoked and can
// be treated as theft by the caller.
//
// The Manager owns policy (TTL, rotation, device binding); the Store
// interface owns persistence and must guarantee single-winner rotation
// under concurrent presenters.
package refresh
