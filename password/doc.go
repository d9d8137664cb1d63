// Package password implements password hashing and verification with
// argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The [Hasher] supports transparent parameter upgrades: if a stored
// hash was produced with weaker parameters, [Hasher.NeedsRehash]
// returns true so the caller can re-hash on the next successful
// login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy
// (length rules, reuse history) belongs to the caller, and so does
// storage: callers supply plaintext and receive hashes.
package password
