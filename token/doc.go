// Package token issues and verifies the signed, short-lived bearer
// tokens that prove recent authentication. Tokens are stateless: no
// revocation list is consulted at verify time, so a compromised token
// is bounded by its TTL and all revocation decisions happen at the
// refresh layer.
package token
