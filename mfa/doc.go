// Package mfa implements the one-time challenge machine: issuance,
// constant-time verification, expiry, supersession of prior unused
// challenges, single-use backup codes, and the step-up window that
// lets one confirmation cover a short burst of sensitive operations.
package mfa
