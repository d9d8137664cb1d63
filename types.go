package authguard

import (
	"context"
	"time"

	"github.com/coreledger/authguard/mfa"
)

// Principal is the authenticated identity loaded from the credential
// store. It is read-only to this engine except for the lockout
// fields, which the engine writes back through
// [CredentialStore.UpdateLockout].
type Principal struct {
	ID          string
	Email       string
	RoleID      string
	Active      bool
	LockedUntil *time.Time
}

// CredentialStore is the outbound interface to the system of record
// for users. Password verification happens on the caller's side of
// this boundary; the engine only consumes its outcome.
type CredentialStore interface {
	FindUserByID(ctx context.Context, id string) (*Principal, error)
	FindUserByUsername(ctx context.Context, username string) (*Principal, error)
	UpdateLockout(ctx context.Context, userID string, lockedUntil *time.Time) error
}

// Sender delivers challenge codes out of band (SMS, email).
type Sender = mfa.Sender
