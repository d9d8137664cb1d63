package authguard

import (
	"errors"

	"github.com/coreledger/authguard/mfa"
	"github.com/coreledger/authguard/refresh"
	"github.com/coreledger/authguard/token"
)

var (
	// ErrUnauthorized reports a missing, malformed, expired or
	// unverifiable credential. The message deliberately carries no
	// detail an unauthenticated caller could use.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden reports a valid credential with insufficient
	// permission. Never conflated with ErrUnauthorized.
	ErrForbidden = errors.New("forbidden")
	// ErrAccountLocked reports an identifier in the locked phase of
	// the brute-force guard.
	ErrAccountLocked = errors.New("too many attempts")
	// ErrAccountInactive reports a principal whose account is
	// disabled.
	ErrAccountInactive = errors.New("account inactive")
	// ErrUserNotFound is internal to login flows; the public surface
	// folds it into ErrUnauthorized so username existence never
	// leaks.
	ErrUserNotFound = errors.New("user not found")
	// ErrRateExceeded reports a denial by an issuance throttle.
	ErrRateExceeded = errors.New("rate exceeded")
	// ErrEngineNotReady reports use of an Engine whose Build did not
	// complete.
	ErrEngineNotReady = errors.New("engine not ready")
)

// Component sentinels surfaced at the engine boundary.
var (
	ErrChallengeExpired      = mfa.ErrChallengeExpired
	ErrChallengeAlreadyUsed  = mfa.ErrChallengeUsed
	ErrChallengeNotFound     = mfa.ErrChallengeNotFound
	ErrChallengeCodeMismatch = mfa.ErrCodeMismatch
	ErrTokenRevoked          = refresh.ErrTokenRevoked
	ErrTokenNotFound         = refresh.ErrTokenNotFound
	ErrTokenExpired          = refresh.ErrTokenExpired
	ErrAccessTokenExpired    = token.ErrExpired
	ErrAccessTokenMalformed  = token.ErrMalformed
	ErrSignatureInvalid      = token.ErrSignatureInvalid
)
