package mfa

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// backupCodeAlphabet omits ambiguous characters (0/O, 1/I/L).
const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// LowCodeThreshold is the remaining-code count at or below which
// callers should prompt the user to regenerate.
const LowCodeThreshold = 2

// BackupCodeStore persists backup-code hashes. Consume must be
// atomic: a hash is marked used by exactly one caller.
type BackupCodeStore interface {
	Replace(ctx context.Context, userID string, hashes [][32]byte) error
	Consume(ctx context.Context, userID string, hash [32]byte) (bool, error)
	CountUnused(ctx context.Context, userID string) (int, error)
}

// BackupCodes manages the finite, pre-generated recovery code set.
// Codes are single-use with no time expiry; consumption is the only
// state transition. The plaintext is returned once at generation and
// never persisted.
type BackupCodes struct {
	store  BackupCodeStore
	count  int
	length int
}

// NewBackupCodes creates a manager generating count codes of length
// characters (defaults 10 and 8).
func NewBackupCodes(store BackupCodeStore, count, length int) (*BackupCodes, error) {
	if store == nil {
		return nil, errors.New("backup code store is required")
	}
	if count <= 0 {
		count = 10
	}
	if length <= 0 {
		length = 8
	}
	return &BackupCodes{store: store, count: count, length: length}, nil
}

// Generate mints a fresh code set for userID, invalidating every
// previously issued code, and returns the formatted plaintexts.
func (b *BackupCodes) Generate(ctx context.Context, userID string) ([]string, error) {
	codes := make([]string, 0, b.count)
	hashes := make([][32]byte, 0, b.count)
	for i := 0; i < b.count; i++ {
		code, err := newBackupCode(b.length)
		if err != nil {
			return nil, err
		}
		codes = append(codes, formatBackupCode(code))
		hashes = append(hashes, CodeHash(userID, code))
	}
	if err := b.store.Replace(ctx, userID, hashes); err != nil {
		return nil, err
	}
	return codes, nil
}

// Verify consumes one backup code. Any miss (unknown code, already
// consumed, or a code from a superseded set) reports the same
// [ErrCodeMismatch] so callers cannot distinguish them.
func (b *BackupCodes) Verify(ctx context.Context, userID, code string) error {
	ok, err := b.store.Consume(ctx, userID, CodeHash(userID, code))
	if err != nil {
		return err
	}
	if !ok {
		return ErrCodeMismatch
	}
	return nil
}

// Remaining reports how many unused codes userID still holds.
func (b *BackupCodes) Remaining(ctx context.Context, userID string) (int, error) {
	return b.store.CountUnused(ctx, userID)
}

// RegenerationAdvised reports whether the remaining count is low
// enough that the caller should prompt for regeneration.
func (b *BackupCodes) RegenerationAdvised(remaining int) bool {
	return remaining <= LowCodeThreshold
}

func newBackupCode(length int) (string, error) {
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = backupCodeAlphabet[n.Int64()]
	}
	return string(out), nil
}

func formatBackupCode(code string) string {
	if len(code) <= 4 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

func canonicalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}
