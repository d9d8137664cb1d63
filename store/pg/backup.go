package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreledger/authguard/mfa"
)

// BackupCodeStore implements mfa.BackupCodeStore over the shared pool.
type BackupCodeStore struct {
	db *sql.DB
}

// Replace swaps the user's whole code set in one transaction, so the
// old set is invalid the instant the new one exists.
func (s *BackupCodeStore) Replace(ctx context.Context, userID string, hashes [][32]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", mfa.ErrChallengeBackend, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from backup_codes where user_id = $1`, userID); err != nil {
		return fmt.Errorf("%w: %v", mfa.ErrChallengeBackend, err)
	}
	for _, hash := range hashes {
		if _, err := tx.ExecContext(ctx,
			`insert into backup_codes (user_id, code_hash) values ($1, $2)`,
			userID, hash[:]); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return fmt.Errorf("%w: duplicate code hash in generated set", mfa.ErrChallengeBackend)
			}
			return fmt.Errorf("%w: %v", mfa.ErrChallengeBackend, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", mfa.ErrChallengeBackend, err)
	}
	return nil
}

// Consume marks one unused code used. The guarded update makes the
// code single-use: of two concurrent consumers exactly one sees a row
// change.
func (s *BackupCodeStore) Consume(ctx context.Context, userID string, hash [32]byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update backup_codes
		set used_at = now()
		where user_id = $1 and code_hash = $2 and used_at is null
	`, userID, hash[:])
	if err != nil {
		return false, fmt.Errorf("%w: %v", mfa.ErrChallengeBackend, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", mfa.ErrChallengeBackend, err)
	}
	return n > 0, nil
}

// CountUnused reports how many codes remain unconsumed.
func (s *BackupCodeStore) CountUnused(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from backup_codes where user_id = $1 and used_at is null
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", mfa.ErrChallengeBackend, err)
	}
	return n, nil
}
