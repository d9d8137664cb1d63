package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coreledger/authguard/refresh"
)

// RefreshStore implements refresh.Store over the shared pool.
type RefreshStore struct {
	db *sql.DB
}

// Insert appends one refresh token record.
func (s *RefreshStore) Insert(ctx context.Context, rec *refresh.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens
			(id, user_id, device_id, token_hash, issued_at, expires_at)
		values ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.UserID, nullIfEmpty(rec.DeviceID), rec.TokenHash[:], rec.IssuedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return nil
}

// FindByHash resolves a token hash to its record.
func (s *RefreshStore) FindByHash(ctx context.Context, hash [32]byte) (*refresh.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, user_id, device_id, token_hash, issued_at, expires_at,
		       revoked_at, revoked_by_ip, revoke_reason, replaced_by
		from refresh_tokens
		where token_hash = $1
	`, hash[:])
	rec, err := scanRefreshRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, refresh.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return rec, nil
}

// Rotate revokes the old record and inserts its successor in one
// transaction. The revoking update is guarded on revoked_at being
// null, so a concurrent rotation of the same token loses with
// [refresh.ErrTokenRevoked].
func (s *RefreshStore) Rotate(ctx context.Context, oldID string, rev refresh.Revocation, next *refresh.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update refresh_tokens
		set revoked_at = $1, revoked_by_ip = $2, revoke_reason = $3, replaced_by = $4
		where id = $5 and revoked_at is null
	`, rev.At, nullIfEmpty(rev.ByIP), nullIfEmpty(rev.Reason), next.ID, oldID)
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return refresh.ErrTokenRevoked
	}

	if _, err := tx.ExecContext(ctx, `
		insert into refresh_tokens
			(id, user_id, device_id, token_hash, issued_at, expires_at)
		values ($1, $2, $3, $4, $5, $6)
	`, next.ID, next.UserID, nullIfEmpty(next.DeviceID), next.TokenHash[:], next.IssuedAt, next.ExpiresAt); err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return nil
}

// Revoke marks one record revoked.
func (s *RefreshStore) Revoke(ctx context.Context, id string, rev refresh.Revocation) error {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set revoked_at = $1, revoked_by_ip = $2, revoke_reason = $3
		where id = $4 and revoked_at is null
	`, rev.At, nullIfEmpty(rev.ByIP), nullIfEmpty(rev.Reason), id)
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return refresh.ErrTokenRevoked
	}
	return nil
}

// RevokeAllForUser revokes every active record the user holds in a
// single statement, so a crash cannot leave a partial batch.
func (s *RefreshStore) RevokeAllForUser(ctx context.Context, userID string, rev refresh.Revocation) (int, error) {
	return s.revokeBatch(ctx, `
		update refresh_tokens
		set revoked_at = $1, revoked_by_ip = $2, revoke_reason = $3
		where user_id = $4 and revoked_at is null
	`, rev.At, nullIfEmpty(rev.ByIP), nullIfEmpty(rev.Reason), userID)
}

// RevokeAllForUserExcept revokes every active record except keepID.
func (s *RefreshStore) RevokeAllForUserExcept(ctx context.Context, userID, keepID string, rev refresh.Revocation) (int, error) {
	return s.revokeBatch(ctx, `
		update refresh_tokens
		set revoked_at = $1, revoked_by_ip = $2, revoke_reason = $3
		where user_id = $4 and id <> $5 and revoked_at is null
	`, rev.At, nullIfEmpty(rev.ByIP), nullIfEmpty(rev.Reason), userID, keepID)
}

func (s *RefreshStore) revokeBatch(ctx context.Context, query string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// DeleteExpired removes records past expiry.
func (s *RefreshStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from refresh_tokens where expires_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRefreshRecord(row rowScanner) (*refresh.Record, error) {
	var (
		rec      refresh.Record
		hash     []byte
		deviceID sql.NullString
		revoked  sql.NullTime
		byIP     sql.NullString
		reason   sql.NullString
		replaced sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.UserID, &deviceID, &hash, &rec.IssuedAt,
		&rec.ExpiresAt, &revoked, &byIP, &reason, &replaced)
	if err != nil {
		return nil, err
	}
	copy(rec.TokenHash[:], hash)
	rec.DeviceID = deviceID.String
	if revoked.Valid {
		t := revoked.Time
		rec.RevokedAt = &t
	}
	rec.RevokedByIP = byIP.String
	rec.RevokeReason = reason.String
	rec.ReplacedBy = replaced.String
	return &rec, nil
}
