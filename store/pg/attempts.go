package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coreledger/authguard/attempt"
)

// AttemptStore implements attempt.Store over the shared pool.
type AttemptStore struct {
	db *sql.DB
}

// Insert appends one attempt row.
func (s *AttemptStore) Insert(ctx context.Context, a *attempt.Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		insert into login_attempts
			(id, identifier, ip_address, method, success, failure_reason, at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Identifier, nullIfEmpty(a.IPAddress), nullIfEmpty(a.Method),
		a.Success, nullIfEmpty(a.FailureReason), a.At)
	if err != nil {
		return fmt.Errorf("%w: %v", attempt.ErrStoreUnavailable, err)
	}
	return nil
}

// CountFailuresSince counts failed attempts inside the window.
func (s *AttemptStore) CountFailuresSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*)
		from login_attempts
		where identifier = $1 and success = false and at >= $2
	`, identifier, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", attempt.ErrStoreUnavailable, err)
	}
	return n, nil
}

// ListRecent returns up to limit attempts inside the window, newest
// first.
func (s *AttemptStore) ListRecent(ctx context.Context, identifier string, since time.Time, limit int) ([]attempt.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, identifier, ip_address, method, success, failure_reason, at
		from login_attempts
		where identifier = $1 and at >= $2
		order by at desc
		limit $3
	`, identifier, since, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", attempt.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []attempt.Attempt
	for rows.Next() {
		var (
			a         attempt.Attempt
			ipAddress sql.NullString
			method    sql.NullString
			reason    sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Identifier, &ipAddress, &method,
			&a.Success, &reason, &a.At); err != nil {
			return nil, fmt.Errorf("%w: %v", attempt.ErrStoreUnavailable, err)
		}
		a.IPAddress = ipAddress.String
		a.Method = method.String
		a.FailureReason = reason.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", attempt.ErrStoreUnavailable, err)
	}
	return out, nil
}
