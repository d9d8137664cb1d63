// Package pg implements the engine's persistent stores over
// PostgreSQL: refresh tokens, backup codes, trusted devices, login
// attempts and security alerts. One connection pool backs them all;
// each store is a facet over it.
package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/coreledger/authguard/alert"
	"github.com/coreledger/authguard/attempt"
	"github.com/coreledger/authguard/device"
	"github.com/coreledger/authguard/mfa"
	"github.com/coreledger/authguard/refresh"
)

const (
	pgErrUniqueViolation = "23505"
)

// Store holds the shared connection pool behind every SQL-backed
// engine store.
type Store struct {
	db *sql.DB
}

var (
	_ refresh.Store       = (*RefreshStore)(nil)
	_ device.Store        = (*DeviceStore)(nil)
	_ alert.Store         = (*AlertStore)(nil)
	_ attempt.Store       = (*AttemptStore)(nil)
	_ mfa.BackupCodeStore = (*BackupCodeStore)(nil)
)

// Open connects to PostgreSQL via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing pool, mainly for tests.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// RefreshTokens returns the refresh token store facet.
func (s *Store) RefreshTokens() *RefreshStore { return &RefreshStore{db: s.db} }

// TrustedDevices returns the trusted device store facet.
func (s *Store) TrustedDevices() *DeviceStore { return &DeviceStore{db: s.db} }

// Alerts returns the security alert store facet.
func (s *Store) Alerts() *AlertStore { return &AlertStore{db: s.db} }

// LoginAttempts returns the login attempt store facet.
func (s *Store) LoginAttempts() *AttemptStore { return &AttemptStore{db: s.db} }

// BackupCodes returns the backup code store facet.
func (s *Store) BackupCodes() *BackupCodeStore { return &BackupCodeStore{db: s.db} }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
