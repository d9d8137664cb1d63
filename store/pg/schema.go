package pg

import "context"

var schemaStatements = []string{
	`create table if not exists refresh_tokens (
		id            text primary key,
		user_id       text not null,
		device_id     text,
		token_hash    bytea not null unique,
		issued_at     timestamptz not null,
		expires_at    timestamptz not null,
		revoked_at    timestamptz,
		revoked_by_ip text,
		revoke_reason text,
		replaced_by   text
	)`,
	`create index if not exists refresh_tokens_user_idx
		on refresh_tokens (user_id) where revoked_at is null`,

	`create table if not exists backup_codes (
		user_id   text not null,
		code_hash bytea not null,
		used_at   timestamptz,
		primary key (user_id, code_hash)
	)`,

	`create table if not exists trusted_devices (
		user_id      text not null,
		device_id    text not null,
		device_name  text,
		fingerprint  text,
		user_agent   text,
		ip_address   text,
		trusted_at   timestamptz not null,
		last_used_at timestamptz not null,
		expires_at   timestamptz,
		primary key (user_id, device_id)
	)`,

	`create table if not exists login_attempts (
		id             text primary key,
		identifier     text not null,
		ip_address     text,
		method         text,
		success        boolean not null,
		failure_reason text,
		at             timestamptz not null
	)`,
	`create index if not exists login_attempts_identifier_idx
		on login_attempts (identifier, at desc)`,

	`create table if not exists security_alerts (
		id         text primary key,
		user_id    text not null,
		type       text not null,
		severity   text not null,
		message    text,
		ip_address text,
		device_id  text,
		created_at timestamptz not null,
		read_at    timestamptz
	)`,
	`create index if not exists security_alerts_unread_idx
		on security_alerts (user_id, created_at) where read_at is null`,
}

// EnsureSchema creates the engine's tables and indexes when missing.
// Every statement is idempotent, so running it on each startup is
// safe.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
