package authguard

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/coreledger/authguard/alert"
	"github.com/coreledger/authguard/attempt"
	"github.com/coreledger/authguard/device"
	"github.com/coreledger/authguard/rbac"
	"github.com/coreledger/authguard/refresh"
)

// memCredentials is a CredentialStore fake keyed by user id, with a
// username index.
type memCredentials struct {
	mu    sync.Mutex
	byID  map[string]*Principal
	byUsr map[string]string
}

func newMemCredentials(users ...*Principal) *memCredentials {
	s := &memCredentials{byID: map[string]*Principal{}, byUsr: map[string]string{}}
	for _, u := range users {
		s.byID[u.ID] = u
		s.byUsr[u.Email] = u.ID
	}
	return s
}

func (s *memCredentials) FindUserByID(_ context.Context, id string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memCredentials) FindUserByUsername(_ context.Context, username string) (*Principal, error) {
	s.mu.Lock()
	id, ok := s.byUsr[username]
	s.mu.Unlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.FindUserByID(context.Background(), id)
}

func (s *memCredentials) UpdateLockout(_ context.Context, userID string, lockedUntil *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.LockedUntil = lockedUntil
	return nil
}

func (s *memCredentials) lockedUntil(userID string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[userID]; ok {
		return u.LockedUntil
	}
	return nil
}

// memRefreshStore mirrors the SQL store's atomicity contract.
type memRefreshStore struct {
	mu   sync.Mutex
	rows map[string]*refresh.Record
}

func newMemRefreshStore() *memRefreshStore {
	return &memRefreshStore{rows: map[string]*refresh.Record{}}
}

func (s *memRefreshStore) Insert(_ context.Context, rec *refresh.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.rows[rec.ID] = &cp
	return nil
}

func (s *memRefreshStore) FindByHash(_ context.Context, hash [32]byte) (*refresh.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.rows {
		if rec.TokenHash == hash {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, refresh.ErrTokenNotFound
}

func (s *memRefreshStore) Rotate(_ context.Context, oldID string, rev refresh.Revocation, next *refresh.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.rows[oldID]
	if !ok || old.RevokedAt != nil {
		return refresh.ErrTokenRevoked
	}
	at := rev.At
	old.RevokedAt = &at
	old.RevokedByIP = rev.ByIP
	old.RevokeReason = rev.Reason
	old.ReplacedBy = next.ID
	cp := *next
	s.rows[next.ID] = &cp
	return nil
}

func (s *memRefreshStore) Revoke(_ context.Context, id string, rev refresh.Revocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[id]
	if !ok || rec.RevokedAt != nil {
		return refresh.ErrTokenRevoked
	}
	at := rev.At
	rec.RevokedAt = &at
	rec.RevokedByIP = rev.ByIP
	rec.RevokeReason = rev.Reason
	return nil
}

func (s *memRefreshStore) RevokeAllForUser(_ context.Context, userID string, rev refresh.Revocation) (int, error) {
	return s.revokeWhere(userID, "", rev), nil
}

func (s *memRefreshStore) RevokeAllForUserExcept(_ context.Context, userID, keepID string, rev refresh.Revocation) (int, error) {
	return s.revokeWhere(userID, keepID, rev), nil
}

func (s *memRefreshStore) revokeWhere(userID, keepID string, rev refresh.Revocation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.rows {
		if rec.UserID != userID || rec.ID == keepID || rec.RevokedAt != nil {
			continue
		}
		at := rev.At
		rec.RevokedAt = &at
		rec.RevokedByIP = rev.ByIP
		rec.RevokeReason = rev.Reason
		n++
	}
	return n
}

func (s *memRefreshStore) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.rows {
		if rec.ExpiresAt.Before(cutoff) || rec.RevokedAt != nil {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

type memDeviceStore struct {
	mu   sync.Mutex
	rows map[string]*device.Device
}

func newMemDeviceStore() *memDeviceStore {
	return &memDeviceStore{rows: map[string]*device.Device{}}
}

func deviceKey(userID, deviceID string) string { return userID + "\x00" + deviceID }

func (s *memDeviceStore) Upsert(_ context.Context, dev *device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *dev
	s.rows[deviceKey(dev.UserID, dev.DeviceID)] = &cp
	return nil
}

func (s *memDeviceStore) Find(_ context.Context, userID, deviceID string) (*device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev, ok := s.rows[deviceKey(userID, deviceID)]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	cp := *dev
	return &cp, nil
}

func (s *memDeviceStore) Delete(_ context.Context, userID, deviceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := deviceKey(userID, deviceID)
	_, ok := s.rows[key]
	delete(s.rows, key)
	return ok, nil
}

func (s *memDeviceStore) DeleteAllForUserExcept(_ context.Context, userID, keepDeviceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, dev := range s.rows {
		if dev.UserID == userID && dev.DeviceID != keepDeviceID {
			delete(s.rows, key)
			n++
		}
	}
	return n, nil
}

func (s *memDeviceStore) Touch(_ context.Context, userID, deviceID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev, ok := s.rows[deviceKey(userID, deviceID)]
	if !ok {
		return false, nil
	}
	dev.LastUsedAt = at
	return true, nil
}

func (s *memDeviceStore) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, dev := range s.rows {
		if dev.ExpiresAt != nil && dev.ExpiresAt.Before(cutoff) {
			delete(s.rows, key)
			n++
		}
	}
	return n, nil
}

type memAlertStore struct {
	mu   sync.Mutex
	rows []alert.Alert
}

func newMemAlertStore() *memAlertStore { return &memAlertStore{} }

func (s *memAlertStore) Insert(_ context.Context, a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *a)
	return nil
}

func (s *memAlertStore) ListUnread(_ context.Context, userID string) ([]alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []alert.Alert
	for _, a := range s.rows {
		if a.UserID == userID && a.ReadAt == nil {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memAlertStore) MarkRead(_ context.Context, alertID, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		a := &s.rows[i]
		if a.ID == alertID && a.UserID == userID && a.ReadAt == nil {
			a.ReadAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (s *memAlertStore) MarkAllRead(_ context.Context, userID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.rows {
		a := &s.rows[i]
		if a.UserID == userID && a.ReadAt == nil {
			a.ReadAt = &at
			n++
		}
	}
	return n, nil
}

// ofType returns the user's alerts of one type, read or not.
func (s *memAlertStore) ofType(userID, alertType string) []alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []alert.Alert
	for _, a := range s.rows {
		if a.UserID == userID && a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}

type memAttemptStore struct {
	mu   sync.Mutex
	rows []attempt.Attempt
}

func newMemAttemptStore() *memAttemptStore { return &memAttemptStore{} }

func (s *memAttemptStore) Insert(_ context.Context, a *attempt.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, *a)
	return nil
}

func (s *memAttemptStore) CountFailuresSince(_ context.Context, identifier string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.rows {
		if a.Identifier == identifier && !a.Success && !a.At.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *memAttemptStore) ListRecent(_ context.Context, identifier string, since time.Time, limit int) ([]attempt.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []attempt.Attempt
	for _, a := range s.rows {
		if a.Identifier == identifier && !a.At.Before(since) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memBackupStore struct {
	mu   sync.Mutex
	sets map[string]map[[32]byte]bool // userID -> hash -> used
}

func newMemBackupStore() *memBackupStore {
	return &memBackupStore{sets: map[string]map[[32]byte]bool{}}
}

func (s *memBackupStore) Replace(_ context.Context, userID string, hashes [][32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[[32]byte]bool, len(hashes))
	for _, h := range hashes {
		set[h] = false
	}
	s.sets[userID] = set
	return nil
}

func (s *memBackupStore) Consume(_ context.Context, userID string, hash [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[userID]
	if !ok {
		return false, nil
	}
	used, ok := set[hash]
	if !ok || used {
		return false, nil
	}
	set[hash] = true
	return true, nil
}

func (s *memBackupStore) CountUnused(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, used := range s.sets[userID] {
		if !used {
			n++
		}
	}
	return n, nil
}

// captureSender records deliveries instead of sending them.
type captureSender struct {
	mu   sync.Mutex
	sent []string // payloads in delivery order
	fail bool
}

func (c *captureSender) Send(_ context.Context, _, _, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return context.DeadlineExceeded
	}
	c.sent = append(c.sent, payload)
	return nil
}

// fixtures bundles every fake behind a built engine.
type fixtures struct {
	users    *memCredentials
	alerts   *memAlertStore
	attempts *memAttemptStore
	refresh  *memRefreshStore
	devices  *memDeviceStore
	backup   *memBackupStore
	sender   *captureSender
	redis    redis.UniversalClient
}

func testRoleSource() *rbac.StaticSource {
	source := rbac.NewStaticSource()
	source.SetRole(rbac.Role{
		ID:   "viewer",
		Name: "Viewer",
		Direct: []rbac.Permission{
			{Resource: "report", Action: "read"},
		},
	})
	source.SetRole(rbac.Role{
		ID:   "admin",
		Name: "Admin",
		Direct: []rbac.Permission{
			{Resource: "report", Action: "approve"},
		},
		Inherits: []string{"viewer"},
	})
	return source
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *fixtures) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixtures{
		users: newMemCredentials(
			&Principal{ID: "u1", Email: "ada@example.com", RoleID: "admin", Active: true},
			&Principal{ID: "u2", Email: "brin@example.com", RoleID: "viewer", Active: true},
			&Principal{ID: "u3", Email: "carol@example.com", RoleID: "viewer", Active: false},
		),
		alerts:   newMemAlertStore(),
		attempts: newMemAttemptStore(),
		refresh:  newMemRefreshStore(),
		devices:  newMemDeviceStore(),
		backup:   newMemBackupStore(),
		sender:   &captureSender{},
		redis:    client,
	}

	cfg := DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Purge.Interval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(f.users).
		WithRoleSource(testRoleSource()).
		WithSender(f.sender).
		WithRefreshStore(f.refresh).
		WithDeviceStore(f.devices).
		WithAlertStore(f.alerts).
		WithAttemptStore(f.attempts).
		WithBackupCodeStore(f.backup).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, f
}
