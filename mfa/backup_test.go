package mfa

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type memBackupStore struct {
	mu    sync.Mutex
	codes map[string]map[[32]byte]bool // userID -> hash -> used
}

func newMemBackupStore() *memBackupStore {
	return &memBackupStore{codes: make(map[string]map[[32]byte]bool)}
}

func (s *memBackupStore) Replace(_ context.Context, userID string, hashes [][32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[[32]byte]bool, len(hashes))
	for _, h := range hashes {
		set[h] = false
	}
	s.codes[userID] = set
	return nil
}

func (s *memBackupStore) Consume(_ context.Context, userID string, hash [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.codes[userID]
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
	for _, used := range s.codes[userID] {
		if !used {
			n++
		}
	}
	return n, nil
}

func TestBackupCodeLifecycle(t *testing.T) {
	store := newMemBackupStore()
	bc, err := NewBackupCodes(store, 0, 0)
	if err != nil {
		t.Fatalf("NewBackupCodes failed: %v", err)
	}
	ctx := context.Background()

	codes, err := bc.Generate(ctx, "u1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}
	for _, c := range codes {
		if !strings.Contains(c, "-") {
			t.Fatalf("expected formatted code with separator, got %q", c)
		}
	}

	for i, c := range codes {
		if err := bc.Verify(ctx, "u1", c); err != nil {
			t.Fatalf("Verify code %d failed: %v", i, err)
		}
	}

	left, err := bc.Remaining(ctx, "u1")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if left != 0 {
		t.Fatalf("expected zero unused codes, got %d", left)
	}

	// Every code is single-use.
	if err := bc.Verify(ctx, "u1", codes[0]); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch on reuse, got %v", err)
	}
}

func TestBackupVerifyToleratesFormatting(t *testing.T) {
	store := newMemBackupStore()
	bc, err := NewBackupCodes(store, 0, 0)
	if err != nil {
		t.Fatalf("NewBackupCodes failed: %v", err)
	}
	ctx := context.Background()

	codes, err := bc.Generate(ctx, "u1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	loose := strings.ToLower(strings.ReplaceAll(codes[0], "-", " "))
	if err := bc.Verify(ctx, "u1", loose); err != nil {
		t.Fatalf("expected canonicalized input to verify, got %v", err)
	}
}

func TestBackupRegenerationInvalidatesOldSet(t *testing.T) {
	store := newMemBackupStore()
	bc, err := NewBackupCodes(store, 0, 0)
	if err != nil {
		t.Fatalf("NewBackupCodes failed: %v", err)
	}
	ctx := context.Background()

	old, err := bc.Generate(ctx, "u1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := bc.Generate(ctx, "u1"); err != nil {
		t.Fatalf("regenerate failed: %v", err)
	}
	if err := bc.Verify(ctx, "u1", old[0]); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected old set to be invalid, got %v", err)
	}
	left, err := bc.Remaining(ctx, "u1")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if left != 10 {
		t.Fatalf("expected fresh set of 10, got %d", left)
	}
}

func TestRegenerationAdvisedAtLowWatermark(t *testing.T) {
	store := newMemBackupStore()
	bc, err := NewBackupCodes(store, 0, 0)
	if err != nil {
		t.Fatalf("NewBackupCodes failed: %v", err)
	}
	ctx := context.Background()

	codes, err := bc.Generate(ctx, "u1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	left, err := bc.Remaining(ctx, "u1")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if bc.RegenerationAdvised(left) {
		t.Fatalf("fresh set of %d should not advise regeneration", left)
	}
	for i := 0; i < len(codes)-LowCodeThreshold; i++ {
		if err := bc.Verify(ctx, "u1", codes[i]); err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
	}
	left, err = bc.Remaining(ctx, "u1")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if !bc.RegenerationAdvised(left) {
		t.Fatalf("expected regeneration advised at %d remaining", left)
	}
}
