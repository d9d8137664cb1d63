package password

import (
	"errors"
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Hasher {
	t.Helper()
	// Minimum memory keeps the tests fast; production uses DefaultConfig.
	h, err := NewHasher(Config{
		MemoryKB:    8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := testHasher(t)

	encoded, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}

	ok, err := h.Verify("correct horse battery", encoded)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v", ok, err)
	}
	ok, err = h.Verify("wrong horse battery!!", encoded)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h := testHasher(t)

	first, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	second, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if first == second {
		t.Fatal("equal hashes for equal passwords")
	}
}

func TestShortPasswordRejected(t *testing.T) {
	h := testHasher(t)
	if _, err := h.Hash("short"); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	h := testHasher(t)

	cases := []struct {
		encoded string
		want    error
	}{
		{"", ErrHashMalformed},
		{"plaintext", ErrHashMalformed},
		{"$bcrypt$v=19$m=8192,t=1,p=1$AAAA$BBBB", ErrUnsupportedAlgorithm},
		{"$argon2id$v=18$m=8192,t=1,p=1$AAAA$BBBB", ErrUnsupportedAlgorithm},
		{"$argon2id$v=19$m=64,t=1,p=1$AAAA$BBBB", ErrHashMalformed},
	}
	for _, tc := range cases {
		if _, err := h.Verify("correct horse battery", tc.encoded); !errors.Is(err, tc.want) {
			t.Fatalf("Verify(%q) err = %v, want %v", tc.encoded, err, tc.want)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := testHasher(t)
	encoded, err := weak.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	strong, err := NewHasher(DefaultConfig())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	if need, err := weak.NeedsRehash(encoded); err != nil || need {
		t.Fatalf("same-parameter rehash = %v, %v", need, err)
	}
	if need, err := strong.NeedsRehash(encoded); err != nil || !need {
		t.Fatalf("stronger-parameter rehash = %v, %v", need, err)
	}

	// The weak hash still verifies with the stronger hasher; the
	// parameters ride along in the PHC string.
	if ok, err := strong.Verify("correct horse battery", encoded); err != nil || !ok {
		t.Fatalf("cross-parameter verify = %v, %v", ok, err)
	}
}
