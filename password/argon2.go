package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrHashMalformed is returned when a stored hash cannot be
	// parsed as a PHC argon2id string.
	ErrHashMalformed = errors.New("password hash malformed")
	// ErrUnsupportedAlgorithm is returned for PHC strings of any
	// other algorithm or argon2 version.
	ErrUnsupportedAlgorithm = errors.New("unsupported password hash algorithm")
)

const (
	phcAlgorithm   = "argon2id"
	minMemoryKB    = 8 * 1024
	minSaltLength  = 16
	minKeyLength   = 16
	minPasswordLen = 10
)

// Config holds the argon2id cost parameters.
type Config struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns parameters sized for interactive logins.
func DefaultConfig() Config {
	return Config{
		MemoryKB:    64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies passwords with argon2id. It is
// stateless and safe for concurrent use.
type Hasher struct {
	config Config
}

// NewHasher validates cfg and returns a ready hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	switch {
	case cfg.MemoryKB < minMemoryKB:
		return nil, errors.New("password memory must be >= 8192 KB")
	case cfg.Iterations < 1:
		return nil, errors.New("password iterations must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("password key length must be >= 16")
	}
	return &Hasher{config: cfg}, nil
}

// Hash derives a PHC-encoded argon2id hash from the plaintext. The
// plaintext is used byte for byte, with no Unicode normalization.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) < minPasswordLen {
		return "", fmt.Errorf("password must be at least %d bytes", minPasswordLen)
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(plaintext), salt,
		h.config.Iterations, h.config.MemoryKB, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm, argon2.Version,
		h.config.MemoryKB, h.config.Iterations, h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches the stored hash. The
// comparison runs in constant time over the derived keys; the cost
// parameters come from the stored hash, not the hasher, so old
// hashes keep verifying after a parameter bump.
func (h *Hasher) Verify(plaintext, encoded string) (bool, error) {
	params, salt, key, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(plaintext), salt,
		params.Iterations, params.MemoryKB, params.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

// NeedsRehash reports whether the stored hash was produced with
// weaker parameters than the hasher's, so the caller can re-hash on
// the next successful login.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	params, _, key, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return params.MemoryKB < h.config.MemoryKB ||
		params.Iterations < h.config.Iterations ||
		params.Parallelism < h.config.Parallelism ||
		uint32(len(key)) != h.config.KeyLength, nil
}

func parsePHC(encoded string) (Config, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Config{}, nil, nil, ErrHashMalformed
	}
	if parts[1] != phcAlgorithm {
		return Config{}, nil, nil, ErrUnsupportedAlgorithm
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Config{}, nil, nil, ErrHashMalformed
	}
	if version != argon2.Version {
		return Config{}, nil, nil, ErrUnsupportedAlgorithm
	}

	var params Config
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&params.MemoryKB, &params.Iterations, &params.Parallelism); err != nil {
		return Config{}, nil, nil, ErrHashMalformed
	}
	if params.MemoryKB < minMemoryKB || params.Iterations < 1 || params.Parallelism < 1 {
		return Config{}, nil, nil, ErrHashMalformed
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < minSaltLength {
		return Config{}, nil, nil, ErrHashMalformed
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Config{}, nil, nil, ErrHashMalformed
	}
	return params, salt, key, nil
}
