package mfa

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersion1 = 1

var (
	// ErrChallengeNotFound is returned when no challenge exists for the id.
	ErrChallengeNotFound = errors.New("mfa challenge not found")
	// ErrChallengeExpired is returned when the challenge TTL has elapsed.
	ErrChallengeExpired = errors.New("mfa challenge expired")
	// ErrChallengeUsed is returned when the challenge was already consumed.
	ErrChallengeUsed = errors.New("mfa challenge already used")
	// ErrCodeMismatch is returned when the submitted code does not match.
	ErrCodeMismatch = errors.New("mfa challenge code mismatch")
	// ErrIssueThrottled is returned when challenge issuance is rate limited.
	ErrIssueThrottled = errors.New("mfa challenge issuance throttled")
	// ErrChallengeBackend indicates the challenge backend is unreachable.
	ErrChallengeBackend = errors.New("mfa challenge backend unavailable")
)

// Record is the persisted form of a challenge. Only the SHA-256 hash
// of the code is stored.
type Record struct {
	UserID    string
	Method    Method
	CodeHash  [32]byte
	Used      bool
	Attempts  uint16
	CreatedAt int64
	ExpiresAt int64
	IPAddress string
	DeviceID  string
}

const swapCurrentScript = `
local old = redis.call("GET", KEYS[1])
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
if old then
  return old
end
return ""
`

var swapCurrentLua = redis.NewScript(swapCurrentScript)

// ChallengeStore persists challenges in Redis with per-record TTL and
// an index of the current challenge per (user, method) so a newly
// issued challenge supersedes the prior unused one.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewChallengeStore creates a challenge store. prefix defaults to "amc".
func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "amc"
	}
	return &ChallengeStore{redis: redisClient, prefix: prefix}
}

func (s *ChallengeStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

func (s *ChallengeStore) currentKey(userID string, method Method) string {
	return s.prefix + ":cur:" + userID + ":" + string(method)
}

// Save stores a challenge record under challengeID with the given TTL.
func (s *ChallengeStore) Save(ctx context.Context, challengeID string, record *Record, ttl time.Duration) error {
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

// SetCurrent marks challengeID as the active challenge for the
// (user, method) pair and deletes the superseded one, if any.
func (s *ChallengeStore) SetCurrent(ctx context.Context, userID string, method Method, challengeID string, ttl time.Duration) error {
	old, err := swapCurrentLua.Run(ctx, s.redis,
		[]string{s.currentKey(userID, method)}, challengeID, ttl.Milliseconds()).Text()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	if old != "" && old != challengeID {
		if err := s.redis.Del(ctx, s.key(old)).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
		}
	}
	return nil
}

// Get loads a challenge record. Unused records past expiry are
// deleted eagerly; a consumed record stays readable until the key's
// TTL fires, so a late replay still reports the challenge as used
// rather than expired.
func (s *ChallengeStore) Get(ctx context.Context, challengeID string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(challengeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	if !record.Used && time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(challengeID)).Result()
		return nil, ErrChallengeExpired
	}
	return record, nil
}

// Delete removes a challenge unconditionally.
func (s *ChallengeStore) Delete(ctx context.Context, challengeID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(challengeID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return n > 0, nil
}

// Consume transitions the challenge to used, atomically: of two
// concurrent consumers exactly one succeeds, the other observes
// [ErrChallengeUsed]. Single-use, not single-check.
func (s *ChallengeStore) Consume(ctx context.Context, challengeID string) error {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodeRecord(data)
			if err != nil {
				return err
			}
			if record.Used {
				return ErrChallengeUsed
			}
			if time.Now().Unix() > record.ExpiresAt {
				return ErrChallengeExpired
			}

			record.Used = true
			updated, err := encodeRecord(record)
			if err != nil {
				return err
			}
			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				return ErrChallengeExpired
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrChallengeNotFound
			}
			if errors.Is(err, ErrChallengeUsed) || errors.Is(err, ErrChallengeExpired) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
		}
		return nil
	}
	return ErrChallengeUsed
}

// RecordMismatch counts one failed code attempt. The challenge stays
// valid: a mismatch never invalidates it, the counter only feeds
// anomaly detection.
func (s *ChallengeStore) RecordMismatch(ctx context.Context, challengeID string) (int, error) {
	const maxRetries = 4
	key := s.key(challengeID)

	for i := 0; i < maxRetries; i++ {
		var attempts int
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodeRecord(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > record.ExpiresAt {
				return ErrChallengeExpired
			}

			record.Attempts++
			attempts = int(record.Attempts)
			updated, err := encodeRecord(record)
			if err != nil {
				return err
			}
			ttl := time.Until(time.Unix(record.ExpiresAt, 0))
			if ttl <= 0 {
				return ErrChallengeExpired
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return 0, ErrChallengeNotFound
			}
			if errors.Is(err, ErrChallengeExpired) {
				return 0, err
			}
			return 0, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
		}
		return attempts, nil
	}
	return 0, ErrChallengeNotFound
}

func encodeRecord(record *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)

	used := byte(0)
	if record.Used {
		used = 1
	}
	buf.WriteByte(used)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	for _, field := range []string{record.UserID, string(record.Method), record.IPAddress, record.DeviceID} {
		if len(field) > 65535 {
			return nil, errors.New("mfa challenge field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("invalid mfa challenge version")
	}

	used, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &Record{Used: used == 1}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	fields := make([]string, 4)
	for i := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		fields[i] = string(raw)
	}
	record.UserID = fields[0]
	record.Method = Method(fields[1])
	record.IPAddress = fields[2]
	record.DeviceID = fields[3]
	return record, nil
}
