package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the engine.
const (
	EventLoginSuccess      = "login_success"
	EventLoginFailure      = "login_failure"
	EventLockout           = "lockout_triggered"
	EventChallengeIssued   = "mfa_challenge_issued"
	EventChallengeVerified = "mfa_challenge_verified"
	EventChallengeFailed   = "mfa_challenge_failed"
	EventTokenIssued       = "refresh_token_issued"
	EventTokenRotated      = "refresh_token_rotated"
	EventTokenReuse        = "refresh_token_reuse"
	EventSessionsRevoked   = "sessions_revoked"
	EventDeviceTrusted     = "device_trusted"
	EventDeviceRevoked     = "device_revoked"
	EventAccessDenied      = "access_denied"
	EventPurge             = "expired_state_purged"
)

// Event is the canonical audit event model used by internal dispatching and root APIs.
type Event struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	UserID      string            `json:"user_id,omitempty"`
	DeviceID    string            `json:"device_id,omitempty"`
	ChallengeID string            `json:"challenge_id,omitempty"`
	IP          string            `json:"ip,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a consumer over a buffered channel.
// Emit blocks while the channel is full, so pair it with a dispatcher
// configured to drop, or keep the consumer draining.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the receive side for the consumer.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink appends events to a writer as newline-delimited JSON.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	_ = s.enc.Encode(event)
	s.mu.Unlock()
}
