package authguard

import (
	"io"

	"github.com/coreledger/authguard/internal/audit"
)

// AuditEvent is the structured record emitted for security-relevant
// operations.
type AuditEvent = audit.Event

// AuditSink receives emitted audit events. Delivery is asynchronous;
// a slow sink never blocks the caller's result when DropIfFull is
// set.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel, mainly for tests and
// custom pipelines.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// NewJSONWriterSink creates a sink writing NDJSON to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }
