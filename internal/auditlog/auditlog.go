// Package auditlog records one event per facade operation for compliance
// review. Events carry counts and outcomes only; protected values and
// payloads never enter the audit trail.
package auditlog

import (
	"context"
	"time"
)

// Action constants for audit events.
const (
	ActionAnonymize             = "anonymize"
	ActionDeAnonymize           = "deanonymize"
	ActionAnonymizeStructured   = "anonymize_structured"
	ActionDeAnonymizeStructured = "deanonymize_structured"
	ActionScopeSummary          = "scope_summary"
)

// Event is one audit record.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	IdentityUUID string    `json:"identity_uuid"`
	ScopeType    string    `json:"scope_type"`
	Action       string    `json:"action"`
	EntityCount  int       `json:"entity_count"`
	Success      bool      `json:"success"`
	// ErrorKind is the taxonomy kind for failed operations, empty on
	// success. Never a free-form message.
	ErrorKind  string `json:"error_kind,omitempty"`
	DurationNS int64  `json:"duration_ns"`
	// Degraded marks operations served with local-only detection.
	Degraded bool `json:"degraded"`
}

// Config tunes the async logger.
type Config struct {
	Enabled       bool
	BufferSize    int
	FlushInterval time.Duration
	RetentionDays int
}

// LogStore persists audit events in batches.
type LogStore interface {
	WriteBatch(ctx context.Context, events []*Event) error
	Flush(ctx context.Context) error
	Close() error
}
