// Package service is the orchestration facade: it resolves scopes to
// identities, runs the substitution engine, and records operation history,
// audit events, and metrics around every call.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"phivault/internal/auditlog"
	"phivault/internal/core"
	"phivault/internal/engine"
	"phivault/internal/vault"
)

// Service exposes the top-level operations served over HTTP. Safe for
// concurrent use.
type Service struct {
	store  vault.Store
	engine *engine.Engine
	audit  auditlog.LoggerInterface
	logger *slog.Logger
}

// New creates the facade. A nil audit logger disables auditing; a nil
// logger falls back to slog.Default.
func New(store vault.Store, eng *engine.Engine, audit auditlog.LoggerInterface, logger *slog.Logger) *Service {
	if audit == nil {
		audit = &auditlog.NoopLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: eng, audit: audit, logger: logger}
}

// Anonymize substitutes every detected entity in text within the scope,
// creating the scope's identity on first use.
func (s *Service) Anonymize(ctx context.Context, scopeID, scopeType, text string) (string, *engine.Stats, error) {
	op := newOperation(auditlog.ActionAnonymize, scopeType)
	identity, err := s.resolveIdentity(ctx, scopeID, scopeType, true)
	if err != nil {
		return "", nil, s.fail(op, err)
	}
	op.identityUUID = identity.UUID

	out, stats, err := s.engine.AnonymizeText(ctx, identity, text)
	if err != nil {
		return "", nil, s.fail(op, err)
	}

	s.recordOperation(ctx, identity, text, out, core.MethodAnonymize, stats)
	s.succeed(op, stats)
	return out, stats, nil
}

// DeAnonymize restores the scope's original values in text. The scope must
// already exist; restoration never creates identities or mappings.
func (s *Service) DeAnonymize(ctx context.Context, scopeID, scopeType, text string) (string, *engine.Stats, error) {
	op := newOperation(auditlog.ActionDeAnonymize, scopeType)
	identity, err := s.resolveIdentity(ctx, scopeID, scopeType, false)
	if err != nil {
		return "", nil, s.fail(op, err)
	}
	op.identityUUID = identity.UUID

	out, stats, err := s.engine.DeAnonymizeText(ctx, identity, text)
	if err != nil {
		return "", nil, s.fail(op, err)
	}

	s.recordOperation(ctx, identity, text, out, core.MethodDeAnonymize, stats)
	s.succeed(op, stats)
	return out, stats, nil
}

// AnonymizeStructured transforms every string leaf of a decoded JSON
// document, preserving its shape.
func (s *Service) AnonymizeStructured(ctx context.Context, scopeID, scopeType string, doc any) (any, *engine.Stats, error) {
	op := newOperation(auditlog.ActionAnonymizeStructured, scopeType)
	identity, err := s.resolveIdentity(ctx, scopeID, scopeType, true)
	if err != nil {
		return nil, nil, s.fail(op, err)
	}
	op.identityUUID = identity.UUID

	out, stats, err := s.engine.TransformDocument(ctx, identity, doc, core.DirectionAnonymize)
	if err != nil {
		return nil, nil, s.fail(op, err)
	}

	s.recordOperation(ctx, identity, compactJSON(doc), compactJSON(out), core.MethodAnonymizeStructured, stats)
	s.succeed(op, stats)
	return out, stats, nil
}

// DeAnonymizeStructured restores original values across every string leaf
// of a decoded JSON document.
func (s *Service) DeAnonymizeStructured(ctx context.Context, scopeID, scopeType string, doc any) (any, *engine.Stats, error) {
	op := newOperation(auditlog.ActionDeAnonymizeStructured, scopeType)
	identity, err := s.resolveIdentity(ctx, scopeID, scopeType, false)
	if err != nil {
		return nil, nil, s.fail(op, err)
	}
	op.identityUUID = identity.UUID

	out, stats, err := s.engine.TransformDocument(ctx, identity, doc, core.DirectionDeAnonymize)
	if err != nil {
		return nil, nil, s.fail(op, err)
	}

	s.recordOperation(ctx, identity, compactJSON(doc), compactJSON(out), core.MethodDeAnonymizeStructured, stats)
	s.succeed(op, stats)
	return out, stats, nil
}

// ScopeSummary reports entity and operation counts for an existing scope.
func (s *Service) ScopeSummary(ctx context.Context, scopeID, scopeType string) (*vault.ScopeSummary, error) {
	op := newOperation(auditlog.ActionScopeSummary, scopeType)
	identity, err := s.resolveIdentity(ctx, scopeID, scopeType, false)
	if err != nil {
		return nil, s.fail(op, err)
	}
	op.identityUUID = identity.UUID

	summary, err := s.store.ScopeSummary(ctx, identity.UUID)
	if err != nil {
		return nil, s.fail(op, core.AsEngineError(err))
	}
	if summary == nil {
		return nil, s.fail(op, core.NewUnknownScopeError("no mappings exist for this scope"))
	}

	s.succeed(op, nil)
	return summary, nil
}

// resolveIdentity maps a scope to its identity. Anonymization creates the
// identity on first sight; restoration and summaries require it to exist.
func (s *Service) resolveIdentity(ctx context.Context, scopeID, scopeType string, create bool) (*core.Identity, error) {
	if scopeID == "" || scopeType == "" {
		return nil, core.NewInvalidRequestError("scope id and scope type are required", nil)
	}

	if create {
		identity, err := s.store.CreateIdentity(ctx, scopeID, scopeType)
		if err != nil {
			return nil, core.AsEngineError(err)
		}
		return identity, nil
	}

	identity, err := s.store.FindIdentity(ctx, scopeID, scopeType)
	if err != nil {
		return nil, core.AsEngineError(err)
	}
	if identity == nil {
		return nil, core.NewUnknownScopeError("no mappings exist for this scope")
	}
	return identity, nil
}

// recordOperation appends the history row for a completed transform. A
// failed append is logged and does not fail the operation: the transform
// result is already correct and durable.
func (s *Service) recordOperation(ctx context.Context, identity *core.Identity, original, transformed string, method core.Method, stats *engine.Stats) {
	rec := &core.OperationRecord{
		IdentityUUID:       identity.UUID,
		OriginalPayload:    original,
		TransformedPayload: transformed,
		Method:             method,
		CreatedAt:          time.Now().UTC(),
	}
	if stats != nil {
		rec.Metadata = operationMetadata(stats)
	}
	if err := s.store.AppendOperation(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "failed to append operation history",
			slog.String("identity_uuid", identity.UUID),
			slog.String("method", string(method)),
			slog.String("error", err.Error()),
		)
	}
}

// operationMetadata serializes transform stats into the history row's
// metadata column.
func operationMetadata(stats *engine.Stats) string {
	md := struct {
		EntityCount       int            `json:"entity_count"`
		Entities          map[string]int `json:"entities,omitempty"`
		DetectionDegraded bool           `json:"detection_degraded,omitempty"`
	}{
		EntityCount:       stats.EntityCount,
		Entities:          stats.ByType,
		DetectionDegraded: stats.DetectionDegraded,
	}
	data, err := json.Marshal(md)
	if err != nil {
		return ""
	}
	return string(data)
}

// operation carries per-call audit state.
type operation struct {
	action       string
	scopeType    string
	identityUUID string
	started      time.Time
}

func newOperation(action, scopeType string) *operation {
	return &operation{action: action, scopeType: scopeType, started: time.Now()}
}

func (s *Service) succeed(op *operation, stats *engine.Stats) {
	entityCount := 0
	degraded := false
	if stats != nil {
		entityCount = stats.EntityCount
		degraded = stats.DetectionDegraded
		for t, n := range stats.ByType {
			entitiesTotal.WithLabelValues(t).Add(float64(n))
		}
		if degraded {
			detectionDegradedTotal.Inc()
		}
	}
	operationsTotal.WithLabelValues(op.action, "ok").Inc()

	s.audit.Write(&auditlog.Event{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		IdentityUUID: op.identityUUID,
		ScopeType:    op.scopeType,
		Action:       op.action,
		EntityCount:  entityCount,
		Success:      true,
		DurationNS:   time.Since(op.started).Nanoseconds(),
		Degraded:     degraded,
	})
}

// fail normalizes err into the taxonomy, emits the failure audit event and
// metric, and returns the normalized error.
func (s *Service) fail(op *operation, err error) *core.EngineError {
	engErr := core.AsEngineError(err)
	operationsTotal.WithLabelValues(op.action, "error").Inc()

	s.audit.Write(&auditlog.Event{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		IdentityUUID: op.identityUUID,
		ScopeType:    op.scopeType,
		Action:       op.action,
		Success:      false,
		ErrorKind:    string(engErr.Kind),
		DurationNS:   time.Since(op.started).Nanoseconds(),
	})
	return engErr
}

// compactJSON renders a document for the operation history. Marshal
// failures degrade to an empty payload rather than failing the operation.
func compactJSON(doc any) string {
	data, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	return string(data)
}
