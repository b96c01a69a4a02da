package vault

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"phivault/internal/core"
)

// mappingKey is the natural key of one mapping within an identity.
type mappingKey struct {
	entityType    core.EntityType
	originalValue string
}

// identityRecord holds one scope's identity and all of its mappings.
type identityRecord struct {
	identity core.Identity
	mappings map[mappingKey]core.Mapping
	// fakeIndex maps fake value to its natural key for reverse lookup and
	// the scope-wide fake uniqueness check.
	fakeIndex map[string]mappingKey
}

// memoryStore is an in-memory Store for tests and development. Data does not
// survive a restart.
type memoryStore struct {
	mu         sync.RWMutex
	byScope    map[string]*identityRecord // "scopeType\x00scopeID"
	byUUID     map[string]*identityRecord
	operations []core.OperationRecord
}

// NewMemory creates an empty in-memory Store.
func NewMemory() Store {
	return &memoryStore{
		byScope: make(map[string]*identityRecord),
		byUUID:  make(map[string]*identityRecord),
	}
}

func scopeKey(scopeID, scopeType string) string {
	return scopeType + "\x00" + scopeID
}

func (s *memoryStore) FindIdentity(ctx context.Context, scopeID, scopeType string) (*core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byScope[scopeKey(scopeID, scopeType)]
	if !ok {
		return nil, nil
	}
	id := rec.identity
	return &id, nil
}

func (s *memoryStore) CreateIdentity(ctx context.Context, scopeID, scopeType string) (*core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopeKey(scopeID, scopeType)
	if rec, ok := s.byScope[key]; ok {
		id := rec.identity
		return &id, nil
	}

	rec := &identityRecord{
		identity: core.Identity{
			UUID:      uuid.New().String(),
			ScopeID:   scopeID,
			ScopeType: scopeType,
			CreatedAt: time.Now().UTC(),
		},
		mappings:  make(map[mappingKey]core.Mapping),
		fakeIndex: make(map[string]mappingKey),
	}
	s.byScope[key] = rec
	s.byUUID[rec.identity.UUID] = rec

	id := rec.identity
	return &id, nil
}

func (s *memoryStore) FindMapping(ctx context.Context, identityUUID string, entityType core.EntityType, originalValue string) (*core.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byUUID[identityUUID]
	if !ok {
		return nil, nil
	}
	m, ok := rec.mappings[mappingKey{entityType, originalValue}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *memoryStore) CreateMappingIfAbsent(ctx context.Context, m *core.Mapping) (*core.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byUUID[m.IdentityUUID]
	if !ok {
		return nil, errUnknownIdentity(m.IdentityUUID)
	}

	key := mappingKey{m.EntityType, m.OriginalValue}
	if existing, ok := rec.mappings[key]; ok {
		return &existing, nil
	}
	if _, taken := rec.fakeIndex[m.FakeValue]; taken {
		return nil, ErrFakeValueTaken
	}

	stored := *m
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	rec.mappings[key] = stored
	rec.fakeIndex[stored.FakeValue] = key

	out := stored
	return &out, nil
}

func (s *memoryStore) MappingsByScope(ctx context.Context, identityUUID string) ([]core.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byUUID[identityUUID]
	if !ok {
		return nil, nil
	}
	out := make([]core.Mapping, 0, len(rec.mappings))
	for _, m := range rec.mappings {
		out = append(out, m)
	}
	return out, nil
}

func (s *memoryStore) FakeValueExists(ctx context.Context, identityUUID, fakeValue string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byUUID[identityUUID]
	if !ok {
		return false, nil
	}
	_, taken := rec.fakeIndex[fakeValue]
	return taken, nil
}

func (s *memoryStore) AppendOperation(ctx context.Context, recOp *core.OperationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *recOp
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.operations = append(s.operations, stored)
	return nil
}

func (s *memoryStore) ScopeSummary(ctx context.Context, identityUUID string) (*ScopeSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byUUID[identityUUID]
	if !ok {
		return nil, nil
	}

	summary := &ScopeSummary{
		IdentityUUID: identityUUID,
		Entities:     make(map[string]int),
		Operations:   make(map[string]int),
	}
	for _, m := range rec.mappings {
		summary.Entities[string(m.EntityType)]++
	}
	for _, op := range s.operations {
		if op.IdentityUUID != identityUUID {
			continue
		}
		summary.Operations[string(op.Method)]++
		t := op.CreatedAt
		if summary.FirstActivity == nil || t.Before(*summary.FirstActivity) {
			first := t
			summary.FirstActivity = &first
		}
		if summary.LastActivity == nil || t.After(*summary.LastActivity) {
			last := t
			summary.LastActivity = &last
		}
	}
	return summary, nil
}

func (s *memoryStore) Close() error { return nil }

// Operations returns a copy of the recorded operation history, oldest first.
// Test helper; the engine never reads history back.
func (s *memoryStore) Operations() []core.OperationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.OperationRecord, len(s.operations))
	copy(out, s.operations)
	return out
}
