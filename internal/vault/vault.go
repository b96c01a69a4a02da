// Package vault persists identities, original-to-fake value mappings, and
// the append-only operation history backing reversible substitution.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"phivault/internal/core"
	"phivault/internal/storage"
)

// ErrFakeValueTaken is returned by CreateMappingIfAbsent when the candidate
// fake value already belongs to another mapping in the same scope. The caller
// retries with a fresh candidate.
var ErrFakeValueTaken = errors.New("fake value already in use within scope")

// Store is the persistence collaborator consumed by the substitution engine
// and the facade. Implementations must be safe for concurrent use and must
// make CreateMappingIfAbsent atomic: two concurrent calls for the same
// (identity, entityType, originalValue) both observe the same winning row.
type Store interface {
	// FindIdentity resolves a scope to its identity, or nil if unseen.
	FindIdentity(ctx context.Context, scopeID, scopeType string) (*core.Identity, error)

	// CreateIdentity creates (or returns the existing) identity for a scope.
	CreateIdentity(ctx context.Context, scopeID, scopeType string) (*core.Identity, error)

	// FindMapping looks up one mapping by its natural key, or nil if absent.
	FindMapping(ctx context.Context, identityUUID string, entityType core.EntityType, originalValue string) (*core.Mapping, error)

	// CreateMappingIfAbsent inserts m unless a mapping with the same
	// (identity, entityType, originalValue) key exists, and returns the
	// winning row either way. Returns ErrFakeValueTaken when m.FakeValue
	// collides with a different mapping in the scope.
	CreateMappingIfAbsent(ctx context.Context, m *core.Mapping) (*core.Mapping, error)

	// MappingsByScope returns every mapping belonging to an identity.
	MappingsByScope(ctx context.Context, identityUUID string) ([]core.Mapping, error)

	// FakeValueExists reports whether a fake value is already mapped
	// within the identity's scope.
	FakeValueExists(ctx context.Context, identityUUID, fakeValue string) (bool, error)

	// AppendOperation writes one operation history row. Rows are never
	// updated or deleted.
	AppendOperation(ctx context.Context, rec *core.OperationRecord) error

	// ScopeSummary aggregates entity and operation counts for an identity.
	ScopeSummary(ctx context.Context, identityUUID string) (*ScopeSummary, error)

	Close() error
}

// ScopeSummary describes a scope's accumulated activity. It carries counts
// only; protected values are never included.
type ScopeSummary struct {
	IdentityUUID  string         `json:"uuid"`
	Entities      map[string]int `json:"entities"`
	Operations    map[string]int `json:"operations"`
	FirstActivity *time.Time     `json:"first_activity,omitempty"`
	LastActivity  *time.Time     `json:"last_activity,omitempty"`
}

// New creates the Store appropriate for the given storage backend and
// initializes its schema. opTimeout bounds every store call; zero disables
// the bound.
func New(ctx context.Context, st storage.Storage, opTimeout time.Duration) (Store, error) {
	switch st.Type() {
	case storage.TypeSQLite:
		return newSQLiteStore(ctx, st.SQLiteDB(), opTimeout)

	case storage.TypePostgreSQL:
		pool, ok := st.PostgreSQLPool().(*pgxpool.Pool)
		if !ok || pool == nil {
			return nil, fmt.Errorf("invalid PostgreSQL pool type: %T", st.PostgreSQLPool())
		}
		return newPostgresStore(ctx, pool, opTimeout)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", st.Type())
	}
}

func errUnknownIdentity(identityUUID string) error {
	return fmt.Errorf("unknown identity %s", identityUUID)
}

// opContext applies the per-call timeout when one is configured.
func opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
