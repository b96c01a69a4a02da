package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"phivault/internal/core"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS pii_identity (
	uuid       UUID PRIMARY KEY,
	scope_id   TEXT NOT NULL,
	scope_type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (scope_id, scope_type)
);

CREATE TABLE IF NOT EXISTS pii_entity (
	identity_uuid  UUID NOT NULL REFERENCES pii_identity(uuid),
	entity_type    TEXT NOT NULL,
	original_value TEXT NOT NULL,
	fake_type      TEXT NOT NULL,
	fake_value     TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (identity_uuid, entity_type, original_value),
	UNIQUE (identity_uuid, fake_value)
);

CREATE TABLE IF NOT EXISTS pii_operation (
	id                  UUID PRIMARY KEY,
	identity_uuid       UUID NOT NULL,
	original_payload    TEXT NOT NULL,
	transformed_payload TEXT NOT NULL,
	method              TEXT NOT NULL,
	metadata            TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pii_operation_identity
	ON pii_operation(identity_uuid, created_at);
`

// uniqueViolation is the PostgreSQL error code for unique constraint failures.
const uniqueViolation = "23505"

// postgresStore implements Store on a PostgreSQL pool.
type postgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func newPostgresStore(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) (*postgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to create vault schema: %w", err)
	}
	return &postgresStore{pool: pool, timeout: timeout}, nil
}

func (s *postgresStore) FindIdentity(ctx context.Context, scopeID, scopeType string) (*core.Identity, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	row := s.pool.QueryRow(ctx,
		`SELECT uuid, scope_id, scope_type, created_at FROM pii_identity
		 WHERE scope_id = $1 AND scope_type = $2`, scopeID, scopeType)

	var id core.Identity
	err := row.Scan(&id.UUID, &id.ScopeID, &id.ScopeType, &id.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query identity: %w", err)
	}
	return &id, nil
}

func (s *postgresStore) CreateIdentity(ctx context.Context, scopeID, scopeType string) (*core.Identity, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	// ON CONFLICT DO NOTHING plus a re-read lets concurrent callers converge
	// on the winning row.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pii_identity (uuid, scope_id, scope_type, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (scope_id, scope_type) DO NOTHING`,
		uuid.New().String(), scopeID, scopeType, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to insert identity: %w", err)
	}

	id, err := s.FindIdentity(ctx, scopeID, scopeType)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, fmt.Errorf("identity vanished after insert")
	}
	return id, nil
}

func (s *postgresStore) FindMapping(ctx context.Context, identityUUID string, entityType core.EntityType, originalValue string) (*core.Mapping, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	row := s.pool.QueryRow(ctx,
		`SELECT identity_uuid, entity_type, original_value, fake_type, fake_value, created_at
		 FROM pii_entity
		 WHERE identity_uuid = $1 AND entity_type = $2 AND original_value = $3`,
		identityUUID, string(entityType), originalValue)

	var m core.Mapping
	var et string
	err := row.Scan(&m.IdentityUUID, &et, &m.OriginalValue, &m.FakeType, &m.FakeValue, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan mapping: %w", err)
	}
	m.EntityType = core.EntityType(et)
	return &m, nil
}

func (s *postgresStore) CreateMappingIfAbsent(ctx context.Context, m *core.Mapping) (*core.Mapping, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pii_entity (identity_uuid, entity_type, original_value, fake_type, fake_value, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (identity_uuid, entity_type, original_value) DO NOTHING`,
		m.IdentityUUID, string(m.EntityType), m.OriginalValue, m.FakeType, m.FakeValue, createdAt)
	if err != nil && !isPgUniqueViolation(err) {
		return nil, fmt.Errorf("failed to insert mapping: %w", err)
	}

	existing, ferr := s.FindMapping(ctx, m.IdentityUUID, m.EntityType, m.OriginalValue)
	if ferr != nil {
		return nil, ferr
	}
	if existing != nil {
		return existing, nil
	}
	if err != nil {
		// The only surviving unique violation is the scope-wide fake index.
		return nil, ErrFakeValueTaken
	}
	return nil, fmt.Errorf("mapping vanished after insert")
}

func (s *postgresStore) MappingsByScope(ctx context.Context, identityUUID string) ([]core.Mapping, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT identity_uuid, entity_type, original_value, fake_type, fake_value, created_at
		 FROM pii_entity WHERE identity_uuid = $1`, identityUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var out []core.Mapping
	for rows.Next() {
		var m core.Mapping
		var et string
		if err := rows.Scan(&m.IdentityUUID, &et, &m.OriginalValue, &m.FakeType, &m.FakeValue, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		m.EntityType = core.EntityType(et)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *postgresStore) FakeValueExists(ctx context.Context, identityUUID, fakeValue string) (bool, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM pii_entity WHERE identity_uuid = $1 AND fake_value = $2`,
		identityUUID, fakeValue).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check fake value: %w", err)
	}
	return n > 0, nil
}

func (s *postgresStore) AppendOperation(ctx context.Context, rec *core.OperationRecord) error {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pii_operation (id, identity_uuid, original_payload, transformed_payload, method, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), rec.IdentityUUID, rec.OriginalPayload, rec.TransformedPayload,
		string(rec.Method), rec.Metadata, createdAt)
	if err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}
	return nil
}

func (s *postgresStore) ScopeSummary(ctx context.Context, identityUUID string) (*ScopeSummary, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	summary := &ScopeSummary{
		IdentityUUID: identityUUID,
		Entities:     make(map[string]int),
		Operations:   make(map[string]int),
	}

	rows, err := s.pool.Query(ctx,
		`SELECT entity_type, COUNT(1) FROM pii_entity WHERE identity_uuid = $1 GROUP BY entity_type`,
		identityUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var et string
		var n int
		if err := rows.Scan(&et, &n); err != nil {
			return nil, fmt.Errorf("failed to scan entity count: %w", err)
		}
		summary.Entities[et] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	opRows, err := s.pool.Query(ctx,
		`SELECT method, COUNT(1), MIN(created_at), MAX(created_at)
		 FROM pii_operation WHERE identity_uuid = $1 GROUP BY method`, identityUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation counts: %w", err)
	}
	defer opRows.Close()
	for opRows.Next() {
		var method string
		var n int
		var first, last time.Time
		if err := opRows.Scan(&method, &n, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan operation count: %w", err)
		}
		summary.Operations[method] = n
		if summary.FirstActivity == nil || first.Before(*summary.FirstActivity) {
			f := first
			summary.FirstActivity = &f
		}
		if summary.LastActivity == nil || last.After(*summary.LastActivity) {
			l := last
			summary.LastActivity = &l
		}
	}
	return summary, opRows.Err()
}

// Close is a no-op: the shared pool is owned by the storage layer.
func (s *postgresStore) Close() error { return nil }

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
