package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"phivault/internal/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pii_identity (
	uuid       TEXT PRIMARY KEY,
	scope_id   TEXT NOT NULL,
	scope_type TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (scope_id, scope_type)
);

CREATE TABLE IF NOT EXISTS pii_entity (
	identity_uuid  TEXT NOT NULL REFERENCES pii_identity(uuid),
	entity_type    TEXT NOT NULL,
	original_value TEXT NOT NULL,
	fake_type      TEXT NOT NULL,
	fake_value     TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	PRIMARY KEY (identity_uuid, entity_type, original_value),
	UNIQUE (identity_uuid, fake_value)
);

CREATE TABLE IF NOT EXISTS pii_operation (
	id                  TEXT PRIMARY KEY,
	identity_uuid       TEXT NOT NULL,
	original_payload    TEXT NOT NULL,
	transformed_payload TEXT NOT NULL,
	method              TEXT NOT NULL,
	metadata            TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pii_operation_identity
	ON pii_operation(identity_uuid, created_at);
`

// sqliteStore implements Store on a SQLite database.
type sqliteStore struct {
	db      *sql.DB
	timeout time.Duration
}

func newSQLiteStore(ctx context.Context, db *sql.DB, timeout time.Duration) (*sqliteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("nil SQLite database")
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create vault schema: %w", err)
	}
	return &sqliteStore{db: db, timeout: timeout}, nil
}

func (s *sqliteStore) FindIdentity(ctx context.Context, scopeID, scopeType string) (*core.Identity, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT uuid, scope_id, scope_type, created_at FROM pii_identity
		 WHERE scope_id = ? AND scope_type = ?`, scopeID, scopeType)

	var id core.Identity
	err := row.Scan(&id.UUID, &id.ScopeID, &id.ScopeType, &id.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query identity: %w", err)
	}
	return &id, nil
}

func (s *sqliteStore) CreateIdentity(ctx context.Context, scopeID, scopeType string) (*core.Identity, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	// INSERT OR IGNORE followed by a re-read makes concurrent creation
	// converge on a single row without a transaction.
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO pii_identity (uuid, scope_id, scope_type, created_at)
		 VALUES (?, ?, ?, ?)`,
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

func (s *sqliteStore) FindMapping(ctx context.Context, identityUUID string, entityType core.EntityType, originalValue string) (*core.Mapping, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT identity_uuid, entity_type, original_value, fake_type, fake_value, created_at
		 FROM pii_entity
		 WHERE identity_uuid = ? AND entity_type = ? AND original_value = ?`,
		identityUUID, string(entityType), originalValue)

	return scanMapping(row)
}

func (s *sqliteStore) CreateMappingIfAbsent(ctx context.Context, m *core.Mapping) (*core.Mapping, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pii_entity (identity_uuid, entity_type, original_value, fake_type, fake_value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (identity_uuid, entity_type, original_value) DO NOTHING`,
		m.IdentityUUID, string(m.EntityType), m.OriginalValue, m.FakeType, m.FakeValue, createdAt)
	if err != nil && !isUniqueViolation(err) {
		return nil, fmt.Errorf("failed to insert mapping: %w", err)
	}

	// Either we inserted, we lost the race on the natural key, or the fake
	// value collided with a different mapping. A re-read distinguishes the
	// first two from the last.
	existing, ferr := s.FindMapping(ctx, m.IdentityUUID, m.EntityType, m.OriginalValue)
	if ferr != nil {
		return nil, ferr
	}
	if existing != nil {
		return existing, nil
	}
	if err != nil {
		return nil, ErrFakeValueTaken
	}
	return nil, fmt.Errorf("mapping vanished after insert")
}

func (s *sqliteStore) MappingsByScope(ctx context.Context, identityUUID string) ([]core.Mapping, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT identity_uuid, entity_type, original_value, fake_type, fake_value, created_at
		 FROM pii_entity WHERE identity_uuid = ?`, identityUUID)
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

func (s *sqliteStore) FakeValueExists(ctx context.Context, identityUUID, fakeValue string) (bool, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM pii_entity WHERE identity_uuid = ? AND fake_value = ?`,
		identityUUID, fakeValue).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check fake value: %w", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) AppendOperation(ctx context.Context, rec *core.OperationRecord) error {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pii_operation (id, identity_uuid, original_payload, transformed_payload, method, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), rec.IdentityUUID, rec.OriginalPayload, rec.TransformedPayload,
		string(rec.Method), rec.Metadata, createdAt)
	if err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}
	return nil
}

func (s *sqliteStore) ScopeSummary(ctx context.Context, identityUUID string) (*ScopeSummary, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	summary := &ScopeSummary{
		IdentityUUID: identityUUID,
		Entities:     make(map[string]int),
		Operations:   make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_type, COUNT(1) FROM pii_entity WHERE identity_uuid = ? GROUP BY entity_type`,
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

	opRows, err := s.db.QueryContext(ctx,
		`SELECT method, COUNT(1) FROM pii_operation WHERE identity_uuid = ? GROUP BY method`,
		identityUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation counts: %w", err)
	}
	defer opRows.Close()
	for opRows.Next() {
		var method string
		var n int
		if err := opRows.Scan(&method, &n); err != nil {
			return nil, fmt.Errorf("failed to scan operation count: %w", err)
		}
		summary.Operations[method] = n
	}
	if err := opRows.Err(); err != nil {
		return nil, err
	}

	// Aggregates over a TIMESTAMP column lose the declared type and come
	// back as strings, so the activity bounds are read as plain columns.
	if len(summary.Operations) > 0 {
		var first, last time.Time
		if err := s.db.QueryRowContext(ctx,
			`SELECT created_at FROM pii_operation WHERE identity_uuid = ?
			 ORDER BY created_at LIMIT 1`, identityUUID).Scan(&first); err != nil {
			return nil, fmt.Errorf("failed to query first activity: %w", err)
		}
		if err := s.db.QueryRowContext(ctx,
			`SELECT created_at FROM pii_operation WHERE identity_uuid = ?
			 ORDER BY created_at DESC LIMIT 1`, identityUUID).Scan(&last); err != nil {
			return nil, fmt.Errorf("failed to query last activity: %w", err)
		}
		summary.FirstActivity = &first
		summary.LastActivity = &last
	}
	return summary, nil
}

// Close is a no-op: the shared database connection is owned by the storage
// layer.
func (s *sqliteStore) Close() error { return nil }

func scanMapping(row *sql.Row) (*core.Mapping, error) {
	var m core.Mapping
	var et string
	err := row.Scan(&m.IdentityUUID, &et, &m.OriginalValue, &m.FakeType, &m.FakeValue, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan mapping: %w", err)
	}
	m.EntityType = core.EntityType(et)
	return &m, nil
}

// isUniqueViolation reports whether err is a unique constraint failure from
// the SQLite driver.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
