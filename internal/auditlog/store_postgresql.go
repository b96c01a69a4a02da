package auditlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLStore implements LogStore on a pgx pool.
type PostgreSQLStore struct {
	pool          *pgxpool.Pool
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewPostgreSQLStore creates the audit_events table if needed and starts
// the retention cleanup goroutine when retention is configured.
func NewPostgreSQLStore(pool *pgxpool.Pool, retentionDays int) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			identity_uuid TEXT,
			scope_type TEXT,
			action TEXT NOT NULL,
			entity_count INTEGER DEFAULT 0,
			success BOOLEAN DEFAULT TRUE,
			error_kind TEXT,
			duration_ns BIGINT DEFAULT 0,
			degraded BOOLEAN DEFAULT FALSE
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit_events table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_audit_events_identity ON audit_events(identity_uuid)",
		"CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events(action)",
	}
	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx); err != nil {
			slog.Warn("failed to create audit index", "error", err)
		}
	}

	store := &PostgreSQLStore{
		pool:          pool,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	if retentionDays > 0 {
		go store.cleanupLoop()
	}

	return store, nil
}

// WriteBatch inserts all events in a single batched round trip.
func (s *PostgreSQLStore) WriteBatch(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`INSERT INTO audit_events
			(id, timestamp, identity_uuid, scope_type, action, entity_count, success, error_kind, duration_ns, degraded)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.ID, e.Timestamp, e.IdentityUUID, e.ScopeType, e.Action,
			e.EntityCount, e.Success, e.ErrorKind, e.DurationNS, e.Degraded)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert audit events: %w", err)
		}
	}
	return nil
}

// Flush is a no-op: writes are not buffered inside the store.
func (s *PostgreSQLStore) Flush(_ context.Context) error { return nil }

// Close stops the cleanup loop. The shared pool is owned by the storage
// layer.
func (s *PostgreSQLStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *PostgreSQLStore) cleanupLoop() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	s.deleteExpired()
	for {
		select {
		case <-ticker.C:
			s.deleteExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *PostgreSQLStore) deleteExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	tag, err := s.pool.Exec(ctx, "DELETE FROM audit_events WHERE timestamp < $1", cutoff)
	if err != nil {
		slog.Error("failed to delete expired audit events", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("deleted expired audit events", "count", n)
	}
}
