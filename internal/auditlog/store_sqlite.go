package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SQLite limits bindable parameters to 999 per statement. With 10 columns
// per event a batch of 99 stays under the limit; larger batches are chunked.
const (
	maxSQLiteParams   = 999
	columnsPerEvent   = 10
	maxEventsPerChunk = maxSQLiteParams / columnsPerEvent
)

// SQLiteStore implements LogStore for SQLite databases.
type SQLiteStore struct {
	db            *sql.DB
	retentionDays int
	stopCleanup   chan struct{}
	closeOnce     sync.Once
}

// NewSQLiteStore creates the audit_events table if needed and starts the
// retention cleanup goroutine when retention is configured.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			identity_uuid TEXT,
			scope_type TEXT,
			action TEXT NOT NULL,
			entity_count INTEGER DEFAULT 0,
			success INTEGER DEFAULT 1,
			error_kind TEXT,
			duration_ns INTEGER DEFAULT 0,
			degraded INTEGER DEFAULT 0
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
		if _, err := db.Exec(idx); err != nil {
			slog.Warn("failed to create audit index", "error", err)
		}
	}

	store := &SQLiteStore{
		db:            db,
		retentionDays: retentionDays,
		stopCleanup:   make(chan struct{}),
	}

	if retentionDays > 0 {
		go store.cleanupLoop()
	}

	return store, nil
}

// WriteBatch inserts events in chunks that respect the parameter limit.
func (s *SQLiteStore) WriteBatch(ctx context.Context, events []*Event) error {
	for start := 0; start < len(events); start += maxEventsPerChunk {
		end := min(start+maxEventsPerChunk, len(events))
		if err := s.writeChunk(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) writeChunk(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*columnsPerEvent)
	for _, e := range events {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			e.ID, e.Timestamp, e.IdentityUUID, e.ScopeType, e.Action,
			e.EntityCount, e.Success, e.ErrorKind, e.DurationNS, e.Degraded)
	}

	query := `INSERT INTO audit_events
		(id, timestamp, identity_uuid, scope_type, action, entity_count, success, error_kind, duration_ns, degraded)
		VALUES ` + strings.Join(placeholders, ", ")

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert audit events: %w", err)
	}
	return nil
}

// Flush is a no-op: writes are not buffered inside the store.
func (s *SQLiteStore) Flush(_ context.Context) error { return nil }

// Close stops the cleanup loop. The shared database connection is owned by
// the storage layer.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *SQLiteStore) cleanupLoop() {
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

func (s *SQLiteStore) deleteExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE timestamp < ?", cutoff)
	if err != nil {
		slog.Error("failed to delete expired audit events", "error", err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.Info("deleted expired audit events", "count", n)
	}
}
