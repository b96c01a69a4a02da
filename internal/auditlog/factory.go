package auditlog

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"phivault/internal/storage"
)

// New creates the audit logger for the given shared storage backend.
// Disabled auditing, or a nil storage (the in-memory backend), yields a
// NoopLogger.
func New(st storage.Storage, cfg Config) (LoggerInterface, error) {
	if !cfg.Enabled || st == nil {
		return &NoopLogger{}, nil
	}

	store, err := createLogStore(st, cfg.RetentionDays)
	if err != nil {
		return nil, err
	}
	return NewLogger(store, cfg), nil
}

// createLogStore creates the LogStore matching the storage backend.
func createLogStore(st storage.Storage, retentionDays int) (LogStore, error) {
	switch st.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(st.SQLiteDB(), retentionDays)

	case storage.TypePostgreSQL:
		pool, ok := st.PostgreSQLPool().(*pgxpool.Pool)
		if !ok || pool == nil {
			return nil, fmt.Errorf("invalid PostgreSQL pool type: %T", st.PostgreSQLPool())
		}
		return NewPostgreSQLStore(pool, retentionDays)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", st.Type())
	}
}
