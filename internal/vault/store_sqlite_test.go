package vault

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phivault/internal/core"
	"phivault/internal/storage"
)

func newSQLiteTestStore(t *testing.T) Store {
	t.Helper()

	st, err := storage.NewSQLite(storage.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "vault.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	store, err := New(context.Background(), st, 5*time.Second)
	require.NoError(t, err)
	return store
}

func TestSQLiteIdentityRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteTestStore(t)

	created, err := store.CreateIdentity(ctx, "patient-1", "patient")
	require.NoError(t, err)
	require.NotEmpty(t, created.UUID)

	again, err := store.CreateIdentity(ctx, "patient-1", "patient")
	require.NoError(t, err)
	assert.Equal(t, created.UUID, again.UUID)

	found, err := store.FindIdentity(ctx, "patient-1", "patient")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.UUID, found.UUID)
	assert.Equal(t, "patient-1", found.ScopeID)
	assert.Equal(t, "patient", found.ScopeType)
}

func TestSQLiteMappingRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteTestStore(t)

	identity, err := store.CreateIdentity(ctx, "patient-1", "patient")
	require.NoError(t, err)

	first, err := store.CreateMappingIfAbsent(ctx, &core.Mapping{
		IdentityUUID: identity.UUID, EntityType: core.EntityName,
		OriginalValue: "Jane Doe", FakeType: "synthetic", FakeValue: "Mary Johnson",
	})
	require.NoError(t, err)
	assert.Equal(t, "Mary Johnson", first.FakeValue)

	// Losing the natural-key race returns the winner.
	second, err := store.CreateMappingIfAbsent(ctx, &core.Mapping{
		IdentityUUID: identity.UUID, EntityType: core.EntityName,
		OriginalValue: "Jane Doe", FakeType: "synthetic", FakeValue: "Linda Brown",
	})
	require.NoError(t, err)
	assert.Equal(t, "Mary Johnson", second.FakeValue)

	// A fake value collision across originals surfaces as ErrFakeValueTaken.
	_, err = store.CreateMappingIfAbsent(ctx, &core.Mapping{
		IdentityUUID: identity.UUID, EntityType: core.EntityName,
		OriginalValue: "John Roe", FakeType: "synthetic", FakeValue: "Mary Johnson",
	})
	assert.ErrorIs(t, err, ErrFakeValueTaken)

	found, err := store.FindMapping(ctx, identity.UUID, core.EntityName, "Jane Doe")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Mary Johnson", found.FakeValue)

	mappings, err := store.MappingsByScope(ctx, identity.UUID)
	require.NoError(t, err)
	assert.Len(t, mappings, 1)
}

func TestSQLiteOperationsAndSummary(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteTestStore(t)

	identity, err := store.CreateIdentity(ctx, "patient-1", "patient")
	require.NoError(t, err)

	_, err = store.CreateMappingIfAbsent(ctx, &core.Mapping{
		IdentityUUID: identity.UUID, EntityType: core.EntitySSN,
		OriginalValue: "123-45-6789", FakeType: "synthetic", FakeValue: "900-11-2222",
	})
	require.NoError(t, err)

	require.NoError(t, store.AppendOperation(ctx, &core.OperationRecord{
		IdentityUUID: identity.UUID, Method: core.MethodAnonymize,
		OriginalPayload: "in", TransformedPayload: "out",
	}))
	require.NoError(t, store.AppendOperation(ctx, &core.OperationRecord{
		IdentityUUID: identity.UUID, Method: core.MethodDeAnonymize,
		OriginalPayload: "out", TransformedPayload: "in",
	}))

	summary, err := store.ScopeSummary(ctx, identity.UUID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Entities[string(core.EntitySSN)])
	assert.Equal(t, 1, summary.Operations[string(core.MethodAnonymize)])
	assert.Equal(t, 1, summary.Operations[string(core.MethodDeAnonymize)])
	require.NotNil(t, summary.FirstActivity)
	require.NotNil(t, summary.LastActivity)
	assert.False(t, summary.LastActivity.Before(*summary.FirstActivity))
}
