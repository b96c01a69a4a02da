package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phivault/internal/core"
)

func TestMemoryCreateIdentityIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	first, err := store.CreateIdentity(ctx, "patient-1", "patient")
	require.NoError(t, err)
	require.NotEmpty(t, first.UUID)

	second, err := store.CreateIdentity(ctx, "patient-1", "patient")
	require.NoError(t, err)
	assert.Equal(t, first.UUID, second.UUID)

	other, err := store.CreateIdentity(ctx, "patient-1", "session")
	require.NoError(t, err)
	assert.NotEqual(t, first.UUID, other.UUID, "same scope id with different type is a different scope")
}

func TestMemoryFindIdentityUnseen(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	identity, err := store.FindIdentity(ctx, "nobody", "patient")
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestMemoryCreateMappingIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	identity, err := store.CreateIdentity(ctx, "patient-1", "patient")
	require.NoError(t, err)

	first, err := store.CreateMappingIfAbsent(ctx, &core.Mapping{
		IdentityUUID:  identity.UUID,
		EntityType:    core.EntityName,
		OriginalValue: "Jane Doe",
		FakeType:      "synthetic",
		FakeValue:     "Mary Johnson",
	})
	require.NoError(t, err)
	assert.Equal(t, "Mary Johnson", first.FakeValue)
	assert.False(t, first.CreatedAt.IsZero())

	// Same natural key with a different candidate returns the winner.
	second, err := store.CreateMappingIfAbsent(ctx, &core.Mapping{
		IdentityUUID:  identity.UUID,
		EntityType:    core.EntityName,
		OriginalValue: "Jane Doe",
		FakeType:      "synthetic",
		FakeValue:     "Linda Brown",
	})
	require.NoError(t, err)
	assert.Equal(t, "Mary Johnson", second.FakeValue)

	// A different original reusing the winning fake value collides.
	_, err = store.CreateMappingIfAbsent(ctx, &core.Mapping{
		IdentityUUID:  identity.UUID,
		EntityType:    core.EntityName,
		OriginalValue: "John Roe",
		FakeType:      "synthetic",
		FakeValue:     "Mary Johnson",
	})
	assert.ErrorIs(t, err, ErrFakeValueTaken)
}

func TestMemoryFakeValueScopedPerIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	a, err := store.CreateIdentity(ctx, "patient-1", "patient")
	require.NoError(t, err)
	b, err := store.CreateIdentity(ctx, "patient-2", "patient")
	require.NoError(t, err)

	_, err = store.CreateMappingIfAbsent(ctx, &core.Mapping{
		IdentityUUID: a.UUID, EntityType: core.EntityName,
		OriginalValue: "Jane Doe", FakeType: "synthetic", FakeValue: "Mary Johnson",
	})
	require.NoError(t, err)

	// The same fake value is fine in a different scope.
	_, err = store.CreateMappingIfAbsent(ctx, &core.Mapping{
		IdentityUUID: b.UUID, EntityType: core.EntityName,
		OriginalValue: "Alice Smith", FakeType: "synthetic", FakeValue: "Mary Johnson",
	})
	require.NoError(t, err)

	taken, err := store.FakeValueExists(ctx, a.UUID, "Mary Johnson")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = store.FakeValueExists(ctx, a.UUID, "Nobody Here")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestMemoryMappingsByScope(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	identity, err := store.CreateIdentity(ctx, "patient-1", "patient")
	require.NoError(t, err)

	mappings, err := store.MappingsByScope(ctx, identity.UUID)
	require.NoError(t, err)
	assert.Empty(t, mappings)

	for _, m := range []core.Mapping{
		{IdentityUUID: identity.UUID, EntityType: core.EntityName, OriginalValue: "Jane Doe", FakeType: "synthetic", FakeValue: "Mary Johnson"},
		{IdentityUUID: identity.UUID, EntityType: core.EntitySSN, OriginalValue: "123-45-6789", FakeType: "synthetic", FakeValue: "900-11-2222"},
	} {
		m := m
		_, err := store.CreateMappingIfAbsent(ctx, &m)
		require.NoError(t, err)
	}

	mappings, err = store.MappingsByScope(ctx, identity.UUID)
	require.NoError(t, err)
	assert.Len(t, mappings, 2)
}

func TestMemoryScopeSummary(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	identity, err := store.CreateIdentity(ctx, "patient-1", "patient")
	require.NoError(t, err)

	_, err = store.CreateMappingIfAbsent(ctx, &core.Mapping{
		IdentityUUID: identity.UUID, EntityType: core.EntityName,
		OriginalValue: "Jane Doe", FakeType: "synthetic", FakeValue: "Mary Johnson",
	})
	require.NoError(t, err)

	require.NoError(t, store.AppendOperation(ctx, &core.OperationRecord{
		IdentityUUID: identity.UUID, Method: core.MethodAnonymize,
		OriginalPayload: "x", TransformedPayload: "y",
	}))
	require.NoError(t, store.AppendOperation(ctx, &core.OperationRecord{
		IdentityUUID: identity.UUID, Method: core.MethodAnonymize,
		OriginalPayload: "x2", TransformedPayload: "y2",
	}))

	summary, err := store.ScopeSummary(ctx, identity.UUID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Entities[string(core.EntityName)])
	assert.Equal(t, 2, summary.Operations[string(core.MethodAnonymize)])
	require.NotNil(t, summary.FirstActivity)
	require.NotNil(t, summary.LastActivity)
	assert.False(t, summary.LastActivity.Before(*summary.FirstActivity))
}

func TestMemoryMappingUnknownIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, err := store.CreateMappingIfAbsent(ctx, &core.Mapping{
		IdentityUUID: "no-such-uuid", EntityType: core.EntityName,
		OriginalValue: "Jane Doe", FakeType: "synthetic", FakeValue: "Mary Johnson",
	})
	assert.Error(t, err)
}
