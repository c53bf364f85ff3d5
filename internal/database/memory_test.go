package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_FindPaginates(t *testing.T) {
	store := NewMemoryStore("Vehicle")
	for i := 1; i <= 5; i++ {
		store.Seed("Vehicle", Record{"id": i, "tenantId": "t"})
	}
	store.Seed("Vehicle", Record{"id": 99, "tenantId": "other"})

	accessor, ok := store.Accessor("Vehicle")
	require.True(t, ok)

	page, err := accessor.Find(context.Background(), Where("tenantId", "t"), 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, err = accessor.Find(context.Background(), Where("tenantId", "t"), 4, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 5, page[0]["id"])
}

func TestMemoryStore_FindOrdersByID(t *testing.T) {
	store := NewMemoryStore("Person")
	store.Seed("Person",
		Record{"id": "p3", "tenantId": "t"},
		Record{"id": "p1", "tenantId": "t"},
		Record{"id": "p2", "tenantId": "t"},
	)
	accessor, _ := store.Accessor("Person")

	page, err := accessor.Find(context.Background(), Where("tenantId", "t"), 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, []string{"p1", "p2", "p3"}, []string{page[0].ID(), page[1].ID(), page[2].ID()})

	page, err = accessor.Find(context.Background(), Where("tenantId", "t"), 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "p2", page[0].ID())

	page, err = accessor.Find(context.Background(), Where("tenantId", "t"), 5, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryStore_CreateAndUpsert(t *testing.T) {
	store := NewMemoryStore("Person")
	accessor, _ := store.Accessor("Person")
	ctx := context.Background()

	require.NoError(t, accessor.Create(ctx, Record{"id": "p1", "name": "Ana"}))
	assert.Error(t, accessor.Create(ctx, Record{"id": "p1", "name": "Ana"}))

	require.NoError(t, accessor.CreateOrUpdate(ctx, Record{"id": "p1", "name": "Ana Maria"}))
	require.NoError(t, accessor.CreateOrUpdate(ctx, Record{"id": "p2", "name": "Bia"}))

	records := store.Records("Person")
	require.Len(t, records, 2)
	assert.Equal(t, "Ana Maria", records[0]["name"])
}

func TestMemoryStore_DeleteManyWithExclusion(t *testing.T) {
	store := NewMemoryStore("User")
	store.Seed("User",
		Record{"id": "u1", "tenantId": "t"},
		Record{"id": "u2", "tenantId": "t"},
		Record{"id": "u3", "tenantId": "other"},
	)

	accessor, _ := store.Accessor("User")
	deleted, err := accessor.DeleteMany(context.Background(), Where("tenantId", "t").Not("id", "u1"))

	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, 2, store.Count("User"))
}

func TestMemoryStore_TransactionRollsBack(t *testing.T) {
	store := NewMemoryStore("A", "B")
	store.Seed("A", Record{"id": 1})
	store.FailWrites("B", errors.New("disk full"))

	err := store.WithinTransaction(context.Background(), time.Second, func(ctx context.Context, tx Registry) error {
		a, _ := tx.Accessor("A")
		if err := a.Create(ctx, Record{"id": 2}); err != nil {
			return err
		}
		b, _ := tx.Accessor("B")
		return b.Create(ctx, Record{"id": 1})
	})

	require.Error(t, err)
	assert.Equal(t, 1, store.Count("A"))
	assert.Equal(t, 0, store.Count("B"))

	store.FailWrites("B", nil)
	err = store.WithinTransaction(context.Background(), 0, func(ctx context.Context, tx Registry) error {
		b, _ := tx.Accessor("B")
		return b.Create(ctx, Record{"id": 1})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count("B"))
}

func TestMemoryStore_DomainName(t *testing.T) {
	store := NewMemoryStore()
	store.Seed("Tenant", Record{"id": "t-1", "name": "Acme Rentals"})

	name, err := store.DomainName(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Rentals", name)

	_, err = store.DomainName(context.Background(), "t-2")
	assert.ErrorIs(t, err, ErrDomainNotFound)

	_, ok := store.Accessor("Unknown")
	assert.False(t, ok)
}

func TestFilterMatches(t *testing.T) {
	record := Record{"id": int64(7), "tenantId": "t"}

	assert.True(t, Filter{}.Matches(record))
	assert.True(t, Where("id", "7").Matches(record))
	assert.False(t, Where("tenantId", "x").Matches(record))
	assert.False(t, Where("missing", "x").Matches(record))
	assert.False(t, Where("tenantId", "t").Not("id", 7).Matches(record))

	base := Where("tenantId", "t")
	_ = base.Not("id", 7)
	assert.Empty(t, base.NotEquals)
}
