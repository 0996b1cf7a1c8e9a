package cache

import (
	"context"
	"testing"
	"time"

	"lot-auction/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "test:", ttl), mr
}

func TestRedisStore_SaveLoadMarkStale(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t, 0)

	_, ok, err := store.Load(ctx, LotKey(1))
	require.NoError(t, err)
	require.False(t, ok)

	now := time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC)
	require.NoError(t, store.Save(ctx, LotKey(1), Entry{Data: []byte(`{"id":1}`), UpdatedAt: now}))
	require.True(t, mr.Exists("test:lote:1"))

	e, ok, err := store.Load(ctx, LotKey(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"id":1}`, string(e.Data))
	require.True(t, now.Equal(e.UpdatedAt))
	require.False(t, e.Stale)

	require.NoError(t, store.MarkStale(ctx, LotKey(1)))
	e, ok, err = store.Load(ctx, LotKey(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, e.Stale)

	// marking a missing key must not create it
	require.NoError(t, store.MarkStale(ctx, LotKey(99)))
	require.False(t, mr.Exists("test:lote:99"))
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	store, mr := setupRedisStore(t, time.Minute)

	require.NoError(t, store.Save(ctx, LotKey(1), Entry{Data: []byte(`{}`), UpdatedAt: time.Now()}))
	require.Equal(t, time.Minute, mr.TTL("test:lote:1"))

	// marking stale keeps the data and the remaining TTL
	require.NoError(t, store.MarkStale(ctx, LotKey(1)))
	require.Equal(t, "{}", mr.HGet("test:lote:1", fieldData))
	require.Equal(t, time.Minute, mr.TTL("test:lote:1"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := store.Load(ctx, LotKey(1))
	require.NoError(t, err)
	require.False(t, ok)

	// an expired entry is not brought back as a data-less hash
	require.NoError(t, store.MarkStale(ctx, LotKey(1)))
	require.False(t, mr.Exists("test:lote:1"))
	_, ok, err = Get[models.Lot](ctx, New(store), LotKey(1))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueryCache_OverRedis(t *testing.T) {
	ctx := context.Background()
	store, _ := setupRedisStore(t, 0)
	c := New(store)

	lot := newLot(3, "100000")
	lot.LastBid = &models.LastBid{Amount: decimal.RequireFromString("250000.50"), BidderID: 2}
	require.NoError(t, c.SetFromResponse(ctx, LotKey(3), lot))

	// a second cache over the same Redis sees the same snapshot
	other := New(store)
	got, ok, err := Get[models.Lot](ctx, other, LotKey(3))
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.Value.LastBid)
	require.True(t, decimal.RequireFromString("250000.50").Equal(got.Value.LastBid.Amount))

	require.NoError(t, other.Invalidate(ctx, LotKey(3)))
	got, ok, err = Get[models.Lot](ctx, c, LotKey(3))
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Stale)
}
