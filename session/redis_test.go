package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Bastien2203/pi-medias/config"
	"github.com/Bastien2203/pi-medias/core/auth"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "pimedias:session")
	t.Cleanup(func() { store.Close() })
	return mr, store
}

func TestRedisStoreOpaqueToken(t *testing.T) {
	ctx := context.Background()
	mr, store := newRedisStore(t)

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.Save(ctx, "abc123"))
	token, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "abc123", token)
	require.Zero(t, mr.TTL("pimedias:session"))

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestRedisStoreFollowsTokenExpiry(t *testing.T) {
	ctx := context.Background()
	mr, store := newRedisStore(t)

	now := time.Now().Truncate(time.Second)
	store.now = func() time.Time { return now }

	token, err := auth.IssueToken([]byte("k"), 1, time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, token))
	require.Equal(t, time.Hour, mr.TTL("pimedias:session"))

	mr.FastForward(time.Hour + time.Second)
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestRedisStoreDropsExpiredToken(t *testing.T) {
	ctx := context.Background()
	_, store := newRedisStore(t)
	require.NoError(t, store.Save(ctx, "abc123"))

	expired, err := auth.IssueToken([]byte("k"), 1, time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, expired))

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	store, err := ConnectRedis(context.Background(), &config.Config{
		RedisHost:  host,
		RedisPort:  port,
		SessionKey: "k",
	})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(context.Background(), "tok"))
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "tok", got)

	mr.Close()
	_, err = ConnectRedis(context.Background(), &config.Config{RedisHost: host, RedisPort: port})
	require.Error(t, err)
}
