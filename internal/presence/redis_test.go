package presence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backcoffee-chat/internal/models"
)

func newPresence(t *testing.T) (*RedisPresence, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPresence(client), srv
}

func TestOnlineOffline(t *testing.T) {
	p, srv := newPresence(t)
	ctx := context.Background()

	require.NoError(t, p.Online(ctx, "u1", models.RoleCustomer))
	require.NoError(t, p.Online(ctx, "a1", models.RoleAdmin))
	assert.Equal(t, "admin", srv.HGet(onlineKey, "a1"))

	list, err := p.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]models.Role{"u1": models.RoleCustomer, "a1": models.RoleAdmin}, list)

	require.NoError(t, p.Offline(ctx, "u1"))
	require.NoError(t, p.Offline(ctx, "u1"))
	list, err = p.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]models.Role{"a1": models.RoleAdmin}, list)

	require.NoError(t, p.Reset(ctx))
	list, err = p.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConnect(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := Connect(context.Background(), srv.Addr(), "")
	require.NoError(t, err)
	_ = client.Close()

	_, err = Connect(context.Background(), "127.0.0.1:1", "")
	assert.Error(t, err)
}
