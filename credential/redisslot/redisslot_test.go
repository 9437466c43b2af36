package redisslot_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/jrsteele09/go-auth-client/credential/redisslot"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newSlot(t *testing.T) (*redisslot.Slot, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := redisslot.New(redisslot.Config{
		Client:    redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		KeyPrefix: "test:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestSlot(t *testing.T) {
	ctx := context.Background()
	s, mr := newSlot(t)

	_, ok, err := s.Get(ctx, credential.DefaultKey)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, credential.DefaultKey, "token-1"))
	require.True(t, mr.Exists("test:"+credential.DefaultKey))

	v, ok, err := s.Get(ctx, credential.DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "token-1", v)

	require.NoError(t, s.Delete(ctx, credential.DefaultKey))
	require.False(t, mr.Exists("test:"+credential.DefaultKey))
	require.NoError(t, s.Delete(ctx, credential.DefaultKey))
}

func TestSlot_StorageFailure(t *testing.T) {
	ctx := context.Background()
	s, mr := newSlot(t)
	mr.Close()

	_, _, err := s.Get(ctx, credential.DefaultKey)
	require.ErrorIs(t, err, credential.ErrStorage)
	require.ErrorIs(t, s.Set(ctx, credential.DefaultKey, "x"), credential.ErrStorage)
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := redisslot.New(redisslot.Config{})
	require.Error(t, err)
}
