package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPaymentID = "3f2b8c1e-9a4d-4f6b-8c2d-1e5f7a9b0c3d"

func setupReplayGuard(t *testing.T) (*miniredis.Miniredis, *ReplayGuard) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return s, NewReplayGuard(client)
}

func TestReplayGuard_CheckAndSet_New(t *testing.T) {
	s, guard := setupReplayGuard(t)

	ok, err := guard.CheckAndSet(context.Background(), "payment", testPaymentID, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "first use should be accepted")
	assert.True(t, s.Exists("consumed:payment:"+testPaymentID))
	assert.Equal(t, time.Hour, s.TTL("consumed:payment:"+testPaymentID))
}

func TestReplayGuard_CheckAndSet_Replay(t *testing.T) {
	_, guard := setupReplayGuard(t)
	ctx := context.Background()

	ok, err := guard.CheckAndSet(ctx, "payment", testPaymentID, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.CheckAndSet(ctx, "payment", testPaymentID, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second use should be rejected")
}

func TestReplayGuard_CheckAndSet_ScopesAreIndependent(t *testing.T) {
	_, guard := setupReplayGuard(t)
	ctx := context.Background()

	ok1, err := guard.CheckAndSet(ctx, "payment", "0xabc", time.Hour)
	require.NoError(t, err)
	ok2, err := guard.CheckAndSet(ctx, "txhash", "0xabc", time.Hour)
	require.NoError(t, err)

	assert.True(t, ok1)
	assert.True(t, ok2, "same id under another scope is new")
}

func TestReplayGuard_CheckAndSet_Expired(t *testing.T) {
	s, guard := setupReplayGuard(t)
	ctx := context.Background()

	ok, err := guard.CheckAndSet(ctx, "payment", testPaymentID, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	s.FastForward(2 * time.Second)

	ok, err = guard.CheckAndSet(ctx, "payment", testPaymentID, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired id should be accepted again")
}

func TestReplayGuard_Release(t *testing.T) {
	_, guard := setupReplayGuard(t)
	ctx := context.Background()

	_, err := guard.CheckAndSet(ctx, "txhash", "0xfeed", time.Hour)
	require.NoError(t, err)
	require.NoError(t, guard.Release(ctx, "txhash", "0xfeed"))

	ok, err := guard.CheckAndSet(ctx, "txhash", "0xfeed", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReplayGuard_StoreDown(t *testing.T) {
	s, guard := setupReplayGuard(t)
	s.Close()

	_, err := guard.CheckAndSet(context.Background(), "payment", testPaymentID, time.Hour)
	assert.Error(t, err)
}
