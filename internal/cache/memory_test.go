package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bl4ck0w1/profilynx/internal/cache"
)

func TestMemory_SetGet(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := cache.NewMemory(time.Minute)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))

	val, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)

	_, ok, err = m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_Expiry(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := cache.NewMemory(time.Minute)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", "v", 20*time.Millisecond))

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry must expire after its ttl")
}

func TestMemory_JanitorSweepsExpired(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := cache.NewMemory(20 * time.Millisecond)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "short", "v", 10*time.Millisecond))
	require.NoError(t, m.Set(ctx, "long", "v", time.Minute))

	assert.Eventually(t, func() bool {
		return m.Len() == 1
	}, time.Second, 10*time.Millisecond, "janitor should remove the expired entry")
}

func TestMemory_CloseStopsJanitor(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := cache.NewMemory(10 * time.Millisecond)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestMemory_Overwrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := cache.NewMemory(time.Minute)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", "old", time.Minute))
	require.NoError(t, m.Set(ctx, "k", "new", time.Minute))

	val, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new", val)
}
