package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/canopy/pkg/adapters/redis"
	"github.com/aretw0/canopy/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker_Contract(t *testing.T) {
	_, client := newClient(t)
	tests.LockerContractTest(t, redis.NewLocker(client, "test:"))
}

func TestRedisLocker_Contention(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	locker1 := redis.NewLocker(client, "test:")
	locker2 := redis.NewLocker(client, "test:")
	key := "shared-resource"

	// 1. Client 1 acquires
	unlock1, err := locker1.Lock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:shared-resource"))

	// 2. Client 2 blocks until its context expires
	short, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = locker2.Lock(short, key, 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.WithinDuration(t, start.Add(300*time.Millisecond), time.Now(), 150*time.Millisecond, "Should block until timeout")

	// 3. Client 1 unlocks, client 2 succeeds
	require.NoError(t, unlock1(ctx))
	unlock2, err := locker2.Lock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = unlock2(ctx) }()
}

func TestRedisLocker_StaleUnlockKeepsNewHolder(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	locker := redis.NewLocker(client, "test:")

	unlockOld, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)

	// The first holder's lease runs out and someone else takes over.
	mr.FastForward(2 * time.Second)
	unlockNew, err := locker.Lock(ctx, "k", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, unlockOld(ctx))
	assert.True(t, mr.Exists("test:lock:k"), "a stale token must not release the new lease")

	require.NoError(t, unlockNew(ctx))
	assert.False(t, mr.Exists("test:lock:k"))
}
