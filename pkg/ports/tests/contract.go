package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/canopy/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LockerContractTest is a reusable test suite that verifies if an adapter complies with ports.DistributedLocker.
func LockerContractTest(t *testing.T, locker ports.DistributedLocker) {
	t.Helper()

	// 1. Lock and Unlock
	t.Run("Lock_Unlock", func(t *testing.T) {
		ctx := context.Background()
		unlock, err := locker.Lock(ctx, "contract-a", time.Second)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))

		// Re-acquire after release
		unlock, err = locker.Lock(ctx, "contract-a", time.Second)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))
	})

	// 2. Contention honours the context
	t.Run("Lock_Contention_Timeout", func(t *testing.T) {
		ctx := context.Background()
		unlock, err := locker.Lock(ctx, "contract-b", 5*time.Second)
		require.NoError(t, err)
		defer func() { _ = unlock(ctx) }()

		short, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(short, "contract-b", 5*time.Second)
		assert.Error(t, err, "second Lock on a held key must fail once the context expires")
	})

	// 3. Mutual exclusion across goroutines
	t.Run("Mutual_Exclusion", func(t *testing.T) {
		ctx := context.Background()
		var inside, maxInside int32
		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(ctx, "contract-c", 5*time.Second)
				if !assert.NoError(t, err) {
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				assert.NoError(t, unlock(ctx))
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, maxInside)
	})
}
