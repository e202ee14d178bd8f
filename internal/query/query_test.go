package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/portal/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func counter[T any](n *int32, v T, err error) Fetcher[T] {
	return func(context.Context) (T, error) {
		atomic.AddInt32(n, 1)
		return v, err
	}
}

func TestTierStaleTimes(t *testing.T) {
	assert.Equal(t, time.Duration(0), TierStatic.StaleTime())
	assert.Equal(t, time.Hour, TierStable.StaleTime())
	assert.Equal(t, 5*time.Minute, TierStandard.StaleTime())
	assert.Equal(t, 30*time.Second, TierDynamic.StaleTime())

	assert.Equal(t, TierStable, FamilyPlans.Tier())
	assert.Equal(t, TierStatic, FamilySiteConfig.Tier())
	assert.Equal(t, TierDynamic, FamilyDashboardStats.Tier())
	assert.Equal(t, TierStandard, Family("unknown").Tier())
	assert.Len(t, Families(), 11)
}

func TestFetch_CachesUntilInvalidated(t *testing.T) {
	c := New(zap.NewNop())
	ctx := context.Background()
	var n int32

	for i := 0; i < 3; i++ {
		v, err := Fetch(ctx, c, NewKey(FamilyPlans), counter(&n, []string{"basic"}, nil))
		require.NoError(t, err)
		assert.Equal(t, []string{"basic"}, v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&n))

	c.Invalidate(FamilyPlans)
	_, err := Fetch(ctx, c, NewKey(FamilyPlans), counter(&n, []string{"basic"}, nil))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&n))
}

func TestFetch_ErrorsAreNotCached(t *testing.T) {
	c := New(zap.NewNop())
	var n int32
	boom := errors.New("boom")

	_, err := Fetch(context.Background(), c, NewKey(FamilyEvents), counter(&n, 0, boom))
	require.ErrorIs(t, err, boom)
	assert.False(t, c.Has(NewKey(FamilyEvents)))

	v, err := Fetch(context.Background(), c, NewKey(FamilyEvents), counter(&n, 42, nil))
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&n))
}

func TestInvalidate_OnlyTouchesNamedFamilies(t *testing.T) {
	c := New(zap.NewNop())
	ctx := context.Background()
	var n int32

	keys := []Key{NewKey(FamilyPlans, "1"), NewKey(FamilyPlans, "2"), NewKey(FamilyPosts, "1"), NewKey(Family("plans-archive"))}
	for _, k := range keys {
		_, err := Fetch(ctx, c, k, counter(&n, "x", nil))
		require.NoError(t, err)
	}
	require.Equal(t, 4, c.Len())

	c.Invalidate(FamilyPlans)
	assert.False(t, c.Has(keys[0]))
	assert.False(t, c.Has(keys[1]))
	assert.True(t, c.Has(keys[2]))
	assert.True(t, c.Has(keys[3]))
}

func TestFetch_StaleTimeExpires(t *testing.T) {
	c := New(zap.NewNop())
	var n int32
	k := NewKey(FamilyDonations)

	_, err := Fetch(context.Background(), c, k, counter(&n, 1, nil), WithStaleTime(20*time.Millisecond))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = Fetch(context.Background(), c, k, counter(&n, 1, nil), WithStaleTime(20*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&n))
}

func TestFetch_ConcurrentCallersShareOneFetch(t *testing.T) {
	c := New(zap.NewNop())
	release := make(chan struct{})
	var n int32
	fetch := func(context.Context) (string, error) {
		atomic.AddInt32(&n, 1)
		<-release
		return "me", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Fetch(context.Background(), c, NewKey(FamilyMe), fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	// dejar que todas las goroutines entren al singleflight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&n))
	for _, r := range results {
		assert.Equal(t, "me", r)
	}
}

func TestInvalidateDuringInFlightFetchDiscardsResult(t *testing.T) {
	c := New(zap.NewNop())
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(context.Context) (string, error) {
		close(started)
		<-release
		return "old", nil
	}

	done := make(chan string)
	go func() {
		v, _ := Fetch(context.Background(), c, NewKey(FamilyPlans), fetch)
		done <- v
	}()
	<-started
	c.Invalidate(FamilyPlans)
	close(release)

	assert.Equal(t, "old", <-done)
	assert.False(t, c.Has(NewKey(FamilyPlans)))
}

func TestClearDuringInFlightFetchDiscardsResult(t *testing.T) {
	c := New(zap.NewNop())
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(context.Context) (string, error) {
		close(started)
		<-release
		return "previous-user", nil
	}

	done := make(chan struct{})
	go func() {
		_, _ = Fetch(context.Background(), c, NewKey(FamilyMe), fetch)
		close(done)
	}()
	<-started
	c.Clear()
	close(release)
	<-done

	assert.Equal(t, 0, c.Len())
}

func TestFetch_RetryPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("transient retried once", func(t *testing.T) {
		c := New(zap.NewNop())
		var n int32
		fetch := func(context.Context) (string, error) {
			if atomic.AddInt32(&n, 1) == 1 {
				return "", &api.Error{Kind: api.KindTransient}
			}
			return "ok", nil
		}
		v, err := Fetch(ctx, c, NewKey(FamilyMe), fetch, WithRetry(1, api.IsTransient), WithBackoff(0))
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
		assert.Equal(t, int32(2), atomic.LoadInt32(&n))
	})

	t.Run("auth never retried", func(t *testing.T) {
		c := New(zap.NewNop())
		var n int32
		fetch := counter(&n, "", error(&api.Error{Kind: api.KindAuth, Status: 401}))
		_, err := Fetch(ctx, c, NewKey(FamilyMe), fetch, WithRetry(3, api.IsTransient), WithBackoff(0))
		require.Error(t, err)
		assert.True(t, api.IsAuth(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&n))
	})

	t.Run("gives up after n retries", func(t *testing.T) {
		c := New(zap.NewNop())
		var n int32
		fetch := counter(&n, "", error(&api.Error{Kind: api.KindTransient}))
		_, err := Fetch(ctx, c, NewKey(FamilyMe), fetch, WithRetry(2, nil), WithBackoff(0))
		require.Error(t, err)
		assert.True(t, api.IsTransient(err))
		assert.Equal(t, int32(3), atomic.LoadInt32(&n))
	})
}

func TestMutate_InvalidatesOnlyOnSuccess(t *testing.T) {
	c := New(zap.NewNop())
	ctx := context.Background()
	var n int32

	_, err := Fetch(ctx, c, NewKey(FamilyPlans), counter(&n, "v1", nil))
	require.NoError(t, err)

	_, err = Mutate(ctx, c, counter(&n, 0, errors.New("rejected")), FamilyPlans)
	require.Error(t, err)
	assert.True(t, c.Has(NewKey(FamilyPlans)))

	_, err = Mutate(ctx, c, counter(&n, 1, nil), FamilyPlans, FamilyDashboardStats)
	require.NoError(t, err)
	assert.False(t, c.Has(NewKey(FamilyPlans)))
}
