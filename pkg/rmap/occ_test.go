package rmap

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/rmap-go/pkg/resp"
)

func TestRemoveIf(t *testing.T) {
	backend := startBackend(t)
	h := newTestClient(t, PoolOf(backend)).Hash("inv")
	ctx := context.Background()

	raw(t, backend, "HSET", "inv", "a", "1", "b", "2")

	ok, err := h.RemoveIf(ctx, []byte("a"), []byte("nope"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.RemoveIf(ctx, []byte("a"), []byte("1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.RemoveIf(ctx, []byte("a"), []byte("1"))
	require.NoError(t, err)
	assert.False(t, ok, "already removed")

	ok, err = h.RemoveIf(ctx, []byte("b"), nil)
	require.NoError(t, err)
	assert.False(t, ok, "nil never matches a present field")

	n, err := h.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReplaceIf(t *testing.T) {
	backend := startBackend(t)
	h := newTestClient(t, PoolOf(backend)).Hash("inv")
	ctx := context.Background()

	ok, err := h.ReplaceIf(ctx, []byte("a"), []byte("1"), []byte("2"))
	require.NoError(t, err)
	assert.False(t, ok, "absent field")

	raw(t, backend, "HSET", "inv", "a", "1")

	ok, err = h.ReplaceIf(ctx, []byte("a"), []byte("9"), []byte("2"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.ReplaceIf(ctx, []byte("a"), []byte("1"), []byte("2"))
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := h.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))
}

func TestReplaceIf_EmptyValue(t *testing.T) {
	backend := startBackend(t)
	h := newTestClient(t, PoolOf(backend)).Hash("inv")
	ctx := context.Background()

	raw(t, backend, "HSET", "inv", "a", "")

	ok, err := h.ReplaceIf(ctx, []byte("a"), nil, []byte("x"))
	require.NoError(t, err)
	assert.False(t, ok, "nil is absence, not the empty value")

	ok, err = h.ReplaceIf(ctx, []byte("a"), []byte{}, []byte("x"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReplace(t *testing.T) {
	backend := startBackend(t)
	h := newTestClient(t, PoolOf(backend)).Hash("inv")
	ctx := context.Background()

	prev, err := h.Replace(ctx, []byte("a"), []byte("1"))
	require.NoError(t, err)
	assert.Nil(t, prev)

	ok, err := h.ContainsKey(ctx, []byte("a"))
	require.NoError(t, err)
	assert.False(t, ok, "replace must not create a field")

	raw(t, backend, "HSET", "inv", "a", "1")
	prev, err = h.Replace(ctx, []byte("a"), []byte("2"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(prev))

	v, err := h.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))
}

func TestConditional_FalsePreconditionSkipsTransaction(t *testing.T) {
	backend := startBackend(t)
	pool := newCountingPool(PoolOf(backend))
	h := newTestClient(t, pool).Hash("inv")
	ctx := context.Background()

	raw(t, backend, "HSET", "inv", "a", "1")

	ok, err := h.RemoveIf(ctx, []byte("a"), []byte("2"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"WATCH", "HEXISTS", "HGET", "UNWATCH"}, pool.commands())

	pool.resetCommands()
	ok, err = h.ReplaceIf(ctx, []byte("missing"), []byte("1"), []byte("2"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"WATCH", "HEXISTS", "UNWATCH"}, pool.commands())

	pool.resetCommands()
	prev, err := h.Replace(ctx, []byte("missing"), []byte("2"))
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Equal(t, []string{"WATCH", "HEXISTS", "UNWATCH"}, pool.commands())

	acquired, released, broken := pool.balance()
	assert.Equal(t, 3, acquired)
	assert.Equal(t, 3, released)
	assert.Zero(t, broken)
}

func TestConditional_AppliedCommandSequence(t *testing.T) {
	backend := startBackend(t)
	pool := newCountingPool(PoolOf(backend))
	h := newTestClient(t, pool).Hash("inv")

	raw(t, backend, "HSET", "inv", "a", "1")

	ok, err := h.RemoveIf(context.Background(), []byte("a"), []byte("1"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"WATCH", "HEXISTS", "HGET", "MULTI", "HDEL", "EXEC"}, pool.commands())
}

func TestConditional_RetriesAfterConflict(t *testing.T) {
	backend := startBackend(t)
	pool := newCountingPool(PoolOf(backend))
	h := newTestClient(t, pool).Hash("inv")

	raw(t, backend, "HSET", "inv", "a", "1")

	// A foreign write of the same value still invalidates the first commit.
	pool.on("EXEC", func(n int) error {
		if n == 1 {
			raw(t, backend, "HSET", "inv", "a", "1")
		}
		return nil
	})

	ok, err := h.ReplaceIf(context.Background(), []byte("a"), []byte("1"), []byte("2"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, pool.count("WATCH"))
	assert.Equal(t, 2, pool.count("EXEC"))

	v, err := h.Get(context.Background(), []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))
}

func TestConditional_RecheckAfterConflict(t *testing.T) {
	backend := startBackend(t)
	pool := newCountingPool(PoolOf(backend))
	h := newTestClient(t, pool).Hash("inv")

	raw(t, backend, "HSET", "inv", "a", "1")
	pool.on("EXEC", func(n int) error {
		if n == 1 {
			raw(t, backend, "HSET", "inv", "a", "7")
		}
		return nil
	})

	ok, err := h.RemoveIf(context.Background(), []byte("a"), []byte("1"))
	require.NoError(t, err)
	assert.False(t, ok, "the retry sees the foreign value")
	assert.Equal(t, 1, pool.count("EXEC"))

	v, err := h.Get(context.Background(), []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "7", string(v))
}

func TestReplace_RetriesAfterConflict(t *testing.T) {
	backend := startBackend(t)
	pool := newCountingPool(PoolOf(backend))
	h := newTestClient(t, pool).Hash("inv")

	raw(t, backend, "HSET", "inv", "a", "1")
	pool.on("EXEC", func(n int) error {
		if n == 1 {
			raw(t, backend, "HSET", "inv", "a", "5")
		}
		return nil
	})

	prev, err := h.Replace(context.Background(), []byte("a"), []byte("9"))
	require.NoError(t, err)
	assert.Equal(t, "5", string(prev), "previous value comes from the attempt that applied")

	v, err := h.Get(context.Background(), []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "9", string(v))
}

func TestReplace_ConflictWithDelete(t *testing.T) {
	backend := startBackend(t)
	pool := newCountingPool(PoolOf(backend))
	h := newTestClient(t, pool).Hash("inv")

	raw(t, backend, "HSET", "inv", "a", "1")
	pool.on("EXEC", func(n int) error {
		if n == 1 {
			raw(t, backend, "HDEL", "inv", "a")
		}
		return nil
	})

	prev, err := h.Replace(context.Background(), []byte("a"), []byte("9"))
	require.NoError(t, err)
	assert.Nil(t, prev)

	ok, err := h.ContainsKey(context.Background(), []byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConditional_RetriesExhausted(t *testing.T) {
	backend := startBackend(t)
	pool := newCountingPool(PoolOf(backend))
	h := newTestClient(t, pool, WithRetryPolicy(RetryPolicy{MaxAttempts: 3})).Hash("inv")

	raw(t, backend, "HSET", "inv", "a", "1")
	pool.on("EXEC", func(int) error {
		raw(t, backend, "HSET", "inv", "a", "1")
		return nil
	})

	ok, err := h.ReplaceIf(context.Background(), []byte("a"), []byte("1"), []byte("2"))
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.False(t, ok)
	assert.Equal(t, 3, pool.count("EXEC"))

	acquired, released, broken := pool.balance()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
	assert.Zero(t, broken)
}

func TestConditional_ContextCanceled(t *testing.T) {
	backend := startBackend(t)
	pool := newCountingPool(PoolOf(backend))
	h := newTestClient(t, pool).Hash("inv")

	// Warm the pool so Acquire does not dial.
	_, err := h.Get(context.Background(), []byte("a"))
	require.NoError(t, err)
	require.NoError(t, h.Close())
	h = newTestClient(t, pool).Hash("inv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = h.RemoveIf(ctx, []byte("a"), []byte("1"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, pool.count("WATCH"))

	acquired, released, _ := pool.balance()
	assert.Equal(t, acquired, released)
}

func TestConditional_ReleaseOnFault(t *testing.T) {
	for _, cmd := range []string{"WATCH", "HEXISTS", "HGET", "MULTI", "HDEL", "EXEC"} {
		t.Run(cmd, func(t *testing.T) {
			backend := startBackend(t)
			pool := newCountingPool(PoolOf(backend))
			h := newTestClient(t, pool).Hash("inv")

			raw(t, backend, "HSET", "inv", "a", "1")
			pool.on(cmd, func(int) error { return errInjected })

			_, err := h.RemoveIf(context.Background(), []byte("a"), []byte("1"))
			require.ErrorIs(t, err, errInjected)

			acquired, released, broken := pool.balance()
			assert.Equal(t, 1, acquired)
			assert.Equal(t, 1, released, "released exactly once")
			assert.Equal(t, 1, broken)
			assert.Zero(t, pool.count("UNWATCH"))
			assert.Zero(t, pool.count("DISCARD"))
		})
	}
}

func TestConditional_ReplyErrorResetsConnection(t *testing.T) {
	backend := startBackend(t)
	pool := newCountingPool(PoolOf(backend))
	h := newTestClient(t, pool).Hash("inv")

	raw(t, backend, "HSET", "inv", "a", "1")
	pool.on("HDEL", func(int) error { return &resp.Error{Message: "ERR injected"} })

	_, err := h.RemoveIf(context.Background(), []byte("a"), []byte("1"))
	require.Error(t, err)
	assert.True(t, isReplyError(err))
	assert.Equal(t, 1, pool.count("DISCARD"))

	_, released, broken := pool.balance()
	assert.Equal(t, 1, released)
	assert.Zero(t, broken, "a reset connection is reusable")

	ok, err := h.ContainsKey(context.Background(), []byte("a"))
	require.NoError(t, err)
	assert.True(t, ok, "nothing was applied")
}

func TestConditional_Closed(t *testing.T) {
	backend := startBackend(t)
	pool := newCountingPool(PoolOf(backend))
	c := newTestClient(t, pool)
	h := c.Hash("inv")
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, err := h.RemoveIf(context.Background(), []byte("a"), []byte("1"))
	require.ErrorIs(t, err, ErrClosed)
	_, err = h.Replace(context.Background(), []byte("a"), []byte("1"))
	require.ErrorIs(t, err, ErrClosed)
	_, err = h.PutIfAbsent(context.Background(), []byte("a"), []byte("1"))
	require.ErrorIs(t, err, ErrClosed)
	_, err = h.Get(context.Background(), []byte("a"))
	require.ErrorIs(t, err, ErrClosed)

	acquired, _, _ := pool.balance()
	assert.Zero(t, acquired)
	assert.NotSame(t, h, c.Hash("inv"), "a closed handle is replaced")
}

func TestConditional_ConcurrentIncrements(t *testing.T) {
	backend := startBackend(t)
	c := newTestClient(t, PoolOf(backend))
	ctx := context.Background()

	const (
		workers = 8
		perWork = 25
	)
	raw(t, backend, "HSET", "counter", "n", "0")

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := c.Hash("counter")
			for i := 0; i < perWork; {
				cur, err := h.Get(ctx, []byte("n"))
				if err != nil {
					errs <- err
					return
				}
				n, _ := strconv.Atoi(string(cur))
				ok, err := h.ReplaceIf(ctx, []byte("n"), cur, []byte(strconv.Itoa(n+1)))
				if err != nil {
					errs <- err
					return
				}
				if ok {
					i++
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	v, err := c.Hash("counter").Get(ctx, []byte("n"))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(workers*perWork), string(v))
}

func TestConditional_SingleRemover(t *testing.T) {
	backend := startBackend(t)
	ctx := context.Background()
	raw(t, backend, "HSET", "inv", "a", "1")

	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for w := 0; w < workers; w++ {
		c := newTestClient(t, PoolOf(backend))
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.Hash("inv").RemoveIf(ctx, []byte("a"), []byte("1"))
			if err == nil && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestScenario_Inventory(t *testing.T) {
	backend := startBackend(t)
	ctx := context.Background()
	a := newTestClient(t, PoolOf(backend)).Hash("inventory")
	b := newTestClient(t, PoolOf(backend)).Hash("inventory")

	_, err := a.Put(ctx, []byte("widget"), []byte("5"))
	require.NoError(t, err)

	ok, err := a.ReplaceIf(ctx, []byte("widget"), []byte("5"), []byte("3"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.ReplaceIf(ctx, []byte("widget"), []byte("5"), []byte("10"))
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := b.Get(ctx, []byte("widget"))
	require.NoError(t, err)
	assert.Equal(t, "3", string(v))
}
