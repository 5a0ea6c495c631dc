package future

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromise_SuccessTwiceIsRejected(t *testing.T) {
	p, f := New[int](nil)

	require.NoError(t, p.Success(1))
	require.ErrorIs(t, p.Success(2), ErrAlreadyResolved)

	v, ok := f.Value()
	require.True(t, ok)
	assert.Equal(t, 1, v, "second Success must not overwrite the first value")
}

func TestFuture_ForEach(t *testing.T) {
	t.Run("queued_until_resolved", func(t *testing.T) {
		p, f := New[string](nil)

		var got []string
		f.ForEach(func(v string) { got = append(got, "a:"+v) })
		f.ForEach(func(v string) { got = append(got, "b:"+v) })
		assert.Empty(t, got)

		require.NoError(t, p.Success("x"))
		assert.Equal(t, []string{"a:x", "b:x"}, got, "observers run in registration order")
	})

	t.Run("immediate_when_resolved", func(t *testing.T) {
		f := Resolved(7)

		called := false
		f.ForEach(func(v int) {
			called = true
			assert.Equal(t, 7, v)
		})
		assert.True(t, called)
	})

	t.Run("observers_cleared_after_resolution", func(t *testing.T) {
		p, f := New[int](nil)
		calls := 0
		f.ForEach(func(int) { calls++ })
		require.NoError(t, p.Success(1))
		_ = p.Success(2)
		assert.Equal(t, 1, calls)
	})
}

func TestPromise_ExecutorDefersObservers(t *testing.T) {
	var queue []func()
	exec := func(fn func()) { queue = append(queue, fn) }

	p, f := New[int](exec)
	var got int
	f.ForEach(func(v int) { got = v })

	require.NoError(t, p.Success(42))
	assert.Zero(t, got, "observer must wait for the executor")
	_, resolved := f.Value()
	assert.False(t, resolved)

	require.Len(t, queue, 1)
	queue[0]()
	assert.Equal(t, 42, got)
}

func TestPromise_RacingSuccessResolvesOnce(t *testing.T) {
	p, f := New[int](nil)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			if p.Success(v) == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	_, ok := f.Value()
	assert.True(t, ok)
}

func TestMapAndFlatMap(t *testing.T) {
	p, f := New[int](nil)

	doubled := Map(f, func(v int) int { return v * 2 })
	inner, innerF := New[string](nil)
	chained := FlatMap(doubled, func(v int) Future[string] {
		assert.Equal(t, 10, v)
		return innerF
	})

	require.NoError(t, p.Success(5))
	v, ok := doubled.Value()
	require.True(t, ok)
	assert.Equal(t, 10, v)

	_, ok = chained.Value()
	assert.False(t, ok, "flatMap waits for the inner future")

	require.NoError(t, inner.Success("done"))
	s, ok := chained.Value()
	require.True(t, ok)
	assert.Equal(t, "done", s)
}

func TestSequence_PreservesInputOrder(t *testing.T) {
	p1, f1 := New[string](nil)
	p2, f2 := New[string](nil)
	p3, f3 := New[string](nil)

	seq := Sequence([]Future[string]{f1, f2, f3})

	require.NoError(t, p2.Success("v2"))
	require.NoError(t, p3.Success("v3"))
	_, ok := seq.Value()
	assert.False(t, ok, "sequence must wait for the first future")

	require.NoError(t, p1.Success("v1"))
	got, ok := seq.Value()
	require.True(t, ok)
	assert.Equal(t, []string{"v1", "v2", "v3"}, got)
}

func TestSequence_PullsOneAtATime(t *testing.T) {
	p1, f1 := New[int](nil)
	_, f2 := New[int](nil)

	_ = Sequence([]Future[int]{f1, f2})

	f2.c.mu.Lock()
	pending := len(f2.c.observers)
	f2.c.mu.Unlock()
	assert.Zero(t, pending, "second future is not observed before the first resolves")

	require.NoError(t, p1.Success(1))
	f2.c.mu.Lock()
	pending = len(f2.c.observers)
	f2.c.mu.Unlock()
	assert.Equal(t, 1, pending)
}

func TestSequence_Empty(t *testing.T) {
	got, ok := Sequence[int](nil).Value()
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestAwait(t *testing.T) {
	p, f := New[int](nil)
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = p.Success(3)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := Await(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, never := New[int](nil)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	_, err = Await(ctx2, never)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
