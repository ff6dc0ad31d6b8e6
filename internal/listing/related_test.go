package listing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type named struct {
	ID   int
	Name string
}

func TestRelatedCollapsesConcurrentLoads(t *testing.T) {
	var loads atomic.Int32
	gate := make(chan struct{})
	r := NewRelated(func(context.Context) ([]named, error) {
		loads.Add(1)
		<-gate
		return []named{{1, "Caneta"}, {2, "Caderno"}}, nil
	}, func(n named) int { return n.ID })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := r.Index(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "Caderno", idx[2].Name)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())

	v, ok, err := r.Lookup(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Caneta", v.Name)
	assert.Equal(t, int32(1), loads.Load())
}

func TestRelatedInvalidateReloads(t *testing.T) {
	var loads atomic.Int32
	r := NewRelated(func(context.Context) ([]named, error) {
		n := loads.Add(1)
		return []named{{1, "v" + string(rune('0'+n))}}, nil
	}, func(n named) int { return n.ID })
	ctx := context.Background()

	items, err := r.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v1", items[0].Name)

	r.Invalidate()
	v, _, err := r.Lookup(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v2", v.Name)
	assert.Equal(t, int32(2), loads.Load())
}

func TestRelatedDoesNotCacheFailures(t *testing.T) {
	var calls atomic.Int32
	r := NewRelated(func(context.Context) ([]named, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("offline")
		}
		return []named{{7, "ok"}}, nil
	}, func(n named) int { return n.ID })

	_, _, err := r.Lookup(context.Background(), 7)
	require.Error(t, err)

	_, ok, err := r.Lookup(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDebouncerRunsOnlyLastTask(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var mu sync.Mutex
	var ran []int
	for i := 0; i < 5; i++ {
		i := i
		d.Trigger(func() {
			mu.Lock()
			defer mu.Unlock()
			ran = append(ran, i)
		})
	}
	assert.True(t, d.Pending())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ran) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{4}, ran)
	assert.False(t, d.Pending())
}

func TestDebouncerCancelAndStop(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	var ran atomic.Int32

	d.Trigger(func() { ran.Add(1) })
	d.Cancel()
	d.Stop()
	d.Trigger(func() { ran.Add(1) })
	time.Sleep(40 * time.Millisecond)

	assert.Zero(t, ran.Load())
}

func TestDebouncerWithoutDelayRunsInline(t *testing.T) {
	d := NewDebouncer(-1)
	ran := false
	d.Trigger(func() { ran = true })
	assert.True(t, ran)
}

func TestResolveAppliesPolicy(t *testing.T) {
	index := map[int]string{1: "Caneta"}

	v, ok := Resolve(index, 1, JoinDrop, "?")
	assert.True(t, ok)
	assert.Equal(t, "Caneta", v)

	_, ok = Resolve(index, 2, JoinDrop, "?")
	assert.False(t, ok)

	v, ok = Resolve(index, 2, JoinPlaceholder, "Produto não encontrado")
	assert.True(t, ok)
	assert.Equal(t, "Produto não encontrado", v)
}

func TestRelatedCallerCancelDoesNotFailOthers(t *testing.T) {
	var loads atomic.Int32
	started := make(chan struct{})
	gate := make(chan struct{})
	r := NewRelated(func(ctx context.Context) ([]named, error) {
		loads.Add(1)
		close(started)
		<-gate
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []named{{1, "Caneta"}}, nil
	}, func(n named) int { return n.ID })

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := r.Index(ctxA)
		errA <- err
	}()
	<-started

	type result struct {
		idx map[int]named
		err error
	}
	resB := make(chan result, 1)
	go func() {
		idx, err := r.Index(context.Background())
		resB <- result{idx, err}
	}()
	time.Sleep(10 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(gate)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "Caneta", b.idx[1].Name)
	assert.Equal(t, int32(1), loads.Load())

	_, ok, err := r.Lookup(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), loads.Load())
}

func TestDebouncerStopWaitsForRunningTask(t *testing.T) {
	d := NewDebouncer(5 * time.Millisecond)
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	d.Trigger(func() {
		close(started)
		<-release
		finished.Store(true)
	})
	<-started

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned before the running task finished")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	<-stopped
	assert.True(t, finished.Load())
}
