package live_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"c2cmarket/internal/live"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_SubscribeReplaysLatest(t *testing.T) {
	v := live.New(1)
	v.Set(2)

	var got []int
	cancel := v.Subscribe(func(x int) { got = append(got, x) })
	v.Set(3)
	cancel()
	v.Set(4)

	assert.Equal(t, []int{2, 3}, got)
	assert.Equal(t, 4, v.Get())
	assert.Equal(t, 0, v.Subscribers())
}

func TestValue_MultipleReadersSeeSameSequence(t *testing.T) {
	v := live.New("a")
	var first, second []string
	stop1 := v.Subscribe(func(s string) { first = append(first, s) })
	stop2 := v.Subscribe(func(s string) { second = append(second, s) })
	defer stop1()
	defer stop2()

	v.Set("b")
	v.Update(func(s string) string { return s + "c" })

	assert.Equal(t, []string{"a", "b", "bc"}, first)
	assert.Equal(t, first, second)
}

func TestValue_CancelIsIdempotent(t *testing.T) {
	v := live.New(0)
	cancel := v.Subscribe(func(int) {})
	other := v.Subscribe(func(int) {})
	cancel()
	cancel()
	assert.Equal(t, 1, v.Subscribers())
	other()
	assert.Equal(t, 0, v.Subscribers())
}

func TestCombine_RecomputesOnEitherInput(t *testing.T) {
	a := live.New(1)
	b := live.New(10)
	sum, stop := live.Combine(a, b, func(x, y int) int { return x + y })

	assert.Equal(t, 11, sum.Get())
	a.Set(2)
	assert.Equal(t, 12, sum.Get())
	b.Set(20)
	assert.Equal(t, 22, sum.Get())

	stop()
	a.Set(100)
	assert.Equal(t, 22, sum.Get(), "stopped derivation must not follow inputs")
}

func TestCombine_ConcurrentWritersConverge(t *testing.T) {
	a := live.New(0)
	b := live.New(0)
	sum, stop := live.Combine(a, b, func(x, y int) int { return x + y })
	defer stop()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(2)
		go func(n int) { defer wg.Done(); a.Set(n) }(i)
		go func(n int) { defer wg.Done(); b.Set(n) }(i)
	}
	wg.Wait()

	assert.Equal(t, a.Get()+b.Get(), sum.Get())
}

func TestMap_TracksSource(t *testing.T) {
	src := live.New([]int{1, 2, 3})
	count, stop := live.Map(src, func(xs []int) int { return len(xs) })
	defer stop()

	assert.Equal(t, 3, count.Get())
	src.Set(nil)
	assert.Equal(t, 0, count.Get())
}

func TestChanges_DeliversNewestAndClosesOnCancel(t *testing.T) {
	v := live.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch := v.Changes(ctx)

	require.Equal(t, 1, <-ch)
	v.Set(2)
	v.Set(3)
	assert.Equal(t, 3, <-ch, "intermediate values are skipped")

	cancel()
	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Eventually(t, func() bool { return v.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}
