package lane

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// busy returns how many keys have unfinished tickets.
func (l *Lanes) busy() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tails)
}

func TestLanes_SameKeyRunsInOrder(t *testing.T) {
	l := New()
	ctx := context.Background()

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		tk := l.Reserve("contact-1")
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer tk.Done()
			assert.NoError(t, tk.Wait(ctx))
			if i%3 == 0 {
				time.Sleep(time.Millisecond)
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, order)
	assert.Zero(t, l.busy())
}

func TestLanes_DifferentKeysDoNotWait(t *testing.T) {
	l := New()
	first := l.Reserve("a")
	defer first.Done()

	other := l.Reserve("b")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, other.Wait(ctx))
	other.Done()
	assert.Equal(t, 1, l.busy())
}

func TestLanes_WaitHonoursContext(t *testing.T) {
	l := New()
	first := l.Reserve("a")
	second := l.Reserve("a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, second.Wait(ctx), context.DeadlineExceeded)

	second.Done()
	first.Done()
	assert.Zero(t, l.busy())
}

func TestLanes_EmptyKeyNeverWaits(t *testing.T) {
	l := New()
	a := l.Reserve("")
	b := l.Reserve("")
	assert.NoError(t, b.Wait(context.Background()))
	a.Done()
	b.Done()
	assert.Zero(t, l.busy())
}
