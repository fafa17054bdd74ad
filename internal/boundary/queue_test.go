package boundary

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestQueue_AppliesInReservationOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewQueue[string]()
	a, _ := q.Enqueue()
	b, _ := q.Enqueue()
	c, _ := q.Enqueue()

	var got []string
	done := make(chan error)
	go func() {
		done <- q.Run(context.Background(), func(seq int64, v string) {
			got = append(got, v)
		})
	}()

	// Resolve out of order, as slow captures would.
	var wg sync.WaitGroup
	for _, step := range []struct {
		p     *Pending[string]
		v     string
		delay time.Duration
	}{{c, "c", 0}, {a, "a", 5 * time.Millisecond}, {b, "b", 10 * time.Millisecond}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(step.delay)
			step.p.Resolve(step.v)
		}()
	}
	wg.Wait()
	q.Close()

	require.NoError(t, <-done)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestQueue_CloseDrainsReservedSlots(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewQueue[int]()
	p, ok := q.Enqueue()
	require.True(t, ok)
	q.EnqueueResolved(2)
	q.Close()

	_, ok = q.Enqueue()
	assert.False(t, ok, "closed queue rejects new slots")

	var got []int
	var seqs []int64
	done := make(chan error)
	go func() {
		done <- q.Run(context.Background(), func(seq int64, v int) {
			seqs = append(seqs, seq)
			got = append(got, v)
		})
	}()
	p.Resolve(1)
	p.Resolve(99)

	require.NoError(t, <-done)
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, []int64{1, 2}, seqs)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_RunStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewQueue[int]()
	q.Enqueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() {
		done <- q.Run(ctx, func(int64, int) {})
	}()
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestQueue_RunWaitsForWork(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewQueue[int]()
	applied := make(chan int, 1)
	done := make(chan error)
	go func() {
		done <- q.Run(context.Background(), func(_ int64, v int) { applied <- v })
	}()

	q.EnqueueResolved(7)
	assert.Equal(t, 7, <-applied)
	q.Close()
	require.NoError(t, <-done)
}
