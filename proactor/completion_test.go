package proactor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestExecutor() *completionExecutor {
	e := newCompletionExecutor(zerolog.Nop(), 10*time.Millisecond)
	e.start()
	return e
}

func TestCompletionExecutorDispatchesInOrder(t *testing.T) {
	e := newTestExecutor()
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		i := i
		e.enqueue(func(err error, n int) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}, i, nil)
	}
	wg.Wait()
	require.Equal(t, []int{0, 1, 2}, order)
	e.stop()
	e.wait()
}

func TestCompletionExecutorRecoversPanickingCallback(t *testing.T) {
	e := newTestExecutor()
	done := make(chan struct{})
	e.enqueue(func(err error, n int) { panic("boom") }, 0, nil)
	e.enqueue(func(err error, n int) { close(done) }, 0, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("executor stalled after a panicking callback")
	}
	e.stop()
	e.wait()
}

func TestCompletionExecutorDrainsOnStop(t *testing.T) {
	e := newCompletionExecutor(zerolog.Nop(), 10*time.Millisecond)
	var count int
	var mu sync.Mutex
	for i := 0; i < 5; i++ {
		e.enqueue(func(err error, n int) {
			mu.Lock()
			count++
			mu.Unlock()
		}, 0, nil)
	}
	e.start()
	e.stop()
	e.wait()
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 5, count)
}

func TestCompletionExecutorPassesErrAndN(t *testing.T) {
	e := newTestExecutor()
	done := make(chan struct{})
	sentinel := errors.New("boom")
	e.enqueue(func(err error, n int) {
		require.Equal(t, sentinel, err)
		require.Equal(t, 42, n)
		close(done)
	}, 42, sentinel)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never invoked")
	}
	e.stop()
	e.wait()
}
