package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := New()
	for i := 0; i < 5; i++ {
		q.Enqueue(i)
	}
	require.Equal(t, 5, q.Len())
	for i := 0; i < 5; i++ {
		item, ok := q.TryDequeue()
		require.True(t, ok)
		require.Equal(t, i, item)
	}
	require.True(t, q.Empty())
}

func TestQueueBlockingDequeueUnblocksOnEnqueue(t *testing.T) {
	q := New()
	done := make(chan any, 1)
	go func() {
		item, ok := q.Dequeue()
		if ok {
			done <- item
		} else {
			done <- nil
		}
	}()
	time.Sleep(10 * time.Millisecond)
	q.Enqueue("payload")
	select {
	case v := <-done:
		require.Equal(t, "payload", v)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not unblock after Enqueue")
	}
}

func TestQueueWakeUpAllReturnsFalseWhenEmpty(t *testing.T) {
	q := New()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.WakeUpAll()
	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not unblock after WakeUpAll")
	}
}

func TestQueueMultipleProducers(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	const producers = 8
	const perProducer = 50
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				q.Enqueue(id*perProducer + j)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, producers*perProducer, q.Len())
}
