package proactor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestWorkSchedule() *workSchedule {
	return newWorkSchedule(zerolog.Nop())
}

func TestWorkScheduleImmediateRunsOnceThenRemoved(t *testing.T) {
	w := newTestWorkSchedule()
	var calls int32
	w.AddWork(func() { atomic.AddInt32(&calls, 1) }, 0)
	require.Equal(t, 1, w.ScheduledWork())

	time.Sleep(time.Millisecond)
	n := w.doWork(false, false)
	require.Equal(t, 1, n)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Equal(t, 0, w.ScheduledWork())

	n = w.doWork(false, false)
	require.Equal(t, 0, n)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWorkSchedulePermanentRunsEveryCycle(t *testing.T) {
	w := newTestWorkSchedule()
	var calls int32
	w.AddWork(func() { atomic.AddInt32(&calls, 1) }, PermanentCompletionHandler)
	require.Equal(t, 1, w.PermanentWork())

	for i := 0; i < 3; i++ {
		w.doWork(false, false)
	}
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Equal(t, 1, w.PermanentWork())
}

func TestWorkScheduleDeadlineNotYetPassedRunsUntilExpired(t *testing.T) {
	w := newTestWorkSchedule()
	var calls int32
	w.AddWork(func() { atomic.AddInt32(&calls, 1) }, 20*time.Millisecond)

	n := w.doWork(false, false)
	require.Equal(t, 1, n)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Equal(t, 1, w.ScheduledWork(), "not yet expired, should remain")

	time.Sleep(30 * time.Millisecond)
	n = w.doWork(false, false)
	require.Equal(t, 0, n, "already expired before this cycle, removed without invocation")
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Equal(t, 0, w.ScheduledWork())
}

func TestWorkScheduleInsertionOrder(t *testing.T) {
	w := newTestWorkSchedule()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		w.AddWork(func() { order = append(order, i) }, PermanentCompletionHandler)
	}
	w.doWork(false, false)
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestWorkScheduleAddWorkFrontInsertsAtHead(t *testing.T) {
	w := newTestWorkSchedule()
	var order []int
	w.AddWork(func() { order = append(order, 1) }, PermanentCompletionHandler)
	w.AddWorkFront(func() { order = append(order, 0) }, PermanentCompletionHandler)
	w.doWork(false, false)
	require.Equal(t, []int{0, 1}, order)
}

func TestWorkScheduleRemoveScheduledAndPermanentWork(t *testing.T) {
	w := newTestWorkSchedule()
	w.AddWork(func() {}, PermanentCompletionHandler)
	w.AddWork(func() {}, time.Hour)
	w.AddWork(func() {}, time.Hour)

	require.Equal(t, 2, w.ScheduledWork())
	require.Equal(t, 1, w.PermanentWork())

	removed := w.RemoveScheduledWork(1)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, w.ScheduledWork())

	removed = w.RemovePermanentWork(-1)
	require.Equal(t, 1, removed)
	require.Equal(t, 0, w.PermanentWork())
}

func TestWorkScheduleRunOneBlocksUntilWork(t *testing.T) {
	w := newTestWorkSchedule()
	stop := make(chan struct{})
	done := make(chan int, 1)
	go func() { done <- w.RunOne(stop) }()

	select {
	case <-done:
		t.Fatal("RunOne returned before any work was added")
	case <-time.After(20 * time.Millisecond):
	}

	var ran int32
	w.AddWork(func() { atomic.AddInt32(&ran, 1) }, 0)

	select {
	case r := <-done:
		require.Equal(t, 1, r)
		require.Equal(t, int32(1), atomic.LoadInt32(&ran))
	case <-time.After(time.Second):
		t.Fatal("RunOne did not unblock after AddWork")
	}
}

func TestWorkScheduleRunOneUnblocksOnStop(t *testing.T) {
	w := newTestWorkSchedule()
	stop := make(chan struct{})
	done := make(chan int, 1)
	go func() { done <- w.RunOne(stop) }()

	time.Sleep(10 * time.Millisecond)
	close(stop)

	select {
	case r := <-done:
		require.Equal(t, 0, r)
	case <-time.After(time.Second):
		t.Fatal("RunOne did not unblock after stop")
	}
}
