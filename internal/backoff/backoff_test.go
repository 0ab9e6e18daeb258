package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestControllerDoublesUntilCap(t *testing.T) {
	c := New(8 * time.Millisecond)
	require.Equal(t, time.Duration(0), c.Current())

	done := make(chan struct{})
	close(done) // never actually sleep in this test

	c.Sleep(done)
	require.Equal(t, time.Millisecond, c.Current())

	c.Sleep(done)
	require.Equal(t, 2*time.Millisecond, c.Current())

	c.Sleep(done)
	require.Equal(t, 4*time.Millisecond, c.Current())

	c.Sleep(done)
	require.Equal(t, 8*time.Millisecond, c.Current())

	c.Sleep(done)
	require.Equal(t, 8*time.Millisecond, c.Current(), "must clamp at the configured cap")
}

func TestControllerResetZeroesInterval(t *testing.T) {
	c := New(time.Second)
	done := make(chan struct{})
	close(done)

	c.Sleep(done)
	c.Sleep(done)
	require.NotZero(t, c.Current())

	c.Reset()
	require.Zero(t, c.Current())
}

func TestControllerSleepWakeReturnsEarly(t *testing.T) {
	c := New(time.Minute)
	// Grow the interval to 2048ms, past the 1s limit below, so the test
	// only passes if the wake signal cuts the sleep short.
	for i := 0; i < 12; i++ {
		c.Sleep(closedChan())
	}

	wake := make(chan struct{}, 1)
	wake <- struct{}{}
	stop := make(chan struct{})

	finished := make(chan struct{})
	go func() {
		c.SleepWake(stop, wake)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("SleepWake did not return promptly when wake was signaled")
	}
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func TestNewClampsNonPositiveMax(t *testing.T) {
	c := New(0)
	require.Equal(t, 250*time.Millisecond, c.Cap())
}
