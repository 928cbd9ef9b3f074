package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduleFires(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer func() { _ = s.Shutdown() }()

	fired := make(chan struct{})
	err = s.Schedule("b1", time.Now().Add(30*time.Millisecond), func(context.Context) {
		close(fired)
	})
	require.NoError(t, err)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not fire")
	}
}

func TestCancelPreventsFire(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer func() { _ = s.Shutdown() }()

	var fired atomic.Bool
	err = s.Schedule("b1", time.Now().Add(80*time.Millisecond), func(context.Context) {
		fired.Store(true)
	})
	require.NoError(t, err)

	s.Cancel("b1")
	time.Sleep(150 * time.Millisecond)
	require.False(t, fired.Load())
}

func TestDoubleCancelIsBenign(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer func() { _ = s.Shutdown() }()

	require.NoError(t, s.Schedule("b1", time.Now().Add(time.Hour), func(context.Context) {}))
	s.Cancel("b1")
	s.Cancel("b1")
	s.Cancel("never-scheduled")
}

func TestRescheduleReplacesTrigger(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer func() { _ = s.Shutdown() }()

	var count atomic.Int32
	require.NoError(t, s.Schedule("b1", time.Now().Add(40*time.Millisecond), func(context.Context) {
		count.Add(1)
	}))
	require.NoError(t, s.Schedule("b1", time.Now().Add(60*time.Millisecond), func(context.Context) {
		count.Add(1)
	}))

	time.Sleep(200 * time.Millisecond)
	require.EqualValues(t, 1, count.Load(), "replaced trigger fires once")
}

func TestEveryRunsRepeatedly(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	defer func() { _ = s.Shutdown() }()

	var count atomic.Int32
	require.NoError(t, s.Every(30*time.Millisecond, "sweep", func(context.Context) {
		count.Add(1)
	}))

	time.Sleep(150 * time.Millisecond)
	require.GreaterOrEqual(t, count.Load(), int32(2))
}
