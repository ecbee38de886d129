package pool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerSchedulerFires(t *testing.T) {
	s := NewTimerScheduler()
	var fired atomic.Int32

	s.Schedule(10*time.Millisecond, func() { fired.Add(1) })
	assert.True(t, s.Pending())

	require.Eventually(t, func() bool { return fired.Load() == 1 }, waitFor, tick)
	assert.False(t, s.Pending())
	assert.False(t, s.Cancel(), "nothing left to cancel after firing")
}

func TestTimerSchedulerCancel(t *testing.T) {
	s := NewTimerScheduler()
	var fired atomic.Int32

	assert.False(t, s.Cancel())
	s.Schedule(20*time.Millisecond, func() { fired.Add(1) })
	assert.True(t, s.Cancel())
	assert.False(t, s.Pending())

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestTimerSchedulerReplaces(t *testing.T) {
	s := NewTimerScheduler()
	var first, second atomic.Int32

	s.Schedule(20*time.Millisecond, func() { first.Add(1) })
	s.Schedule(30*time.Millisecond, func() { second.Add(1) })

	require.Eventually(t, func() bool { return second.Load() == 1 }, waitFor, tick)
	assert.Zero(t, first.Load(), "replaced task must not run")
}

func TestRequestQueueOrderAndRemoval(t *testing.T) {
	var q requestQueue
	a := newRequest("a", KindDetail, target(1))
	b := newRequest("b", KindSearch, "mouse")
	c := newRequest("c", KindDetail, target(2))

	q.push(a)
	q.push(b)
	q.push(c)
	require.Equal(t, 3, q.len())

	assert.True(t, q.remove(b))
	assert.False(t, q.remove(b), "second removal is a no-op")

	assert.Same(t, a, q.pop())
	assert.False(t, q.remove(a), "dequeued requests cannot be withdrawn")
	assert.Same(t, c, q.pop())
	assert.Nil(t, q.pop())
	assert.Zero(t, q.len())
}

func TestCounterGenerator(t *testing.T) {
	g := NewCounterGenerator("job")
	assert.Equal(t, "job-1", g.NewID())
	assert.Equal(t, "job-2", g.NewID())

	u := UUIDGenerator{}
	assert.Len(t, u.NewID(), 36)
	assert.NotEqual(t, u.NewID(), u.NewID())
}
