package infra

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNamedTimers_Fires(t *testing.T) {
	timers := NewNamedTimers()
	defer timers.StopAll()

	fired := make(chan struct{})
	timers.Schedule("unblock:youtube.com", time.Now().Add(10*time.Millisecond), func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestNamedTimers_ScheduleReplacesSameName(t *testing.T) {
	timers := NewNamedTimers()
	defer timers.StopAll()

	var fired int32
	fire := func() { atomic.AddInt32(&fired, 1) }

	timers.Schedule("unblock:youtube.com", time.Now().Add(20*time.Millisecond), fire)
	timers.Schedule("unblock:youtube.com", time.Now().Add(30*time.Millisecond), fire)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestNamedTimers_Clear(t *testing.T) {
	timers := NewNamedTimers()
	defer timers.StopAll()

	var fired int32
	timers.Schedule("unblock:reddit.com", time.Now().Add(20*time.Millisecond), func() {
		atomic.AddInt32(&fired, 1)
	})
	timers.Clear("unblock:reddit.com")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestNamedTimers_PastInstantFiresImmediately(t *testing.T) {
	timers := NewNamedTimers()
	defer timers.StopAll()

	fired := make(chan struct{})
	timers.Schedule("unblock:x.com", time.Now().Add(-time.Minute), func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("past-instant timer did not fire")
	}
}
