package timingwheel

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleFiresAfterDelay(t *testing.T) {
	w := New(time.Millisecond, 64)
	defer w.Stop()

	var fired int32
	w.Schedule(5*time.Millisecond, func() {
		atomic.StoreInt32(&fired, 1)
	})

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		w.ExpireTimers()
		if atomic.LoadInt32(&fired) == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("scheduled callback did not fire within the deadline")
}

func TestCancelPreventsFiring(t *testing.T) {
	w := New(time.Millisecond, 64)
	defer w.Stop()

	var fired int32
	timeout := w.Schedule(5*time.Millisecond, func() {
		atomic.StoreInt32(&fired, 1)
	})
	timeout.Cancel()

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		w.ExpireTimers()
		time.Sleep(time.Millisecond)
	}

	if atomic.LoadInt32(&fired) == 1 {
		t.Fatal("cancelled timeout fired")
	}
	if !timeout.Cancelled() {
		t.Error("Cancelled() = false, want true")
	}
}

func TestCallbackFiresAtMostOnce(t *testing.T) {
	w := New(time.Millisecond, 64)
	defer w.Stop()

	var count int32
	w.Schedule(2*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		w.ExpireTimers()
		time.Sleep(time.Millisecond)
	}

	if got := atomic.LoadInt32(&count); got != 1 {
		t.Errorf("callback fired %d times, want exactly 1", got)
	}
}

func TestNewRoundsTicksPerWheelUpToPowerOfTwo(t *testing.T) {
	w := New(time.Millisecond, 500)
	defer w.Stop()
	if got := len(w.buckets); got != 512 {
		t.Errorf("bucket count = %d, want 512", got)
	}
}
